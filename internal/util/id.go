// Package util: record ID generation.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a unique record ID in the format "{prefix}{uuid-hex}".
func NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewVisitID generates a unique visit ID with "v_" prefix.
func NewVisitID() string { return NewID("v_") }

// NewPatientID generates a unique patient ID with "p_" prefix.
func NewPatientID() string { return NewID("p_") }

// NewResponseID generates a unique response ID with "r_" prefix.
func NewResponseID() string { return NewID("r_") }
