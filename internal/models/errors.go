// Package models: error kinds and user-facing surface messages.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Field names a registration field that failed validation. The values are the
// uppercased tokens rendered into the field-error surface message.
type Field string

const (
	FieldMobile  Field = "MOBILE"
	FieldClinic  Field = "CLINIC"
	FieldSerial  Field = "SERIAL"
	FieldService Field = "SERVICE"
)

// RegistrationKind classifies a rejected registration or feedback message.
type RegistrationKind string

const (
	// KindMalformed means the text failed to tokenize into four fields.
	KindMalformed RegistrationKind = "malformed"
	// KindInvalid means one or more fields failed validation.
	KindInvalid RegistrationKind = "invalid"
	// KindDuplicate means an equal registration arrived inside the duplicate window.
	KindDuplicate RegistrationKind = "duplicate"
	// KindBlocked means the sender is not allowed to submit generic feedback.
	KindBlocked RegistrationKind = "blocked"
)

// Error variables for background components.
var (
	// ErrNoSurvey means no active patient-feedback survey is configured.
	ErrNoSurvey = errors.New("no active patient-feedback survey configured")
	// ErrVisitNotFound means a scheduled survey references a missing visit.
	ErrVisitNotFound = errors.New("visit not found")
)

// RegistrationError is a typed, sender-addressable validation failure.
type RegistrationError struct {
	Kind   RegistrationKind
	Serial string
	Fields []Field // in validation order, for KindInvalid
}

func (e *RegistrationError) Error() string {
	if e.Kind == KindInvalid {
		return fmt.Sprintf("registration %s: %s", e.Kind, e.JoinedFields())
	}
	return fmt.Sprintf("registration %s", e.Kind)
}

// JoinedFields renders the error fields comma-joined in validation order.
func (e *RegistrationError) JoinedFields() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

// Surface returns the exact message sent back to the staff phone.
func (e *RegistrationError) Surface() string {
	switch e.Kind {
	case KindMalformed:
		return MalformedMessage
	case KindInvalid:
		return fmt.Sprintf("Error for serial %s. There was a mistake in entering %s. Please check and enter the whole registration code again.", e.Serial, e.JoinedFields())
	case KindDuplicate:
		return DuplicateMessage
	}
	return ""
}

// Surface messages, bit-exact.
const (
	// MalformedMessage is returned when the registration fails to tokenize.
	MalformedMessage = "1 or more parts of your entry are missing, please check and enter the registration again."
	// DuplicateMessage is returned for a repeated registration inside the window.
	DuplicateMessage = "This registration was received before. Thank you."
)

// SuccessMessage is the surface message for an accepted registration.
func SuccessMessage(serial string) string {
	return fmt.Sprintf("Entry received for patient with serial number %s. Thank you.", serial)
}
