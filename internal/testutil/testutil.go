// Package testutil provides common test utilities and helpers for
// FeedbackPipe tests.
package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BTreeMap/FeedbackPipe/internal/models"
	"github.com/BTreeMap/FeedbackPipe/internal/store"
)

// Reference data codes seeded by SeedReferenceData.
const (
	TestClinicCode  = 1
	TestServiceCode = 5
)

// SeedReferenceData adds the clinic and service every registration test needs.
func SeedReferenceData(t *testing.T, s store.Store) {
	t.Helper()
	if err := s.AddClinic(models.Clinic{Code: TestClinicCode, Name: "Central Clinic", Slug: "central", LGA: "Ikeja"}); err != nil {
		t.Fatalf("failed to seed clinic: %v", err)
	}
	if err := s.AddService(models.Service{Code: TestServiceCode, Name: "Antenatal"}); err != nil {
		t.Fatalf("failed to seed service: %v", err)
	}
}

// NewVisit creates a patient and a visit for the given mobile, in the seeded
// clinic, and returns the stored visit.
func NewVisit(t *testing.T, s store.Store, mobile string) *models.Visit {
	t.Helper()
	clinic := TestClinicCode
	patient, err := s.UpsertPatient(&clinic, "401", mobile)
	if err != nil {
		t.Fatalf("failed to upsert patient: %v", err)
	}
	service := TestServiceCode
	visit, err := s.CreateVisit(models.Visit{
		PatientID:   patient.ID,
		ServiceCode: &service,
		Mobile:      mobile,
		Sender:      "08033334444",
		VisitTime:   time.Now(),
	})
	if err != nil {
		t.Fatalf("failed to create visit: %v", err)
	}
	return visit
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
