package testutil

import (
	"testing"

	"github.com/BTreeMap/FeedbackPipe/internal/store"
)

func TestSeedReferenceData(t *testing.T) {
	s := store.NewInMemoryStore()
	SeedReferenceData(t, s)

	clinic, err := s.GetClinicByCode(TestClinicCode)
	if err != nil || clinic == nil {
		t.Fatalf("clinic not seeded: %v, %v", clinic, err)
	}
	service, err := s.GetServiceByCode(TestServiceCode)
	if err != nil || service == nil {
		t.Fatalf("service not seeded: %v, %v", service, err)
	}
}

func TestNewVisit(t *testing.T) {
	s := store.NewInMemoryStore()
	SeedReferenceData(t, s)

	visit := NewVisit(t, s, "08122233301")
	if visit.ID == "" {
		t.Error("visit has no ID")
	}
	got, err := s.GetVisit(visit.ID)
	if err != nil || got == nil {
		t.Fatalf("visit not stored: %v, %v", got, err)
	}
	if got.Mobile != "08122233301" {
		t.Errorf("Mobile = %q", got.Mobile)
	}
}

func TestMustMarshalRoundTrip(t *testing.T) {
	data := MustMarshalJSON(t, map[string]int{"a": 1})
	var out map[string]int
	MustUnmarshalJSON(t, data, &out)
	if out["a"] != 1 {
		t.Errorf("round trip lost data: %v", out)
	}
}
