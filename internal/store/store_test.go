package store

import (
	"syscall"
	"testing"
	"time"

	"github.com/BTreeMap/FeedbackPipe/internal/models"
)

func seedStore(t *testing.T, s Store) {
	t.Helper()
	if err := s.AddClinic(models.Clinic{Code: 1, Name: "Central Clinic", Slug: "central", LGA: "Ikeja"}); err != nil {
		t.Fatalf("AddClinic: %v", err)
	}
	if err := s.AddService(models.Service{Code: 5, Name: "Antenatal"}); err != nil {
		t.Fatalf("AddService: %v", err)
	}
}

func newVisitFor(t *testing.T, s Store, mobile string, at time.Time) *models.Visit {
	t.Helper()
	clinic := 1
	patient, err := s.UpsertPatient(&clinic, "401", mobile)
	if err != nil {
		t.Fatalf("UpsertPatient: %v", err)
	}
	service := 5
	visit, err := s.CreateVisit(models.Visit{
		PatientID:   patient.ID,
		ServiceCode: &service,
		Mobile:      mobile,
		Sender:      "08033334444",
		VisitTime:   at,
	})
	if err != nil {
		t.Fatalf("CreateVisit: %v", err)
	}
	return visit
}

// exerciseStore runs the backend-independent contract checks. Every backend
// must behave identically here.
func exerciseStore(t *testing.T, s Store) {
	seedStore(t, s)

	clinic, err := s.GetClinicByCode(1)
	if err != nil || clinic == nil || clinic.Name != "Central Clinic" {
		t.Fatalf("GetClinicByCode = %v, %v", clinic, err)
	}
	if missing, err := s.GetClinicByCode(99); err != nil || missing != nil {
		t.Fatalf("missing clinic should be (nil, nil), got %v, %v", missing, err)
	}

	// Patient upsert is keyed by (clinic, serial) and refreshes the mobile.
	one := 1
	p1, err := s.UpsertPatient(&one, "401", "08122233301")
	if err != nil {
		t.Fatalf("UpsertPatient: %v", err)
	}
	p2, err := s.UpsertPatient(&one, "401", "08199999999")
	if err != nil {
		t.Fatalf("UpsertPatient again: %v", err)
	}
	if p1.ID != p2.ID {
		t.Errorf("same (clinic, serial) must be one patient: %q vs %q", p1.ID, p2.ID)
	}
	if got, _ := s.GetPatient(p1.ID); got.Mobile != "08199999999" {
		t.Errorf("Mobile not refreshed: %q", got.Mobile)
	}

	// A nil clinic is its own identity.
	pNil, err := s.UpsertPatient(nil, "401", "08122233301")
	if err != nil {
		t.Fatalf("UpsertPatient nil clinic: %v", err)
	}
	if pNil.ID == p1.ID {
		t.Error("nil-clinic patient must not collide with clinic 1")
	}

	// Visit lifecycle markers transition once.
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	visit := newVisitFor(t, s, "08122233301", base)
	if ok, err := s.MarkVisitWelcomed(visit.ID, base); err != nil || !ok {
		t.Fatalf("MarkVisitWelcomed = %v, %v", ok, err)
	}
	if ok, _ := s.MarkVisitWelcomed(visit.ID, base.Add(time.Minute)); ok {
		t.Error("welcome marker must transition only once")
	}
	if ok, err := s.MarkVisitSurveySent(visit.ID, base.Add(2*time.Hour)); err != nil || !ok {
		t.Fatalf("MarkVisitSurveySent = %v, %v", ok, err)
	}
	if ok, _ := s.MarkVisitSurveySent(visit.ID, base.Add(3*time.Hour)); ok {
		t.Error("survey-sent marker must transition only once")
	}

	// Duplicate lookup honors the clinic key and the window.
	if dup, _ := s.FindRecentVisit(&one, "401", "08122233301", base.Add(-time.Minute)); dup == nil {
		t.Error("visit inside the window should be found")
	}
	if dup, _ := s.FindRecentVisit(&one, "401", "08122233301", base.Add(time.Minute)); dup != nil {
		t.Error("visit outside the window should not be found")
	}
	two := 2
	if dup, _ := s.FindRecentVisit(&two, "401", "08122233301", base.Add(-time.Minute)); dup != nil {
		t.Error("a different clinic is never a duplicate")
	}

	// Registration error bookkeeping.
	for i := 0; i < 2; i++ {
		if err := s.AddRegistrationError(models.VisitRegistrationError{
			Sender: "08033334444", Message: "2 08122233301 401 5", Time: base,
		}); err != nil {
			t.Fatalf("AddRegistrationError: %v", err)
		}
	}
	if n, _ := s.CountRegistrationErrors("08033334444"); n != 2 {
		t.Errorf("error count = %d, want 2", n)
	}
	if err := s.ClearRegistrationErrors("08033334444"); err != nil {
		t.Fatalf("ClearRegistrationErrors: %v", err)
	}
	if n, _ := s.CountRegistrationErrors("08033334444"); n != 0 {
		t.Errorf("error count after clear = %d, want 0", n)
	}

	// Sender bookkeeping for the blocked rules.
	if has, _ := s.SenderHasVisit("08033334444"); !has {
		t.Error("registering sender should have a visit")
	}
	if has, _ := s.SenderHasVisit("08000000000"); has {
		t.Error("unknown sender should have no visit")
	}
}

func TestInMemoryStoreContract(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestSQLiteStoreContract(t *testing.T) {
	s, err := NewSQLiteStore(WithSQLiteDSN(t.TempDir() + "/feedbackpipe.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestPostgresStoreContract(t *testing.T) {
	// Requires a running PostgreSQL instance; set DATABASE_URL to enable.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	s, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer s.Close()
	for _, table := range []string{"survey_question_responses", "visits", "patients", "visit_registration_errors", "generic_feedback", "jobs", "clinics", "services"} {
		s.db.Exec("DELETE FROM " + table)
	}
	exerciseStore(t, s)
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
