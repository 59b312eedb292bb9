package registration

import (
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/FeedbackPipe/internal/models"
	"github.com/BTreeMap/FeedbackPipe/internal/store"
)

const testSender = "+2348033334444"

func newTestValidator(t *testing.T, opts ...Option) (*Validator, *store.InMemoryStore) {
	t.Helper()
	s := store.NewInMemoryStore()
	if err := s.AddClinic(models.Clinic{Code: 1, Name: "Central Clinic"}); err != nil {
		t.Fatalf("AddClinic: %v", err)
	}
	if err := s.AddService(models.Service{Code: 5, Name: "Antenatal"}); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	return NewValidator(s, opts...), s
}

func mustParse(t *testing.T, text string) *Registration {
	t.Helper()
	reg, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	return reg
}

func TestRegisterCreatesPatientAndVisit(t *testing.T) {
	v, s := newTestValidator(t)

	visit, err := v.Register(mustParse(t, "1 08122233301 401 5"), testSender)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if visit.Mobile != "08122233301" {
		t.Errorf("Mobile = %q", visit.Mobile)
	}
	if visit.Sender != "08033334444" {
		t.Errorf("Sender = %q, want local form", visit.Sender)
	}
	if visit.ServiceCode == nil || *visit.ServiceCode != 5 {
		t.Errorf("ServiceCode = %v", visit.ServiceCode)
	}

	patient, err := s.GetPatient(visit.PatientID)
	if err != nil || patient == nil {
		t.Fatalf("GetPatient: %v, %v", patient, err)
	}
	if patient.Serial != "401" || patient.ClinicCode == nil || *patient.ClinicCode != 1 {
		t.Errorf("patient = %+v", patient)
	}
}

func TestRegisterNoPhoneSentinel(t *testing.T) {
	v, _ := newTestValidator(t)

	visit, err := v.Register(mustParse(t, "1 1 401 5"), testSender)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if visit.HasMobile() {
		t.Error("sentinel mobile should report no phone")
	}
}

func TestRegisterInvalidFieldsInValidationOrder(t *testing.T) {
	v, _ := newTestValidator(t)

	// Mobile too short and unknown clinic, serial and service fine.
	_, err := v.Register(mustParse(t, "9 0812 401 5"), testSender)
	var regErr *models.RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("err = %v, want *RegistrationError", err)
	}
	if regErr.Kind != models.KindInvalid {
		t.Errorf("Kind = %q", regErr.Kind)
	}
	if got := regErr.JoinedFields(); got != "MOBILE, CLINIC" {
		t.Errorf("JoinedFields = %q, want %q", got, "MOBILE, CLINIC")
	}
	want := "Error for serial 401. There was a mistake in entering MOBILE, CLINIC. Please check and enter the whole registration code again."
	if got := regErr.Surface(); got != want {
		t.Errorf("Surface = %q", got)
	}
}

func TestRegisterLenientPassOnThirdAttempt(t *testing.T) {
	v, s := newTestValidator(t)

	// Two failed attempts with an unknown service code.
	for i := 0; i < 2; i++ {
		if _, err := v.Register(mustParse(t, "1 08122233301 401 9"), testSender); err == nil {
			t.Fatalf("attempt %d: expected invalid", i+1)
		}
	}
	n, _ := s.CountRegistrationErrors(testSender)
	if n != 2 {
		t.Fatalf("error count = %d, want 2", n)
	}

	// Third attempt passes leniently with a nil service.
	visit, err := v.Register(mustParse(t, "1 08122233301 401 9"), testSender)
	if err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	if visit.ServiceCode != nil {
		t.Errorf("ServiceCode = %v, want nil on lenient pass", visit.ServiceCode)
	}

	// Error state is flushed and the waived fields are logged.
	if n, _ := s.CountRegistrationErrors(testSender); n != 0 {
		t.Errorf("error count after lenient pass = %d, want 0", n)
	}
	logs := s.RegistrationErrorLogs()
	if len(logs) != 1 {
		t.Fatalf("got %d error logs, want 1", len(logs))
	}
	if logs[0].Kinds != "SERVICE" {
		t.Errorf("log kinds = %q", logs[0].Kinds)
	}
}

func TestRegisterMobileErrorBlocksLenientPass(t *testing.T) {
	v, s := newTestValidator(t)

	for i := 0; i < 2; i++ {
		if _, err := v.Register(mustParse(t, "1 08122233301 401 9"), testSender); err == nil {
			t.Fatalf("attempt %d: expected invalid", i+1)
		}
	}

	// Third attempt has a bad mobile, so no waiver.
	_, err := v.Register(mustParse(t, "1 0812 401 9"), testSender)
	var regErr *models.RegistrationError
	if !errors.As(err, &regErr) || regErr.Kind != models.KindInvalid {
		t.Fatalf("err = %v, want invalid", err)
	}
	if n, _ := s.CountRegistrationErrors(testSender); n != 3 {
		t.Errorf("error count = %d, want 3", n)
	}
}

func TestRegisterValidClearsErrorState(t *testing.T) {
	v, s := newTestValidator(t)

	if _, err := v.Register(mustParse(t, "1 08122233301 401 9"), testSender); err == nil {
		t.Fatal("expected invalid")
	}
	if _, err := v.Register(mustParse(t, "1 08122233301 402 5"), testSender); err != nil {
		t.Fatalf("valid registration: %v", err)
	}
	if n, _ := s.CountRegistrationErrors(testSender); n != 0 {
		t.Errorf("error count = %d, want 0", n)
	}
}

func TestRegisterDuplicateWithinWindow(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	clock := base
	v, _ := newTestValidator(t, WithNow(func() time.Time { return clock }))

	if _, err := v.Register(mustParse(t, "1 08122233301 401 5"), testSender); err != nil {
		t.Fatalf("first registration: %v", err)
	}

	clock = base.Add(29 * time.Minute)
	_, err := v.Register(mustParse(t, "1 08122233301 401 5"), testSender)
	var regErr *models.RegistrationError
	if !errors.As(err, &regErr) || regErr.Kind != models.KindDuplicate {
		t.Fatalf("err = %v, want duplicate", err)
	}
	if got := regErr.Surface(); got != models.DuplicateMessage {
		t.Errorf("Surface = %q", got)
	}

	// Outside the window the same registration is a fresh visit.
	clock = base.Add(31 * time.Minute)
	if _, err := v.Register(mustParse(t, "1 08122233301 401 5"), testSender); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestRegisterDuplicateWindowOption(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	clock := base
	v, _ := newTestValidator(t,
		WithNow(func() time.Time { return clock }),
		WithDuplicateWindow(5*time.Minute),
	)

	if _, err := v.Register(mustParse(t, "1 08122233301 401 5"), testSender); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	clock = base.Add(6 * time.Minute)
	if _, err := v.Register(mustParse(t, "1 08122233301 401 5"), testSender); err != nil {
		t.Fatalf("after narrowed window: %v", err)
	}
}
