// Package registration: field validation, error-tolerance policy and the
// duplicate-visit rule.
package registration

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BTreeMap/FeedbackPipe/internal/models"
	"github.com/BTreeMap/FeedbackPipe/internal/phone"
	"github.com/BTreeMap/FeedbackPipe/internal/store"
)

// Validation limits for registration fields.
const (
	// MobileLocalLength is the accepted length of a patient mobile; the
	// single digit "1" is the no-phone sentinel.
	MobileLocalLength = 11
	// MaxSerialLength is the maximum length of a patient serial.
	MaxSerialLength = 6
	// DefaultDuplicateWindow is how long an identical registration counts as
	// a duplicate rather than a new visit.
	DefaultDuplicateWindow = 30 * time.Minute
	// LenientPassThreshold is how many prior failed registrations a sender
	// needs before the lenient-pass policy can fire.
	LenientPassThreshold = 2
)

// Validator applies per-sender error state and persists accepted visits.
type Validator struct {
	store     store.Store
	dupWindow time.Duration
	now       func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithDuplicateWindow overrides the duplicate-visit window.
func WithDuplicateWindow(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.dupWindow = d
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a registration validator backed by the given store.
func NewValidator(s store.Store, opts ...Option) *Validator {
	v := &Validator{store: s, dupWindow: DefaultDuplicateWindow, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Register validates a tokenized registration from sender and either persists
// a Visit (creating the Patient when needed) or returns a typed
// *models.RegistrationError carrying the surface message.
func (v *Validator) Register(reg *Registration, sender string) (*models.Visit, error) {
	var fields []models.Field
	if len(reg.Mobile) != 1 && len(reg.Mobile) != MobileLocalLength {
		fields = append(fields, models.FieldMobile)
	}

	var clinic *models.Clinic
	if code, err := strconv.Atoi(reg.Clinic); err == nil {
		c, err := v.store.GetClinicByCode(code)
		if err != nil {
			return nil, fmt.Errorf("clinic lookup failed: %w", err)
		}
		clinic = c
	}
	if clinic == nil {
		fields = append(fields, models.FieldClinic)
	}

	if len(reg.Serial) < 1 || len(reg.Serial) > MaxSerialLength {
		fields = append(fields, models.FieldSerial)
	}

	var service *models.Service
	if code, err := strconv.Atoi(reg.Service); err == nil {
		s, err := v.store.GetServiceByCode(code)
		if err != nil {
			return nil, fmt.Errorf("service lookup failed: %w", err)
		}
		service = s
	}
	if service == nil {
		fields = append(fields, models.FieldService)
	}

	if len(fields) > 0 {
		pass, err := v.applyErrorPolicy(reg, sender, fields)
		if err != nil {
			return nil, err
		}
		if !pass {
			return nil, &models.RegistrationError{Kind: models.KindInvalid, Serial: reg.Serial, Fields: fields}
		}
		// Lenient pass: proceed with whatever resolved, even nil clinic or
		// service.
	} else if err := v.store.ClearRegistrationErrors(sender); err != nil {
		return nil, fmt.Errorf("clear registration errors failed: %w", err)
	}

	var clinicCode *int
	if clinic != nil {
		clinicCode = &clinic.Code
	}
	var serviceCode *int
	if service != nil {
		serviceCode = &service.Code
	}

	now := v.now()
	dup, err := v.store.FindRecentVisit(clinicCode, reg.Serial, reg.Mobile, now.Add(-v.dupWindow))
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	if dup != nil {
		slog.Debug("Validator.Register: duplicate registration", "sender", sender, "serial", reg.Serial)
		return nil, &models.RegistrationError{Kind: models.KindDuplicate, Serial: reg.Serial}
	}

	patient, err := v.store.UpsertPatient(clinicCode, reg.Serial, reg.Mobile)
	if err != nil {
		return nil, fmt.Errorf("patient upsert failed: %w", err)
	}

	visit := models.Visit{
		PatientID:   patient.ID,
		ServiceCode: serviceCode,
		Mobile:      reg.Mobile,
		Sender:      phone.LocalOrRaw(sender),
		VisitTime:   now,
	}
	created, err := v.store.CreateVisit(visit)
	if err != nil {
		return nil, fmt.Errorf("visit create failed: %w", err)
	}
	slog.Info("Validator.Register: visit registered", "visit", created.ID, "serial", reg.Serial, "sender", visit.Sender)
	return created, nil
}

// applyErrorPolicy decides between recording another registration error and
// the lenient pass. It returns true when the registration should proceed as
// if validation had passed.
func (v *Validator) applyErrorPolicy(reg *Registration, sender string, fields []models.Field) (bool, error) {
	mobileBad := false
	for _, f := range fields {
		if f == models.FieldMobile {
			mobileBad = true
		}
	}

	n, err := v.store.CountRegistrationErrors(sender)
	if err != nil {
		return false, fmt.Errorf("registration error count failed: %w", err)
	}

	if n >= LenientPassThreshold && !mobileBad {
		regErr := &models.RegistrationError{Kind: models.KindInvalid, Serial: reg.Serial, Fields: fields}
		if err := v.store.AddRegistrationErrorLog(models.VisitRegistrationErrorLog{
			Sender:  sender,
			Kinds:   regErr.JoinedFields(),
			Message: reg.Normalized,
			Time:    v.now(),
		}); err != nil {
			return false, fmt.Errorf("registration error log failed: %w", err)
		}
		if err := v.store.ClearRegistrationErrors(sender); err != nil {
			return false, fmt.Errorf("clear registration errors failed: %w", err)
		}
		slog.Info("Validator.Register: lenient pass", "sender", sender, "waived", regErr.JoinedFields())
		return true, nil
	}

	if err := v.store.AddRegistrationError(models.VisitRegistrationError{
		Sender:  sender,
		Message: reg.Normalized,
		Time:    v.now(),
	}); err != nil {
		return false, fmt.Errorf("registration error record failed: %w", err)
	}
	return false, nil
}
