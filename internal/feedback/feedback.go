// Package feedback handles the free-form feedback flow, the channel open to
// the public rather than to clinic staff.
//
// The flow provider posts the collected answers as a urlencoded-ish string
// ('+' for spaces) wrapping a JSON array of {category, label, value} items.
// Phones that have ever registered a visit are staff phones and are not
// allowed to use this channel.
package feedback

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/FeedbackPipe/internal/models"
	"github.com/BTreeMap/FeedbackPipe/internal/phone"
	"github.com/BTreeMap/FeedbackPipe/internal/store"
)

// flowValue is one answered item in the provider payload.
type flowValue struct {
	Category string `json:"category"`
	Label    string `json:"label"`
	Value    string `json:"value"`
}

// Intake persists generic feedback submissions.
type Intake struct {
	store store.Store
}

// NewIntake creates a generic-feedback intake backed by the given store.
func NewIntake(s store.Store) *Intake {
	return &Intake{store: s}
}

// Submit parses a raw provider values payload from sender and persists a
// GenericFeedback. Senders that registered a visit before are blocked and get
// a KindBlocked error; the webhook drops those silently.
func (in *Intake) Submit(sender, rawValues string) (*models.GenericFeedback, error) {
	var values []flowValue
	decoded := strings.ReplaceAll(rawValues, "+", " ")
	if err := json.Unmarshal([]byte(decoded), &values); err != nil {
		return nil, &models.RegistrationError{Kind: models.KindMalformed}
	}

	var message, clinicText string
	var clinic *models.Clinic
	for _, v := range values {
		if strings.EqualFold(v.Category, "other") {
			continue
		}
		switch strings.ToLower(v.Label) {
		case "general feedback":
			message = v.Value
		case "clinic":
			code, err := strconv.Atoi(v.Category)
			if err != nil {
				continue
			}
			c, err := in.store.GetClinicByCode(code)
			if err != nil {
				return nil, fmt.Errorf("clinic lookup failed: %w", err)
			}
			clinic = c
		case "which clinic":
			clinicText = v.Value
		}
	}
	if clinicText != "" {
		message = fmt.Sprintf("%s (%s)", message, clinicText)
	}

	local := phone.LocalOrRaw(sender)
	staff, err := in.store.SenderHasVisit(local)
	if err != nil {
		return nil, fmt.Errorf("sender check failed: %w", err)
	}
	if staff {
		slog.Debug("Intake.Submit: feedback from registering phone dropped", "sender", local)
		return nil, &models.RegistrationError{Kind: models.KindBlocked}
	}

	var clinicCode *int
	if clinic != nil {
		clinicCode = &clinic.Code
	}
	saved, err := in.store.AddGenericFeedback(models.GenericFeedback{
		Sender:     sender,
		ClinicCode: clinicCode,
		Message:    message,
	})
	if err != nil {
		return nil, fmt.Errorf("feedback save failed: %w", err)
	}
	slog.Info("Intake.Submit: generic feedback recorded", "feedback", saved.ID, "clinic", clinicCode != nil)
	return saved, nil
}
