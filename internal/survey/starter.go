package survey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FeedbackPipe/internal/models"
	"github.com/BTreeMap/FeedbackPipe/internal/phone"
	"github.com/BTreeMap/FeedbackPipe/internal/store"
)

// FlowStarter is the slice of the provider client the starter needs.
type FlowStarter interface {
	StartFlow(ctx context.Context, flowID, contact string) error
}

// Starter executes the start-survey job: it kicks off the provider flow for a
// visit at the scheduled ETA.
type Starter struct {
	store  store.Store
	client FlowStarter
	now    func() time.Time
}

// NewStarter creates a survey starter.
func NewStarter(s store.Store, client FlowStarter) *Starter {
	return &Starter{store: s, client: client, now: time.Now}
}

// Handle is the job handler for start-survey jobs. Provider errors are
// returned as-is so the job runner retries; a missing survey configuration is
// permanent.
func (st *Starter) Handle(ctx context.Context, payload string) error {
	var p startPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("%w: decoding start payload: %v", store.ErrPermanentJob, err)
	}

	visit, err := st.store.GetVisit(p.VisitID)
	if err != nil {
		return fmt.Errorf("visit lookup failed: %w", err)
	}
	if visit == nil {
		return fmt.Errorf("%w: %v", store.ErrPermanentJob, models.ErrVisitNotFound)
	}
	if visit.SurveySent != nil {
		slog.Debug("Starter.Handle: survey already sent", "visit", visit.ID)
		return nil
	}

	survey, err := st.store.GetActiveSurveyByRole(models.SurveyRolePatientFeedback)
	if err != nil {
		return fmt.Errorf("survey lookup failed: %w", err)
	}
	if survey == nil {
		slog.Error("Starter.Handle: no active patient-feedback survey", "visit", visit.ID)
		return fmt.Errorf("%w: %v", store.ErrPermanentJob, models.ErrNoSurvey)
	}

	contact, err := phone.ToInternational(visit.Mobile)
	if err != nil {
		return fmt.Errorf("%w: mobile not convertible for visit %s: %v", store.ErrPermanentJob, visit.ID, err)
	}

	if err := st.client.StartFlow(ctx, survey.FlowID, contact); err != nil {
		return fmt.Errorf("starting survey for visit %s: %w", visit.ID, err)
	}

	if _, err := st.store.MarkVisitSurveySent(visit.ID, st.now()); err != nil {
		return fmt.Errorf("survey-sent marker failed: %w", err)
	}
	slog.Info("Starter.Handle: survey started", "visit", visit.ID, "survey", survey.ID)
	return nil
}
