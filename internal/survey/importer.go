package survey

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/FeedbackPipe/internal/flowapi"
	"github.com/BTreeMap/FeedbackPipe/internal/models"
	"github.com/BTreeMap/FeedbackPipe/internal/phone"
	"github.com/BTreeMap/FeedbackPipe/internal/store"
)

// RunsFetcher is the slice of the provider client the importer needs.
type RunsFetcher interface {
	GetRuns(ctx context.Context, flowID string) ([]flowapi.Run, error)
}

// Importer pulls answered runs from the provider and persists them as
// question responses. Importing the same runs twice is a no-op.
type Importer struct {
	store  store.Store
	client RunsFetcher
}

// NewImporter creates a flow-response importer.
func NewImporter(s store.Store, client RunsFetcher) *Importer {
	return &Importer{store: s, client: client}
}

// Tick imports the runs of every active survey once. Per-survey failures are
// logged and skipped so a provider outage on one flow cannot stall the rest.
func (im *Importer) Tick(ctx context.Context) error {
	surveys, err := im.store.ListActiveSurveys()
	if err != nil {
		return fmt.Errorf("listing active surveys: %w", err)
	}
	for _, sv := range surveys {
		if err := im.importSurvey(ctx, sv); err != nil {
			slog.Error("Importer.Tick: survey import failed", "survey", sv.ID, "error", err)
		}
	}
	return nil
}

func (im *Importer) importSurvey(ctx context.Context, sv models.Survey) error {
	questions, err := im.store.ListSurveyQuestions(sv.ID)
	if err != nil {
		return fmt.Errorf("listing questions: %w", err)
	}
	byLabel := make(map[string]models.SurveyQuestion, len(questions))
	for _, q := range questions {
		byLabel[strings.ToLower(q.Label)] = q
	}

	runs, err := im.client.GetRuns(ctx, sv.FlowID)
	if err != nil {
		return fmt.Errorf("fetching runs: %w", err)
	}

	imported := 0
	for _, run := range runs {
		mobile := phone.LocalOrRaw(run.Phone)
		for _, v := range run.Values {
			q, ok := byLabel[strings.ToLower(v.Label)]
			if !ok {
				slog.Warn("Importer.importSurvey: unknown question label", "survey", sv.ID, "label", v.Label)
				continue
			}

			category := strings.ToLower(v.Category)
			if category == "stop" || category == "error" {
				continue
			}
			answer := v.Category
			if category == "other" || category == "all responses" {
				answer = v.Value
			}

			answeredAt, err := time.Parse(time.RFC3339, v.Time)
			if err != nil {
				slog.Warn("Importer.importSurvey: unparseable answer time", "survey", sv.ID, "time", v.Time)
				continue
			}

			visit, err := im.store.FindVisitForResponse(mobile, answeredAt)
			if err != nil {
				return fmt.Errorf("visit lookup for response: %w", err)
			}
			resp := models.SurveyQuestionResponse{
				QuestionID: q.ID,
				Mobile:     mobile,
				Response:   answer,
				Datetime:   answeredAt,
			}
			if visit != nil {
				resp.VisitID = &visit.ID
			}
			if err := im.store.UpsertQuestionResponse(&q, resp); err != nil {
				return fmt.Errorf("response upsert: %w", err)
			}
			imported++
		}
	}
	slog.Info("Importer.importSurvey: runs imported", "survey", sv.ID, "runs", len(runs), "answers", imported)
	return nil
}
