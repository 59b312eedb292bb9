// Package survey drives the patient-feedback survey lifecycle: scheduling the
// deferred start after a visit, starting the provider flow at the ETA, and
// importing the answered runs back.
package survey

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FeedbackPipe/internal/phone"
	"github.com/BTreeMap/FeedbackPipe/internal/store"
)

// Scheduling defaults. The delay leaves the patient time to get home before
// the survey SMS arrives; the window keeps sends inside waking hours.
const (
	DefaultSurveyDelay    = 120 * time.Minute
	DefaultWindowEarliest = 8
	DefaultWindowLatest   = 20
	schedulerBatchLimit   = 200
)

// startPayload is the JSON payload of a start-survey job.
type startPayload struct {
	VisitID string `json:"visit_id"`
}

// Scheduler finds freshly registered visits and enqueues their one-shot
// start-survey jobs.
type Scheduler struct {
	store    store.Store
	jobs     store.JobRepo
	delay    time.Duration
	earliest int
	latest   int
	now      func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithDelay overrides how long after the visit the survey starts.
func WithDelay(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithWindow overrides the permitted daily send window hours.
func WithWindow(earliest, latest int) SchedulerOption {
	return func(s *Scheduler) {
		if earliest >= 0 && latest <= 23 && earliest <= latest {
			s.earliest = earliest
			s.latest = latest
		}
	}
}

// WithSchedulerNow overrides the clock, for tests.
func WithSchedulerNow(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a survey scheduler.
func NewScheduler(s store.Store, jobs store.JobRepo, opts ...SchedulerOption) *Scheduler {
	sch := &Scheduler{
		store:    s,
		jobs:     jobs,
		delay:    DefaultSurveyDelay,
		earliest: DefaultWindowEarliest,
		latest:   DefaultWindowLatest,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(sch)
	}
	return sch
}

// Tick schedules the pending visits once. It returns how many visits were
// scheduled; per-visit failures are logged and skipped so one bad row cannot
// stall the batch.
func (s *Scheduler) Tick() (int, error) {
	visits, err := s.store.ListVisitsAwaitingWelcome(schedulerBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("listing visits awaiting welcome: %w", err)
	}

	now := s.now()
	scheduled := 0
	for _, v := range visits {
		if !v.HasMobile() {
			continue
		}
		if _, err := phone.ToInternational(v.Mobile); err != nil {
			slog.Debug("Scheduler.Tick: mobile not convertible, skipping", "visit", v.ID, "mobile", v.Mobile)
			continue
		}

		payload, err := json.Marshal(startPayload{VisitID: v.ID})
		if err != nil {
			return scheduled, fmt.Errorf("encoding start payload: %w", err)
		}
		eta := s.clampToWindow(now.Add(s.delay))
		dedupe := store.JobKindStartSurvey + ":" + v.ID
		if _, err := s.jobs.EnqueueJob(store.JobKindStartSurvey, eta, string(payload), dedupe); err != nil {
			slog.Error("Scheduler.Tick: enqueue failed", "visit", v.ID, "error", err)
			continue
		}

		ok, err := s.store.MarkVisitWelcomed(v.ID, now)
		if err != nil {
			slog.Error("Scheduler.Tick: welcome marker failed", "visit", v.ID, "error", err)
			continue
		}
		if !ok {
			// Another tick won this visit; its job deduped against ours.
			slog.Debug("Scheduler.Tick: visit already welcomed", "visit", v.ID)
			continue
		}
		slog.Info("Scheduler.Tick: survey scheduled", "visit", v.ID, "eta", eta)
		scheduled++
	}
	return scheduled, nil
}

// clampToWindow moves an ETA into the permitted daily send window. Past the
// window it slips to the next morning; before it, to the same morning.
func (s *Scheduler) clampToWindow(eta time.Time) time.Time {
	switch {
	case eta.Hour() > s.latest:
		next := eta.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), s.earliest, 0, 0, 0, eta.Location())
	case eta.Hour() < s.earliest:
		return time.Date(eta.Year(), eta.Month(), eta.Day(), s.earliest, 0, 0, 0, eta.Location())
	default:
		return eta
	}
}
