// Package store provides storage backends for FeedbackPipe.
//
// It defines the Store interface over the relational state (clinics,
// patients, visits, surveys, responses) and ships three implementations: an
// in-memory store for tests, an SQLite store for single-node deployments, and
// a PostgreSQL store.
package store

import (
	"strings"
	"time"

	"github.com/BTreeMap/FeedbackPipe/internal/models"
)

// DetectDSNType classifies a DSN as "postgres" (connection URL or key-value
// form) or "sqlite" (file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string: a connection URL for Postgres
	// or a file path for SQLite.
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the connection string for a Postgres store.
func WithPostgresDSN(dsn string) Option { return WithDSN(dsn) }

// WithSQLiteDSN sets the database file path for an SQLite store.
func WithSQLiteDSN(dsn string) Option { return WithDSN(dsn) }

// Store is the persistence contract shared by all backends.
//
// Lookup methods return (nil, nil) when no matching record exists; an error
// always means the query itself failed.
type Store interface {
	// Reference data.
	AddClinic(c models.Clinic) error
	GetClinicByCode(code int) (*models.Clinic, error)
	AddService(s models.Service) error
	GetServiceByCode(code int) (*models.Service, error)
	AddBlockedPhone(phone string) error
	IsBlockedPhone(phone string) (bool, error)

	// Registration state.
	CountRegistrationErrors(sender string) (int, error)
	AddRegistrationError(e models.VisitRegistrationError) error
	ClearRegistrationErrors(sender string) error
	AddRegistrationErrorLog(l models.VisitRegistrationErrorLog) error

	// Patients and visits.
	UpsertPatient(clinicCode *int, serial, mobile string) (*models.Patient, error)
	GetPatient(id string) (*models.Patient, error)
	CreateVisit(v models.Visit) (*models.Visit, error)
	GetVisit(id string) (*models.Visit, error)
	// FindRecentVisit locates a visit with the same patient identity
	// (clinic, serial) and mobile whose visit_time is after since. It backs
	// the duplicate-visit rule.
	FindRecentVisit(clinicCode *int, serial, mobile string, since time.Time) (*models.Visit, error)
	// SenderHasVisit reports whether the phone has ever registered a visit.
	SenderHasVisit(sender string) (bool, error)

	// Survey lifecycle markers. The Mark methods are conditional updates on
	// the timestamp still being null and report whether this caller won the
	// transition.
	ListVisitsAwaitingWelcome(limit int) ([]models.Visit, error)
	MarkVisitWelcomed(id string, at time.Time) (bool, error)
	MarkVisitSurveySent(id string, at time.Time) (bool, error)

	// Survey configuration.
	AddSurvey(s models.Survey) (*models.Survey, error)
	GetActiveSurveyByRole(role string) (*models.Survey, error)
	ListActiveSurveys() ([]models.Survey, error)
	AddSurveyQuestion(q models.SurveyQuestion) (*models.SurveyQuestion, error)
	ListSurveyQuestions(surveyID string) ([]models.SurveyQuestion, error)

	// Responses. FindVisitForResponse returns the most recent visit whose
	// mobile matches and whose survey was sent before answeredAt.
	// UpsertQuestionResponse applies the most-recent-wins rule per
	// (visit, question), classifies the answer, and updates the visit
	// roll-ups atomically with the response write.
	FindVisitForResponse(mobile string, answeredAt time.Time) (*models.Visit, error)
	UpsertQuestionResponse(q *models.SurveyQuestion, r models.SurveyQuestionResponse) error
	ListQuestionResponses() ([]models.SurveyQuestionResponse, error)

	// Generic feedback.
	AddGenericFeedback(f models.GenericFeedback) (*models.GenericFeedback, error)
	ListGenericFeedback() ([]models.GenericFeedback, error)

	Close() error
}
