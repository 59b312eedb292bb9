// Package store provides storage backends for FeedbackPipe.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/FeedbackPipe/internal/models"
	"github.com/BTreeMap/FeedbackPipe/internal/util"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time checks that PostgresStore implements the persistence contracts.
var (
	_ Store   = (*PostgresStore)(nil)
	_ JobRepo = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) AddClinic(c models.Clinic) error {
	_, err := s.db.Exec(
		`INSERT INTO clinics (code, name, slug, lga) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (code) DO UPDATE SET name = $2, slug = $3, lga = $4`,
		c.Code, c.Name, c.Slug, c.LGA,
	)
	if err != nil {
		return fmt.Errorf("failed to insert clinic %d: %w", c.Code, err)
	}
	return nil
}

func (s *PostgresStore) GetClinicByCode(code int) (*models.Clinic, error) {
	var c models.Clinic
	err := s.db.QueryRow(`SELECT code, name, slug, lga FROM clinics WHERE code = $1`, code).
		Scan(&c.Code, &c.Name, &c.Slug, &c.LGA)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query clinic %d: %w", code, err)
	}
	return &c, nil
}

func (s *PostgresStore) AddService(sv models.Service) error {
	_, err := s.db.Exec(
		`INSERT INTO services (code, name) VALUES ($1, $2)
		 ON CONFLICT (code) DO UPDATE SET name = $2`,
		sv.Code, sv.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to insert service %d: %w", sv.Code, err)
	}
	return nil
}

func (s *PostgresStore) GetServiceByCode(code int) (*models.Service, error) {
	var sv models.Service
	err := s.db.QueryRow(`SELECT code, name FROM services WHERE code = $1`, code).
		Scan(&sv.Code, &sv.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query service %d: %w", code, err)
	}
	return &sv, nil
}

func (s *PostgresStore) AddBlockedPhone(phone string) error {
	_, err := s.db.Exec(`INSERT INTO blocked_phones (phone) VALUES ($1) ON CONFLICT DO NOTHING`, phone)
	if err != nil {
		return fmt.Errorf("failed to insert blocked phone: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsBlockedPhone(phone string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM blocked_phones WHERE phone = $1`, phone).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query blocked phone: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) CountRegistrationErrors(sender string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM visit_registration_errors WHERE sender = $1`, sender).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count registration errors for %s: %w", sender, err)
	}
	return n, nil
}

func (s *PostgresStore) AddRegistrationError(e models.VisitRegistrationError) error {
	if e.ID == "" {
		e.ID = util.NewID("re_")
	}
	_, err := s.db.Exec(
		`INSERT INTO visit_registration_errors (id, sender, message, time) VALUES ($1, $2, $3, $4)`,
		e.ID, e.Sender, e.Message, e.Time,
	)
	if err != nil {
		return fmt.Errorf("failed to insert registration error for %s: %w", e.Sender, err)
	}
	return nil
}

func (s *PostgresStore) ClearRegistrationErrors(sender string) error {
	_, err := s.db.Exec(`DELETE FROM visit_registration_errors WHERE sender = $1`, sender)
	if err != nil {
		return fmt.Errorf("failed to clear registration errors for %s: %w", sender, err)
	}
	return nil
}

func (s *PostgresStore) AddRegistrationErrorLog(l models.VisitRegistrationErrorLog) error {
	if l.ID == "" {
		l.ID = util.NewID("rl_")
	}
	_, err := s.db.Exec(
		`INSERT INTO visit_registration_error_logs (id, sender, kinds, message, time) VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.Sender, l.Kinds, l.Message, l.Time,
	)
	if err != nil {
		return fmt.Errorf("failed to insert registration error log for %s: %w", l.Sender, err)
	}
	return nil
}

func (s *PostgresStore) UpsertPatient(clinicCode *int, serial, mobile string) (*models.Patient, error) {
	p := models.Patient{ClinicCode: clinicCode, Serial: serial, Mobile: mobile}

	var query string
	var args []interface{}
	if clinicCode != nil {
		query = `SELECT id, mobile FROM patients WHERE clinic_code = $1 AND serial = $2`
		args = []interface{}{*clinicCode, serial}
	} else {
		query = `SELECT id, mobile FROM patients WHERE clinic_code IS NULL AND serial = $1`
		args = []interface{}{serial}
	}
	err := s.db.QueryRow(query, args...).Scan(&p.ID, &p.Mobile)
	switch {
	case err == sql.ErrNoRows:
		p.ID = util.NewPatientID()
		p.Mobile = mobile
		_, err := s.db.Exec(
			`INSERT INTO patients (id, clinic_code, serial, mobile) VALUES ($1, $2, $3, $4)`,
			p.ID, nullableInt(clinicCode), serial, mobile,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert patient %s: %w", serial, err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to query patient %s: %w", serial, err)
	default:
		if p.Mobile != mobile {
			p.Mobile = mobile
			if _, err := s.db.Exec(`UPDATE patients SET mobile = $1 WHERE id = $2`, mobile, p.ID); err != nil {
				return nil, fmt.Errorf("failed to update patient %s: %w", p.ID, err)
			}
		}
	}
	return &p, nil
}

func (s *PostgresStore) GetPatient(id string) (*models.Patient, error) {
	var p models.Patient
	var clinicCode sql.NullInt64
	err := s.db.QueryRow(`SELECT id, clinic_code, serial, mobile FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &clinicCode, &p.Serial, &p.Mobile)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query patient %s: %w", id, err)
	}
	p.ClinicCode = intPtr(clinicCode)
	return &p, nil
}

func (s *PostgresStore) CreateVisit(v models.Visit) (*models.Visit, error) {
	if v.ID == "" {
		v.ID = util.NewVisitID()
	}
	if v.VisitTime.IsZero() {
		v.VisitTime = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO visits (id, patient_id, service_code, mobile, sender, visit_time, welcome_sent, survey_sent, survey_started, survey_completed, satisfied)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		v.ID, v.PatientID, nullableInt(v.ServiceCode), v.Mobile, v.Sender, v.VisitTime,
		nullableTime(v.WelcomeSent), nullableTime(v.SurveySent), v.SurveyStarted, v.SurveyCompleted, nullableBool(v.Satisfied),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert visit: %w", err)
	}
	slog.Debug("PostgresStore.CreateVisit", "id", v.ID, "patient", v.PatientID)
	return &v, nil
}

func (s *PostgresStore) GetVisit(id string) (*models.Visit, error) {
	row := s.db.QueryRow(`SELECT `+visitColumns+` FROM visits WHERE id = $1`, id)
	v, err := scanVisit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query visit %s: %w", id, err)
	}
	return &v, nil
}

func (s *PostgresStore) FindRecentVisit(clinicCode *int, serial, mobile string, since time.Time) (*models.Visit, error) {
	var query string
	var args []interface{}
	if clinicCode != nil {
		query = `SELECT ` + aliasedVisitColumns("v") + ` FROM visits v
			 JOIN patients p ON p.id = v.patient_id
			 WHERE p.clinic_code = $1 AND p.serial = $2 AND v.mobile = $3 AND v.visit_time > $4
			 ORDER BY v.visit_time DESC LIMIT 1`
		args = []interface{}{*clinicCode, serial, mobile, since}
	} else {
		query = `SELECT ` + aliasedVisitColumns("v") + ` FROM visits v
			 JOIN patients p ON p.id = v.patient_id
			 WHERE p.clinic_code IS NULL AND p.serial = $1 AND v.mobile = $2 AND v.visit_time > $3
			 ORDER BY v.visit_time DESC LIMIT 1`
		args = []interface{}{serial, mobile, since}
	}
	row := s.db.QueryRow(query, args...)
	v, err := scanVisit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query recent visit: %w", err)
	}
	return &v, nil
}

func (s *PostgresStore) SenderHasVisit(sender string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM visits WHERE sender = $1 LIMIT 1`, sender).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query visits by sender: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) ListVisitsAwaitingWelcome(limit int) ([]models.Visit, error) {
	rows, err := s.db.Query(
		`SELECT `+visitColumns+` FROM visits
		 WHERE welcome_sent IS NULL AND mobile <> ''
		   AND sender NOT IN (SELECT phone FROM blocked_phones)
		 ORDER BY visit_time ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits awaiting welcome: %w", err)
	}
	defer rows.Close()
	var visits []models.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit row: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate visit rows: %w", err)
	}
	return visits, nil
}

func (s *PostgresStore) MarkVisitWelcomed(id string, at time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE visits SET welcome_sent = $1 WHERE id = $2 AND welcome_sent IS NULL`,
		at, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark visit %s welcomed: %w", id, err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (s *PostgresStore) MarkVisitSurveySent(id string, at time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE visits SET survey_sent = $1 WHERE id = $2 AND survey_sent IS NULL`,
		at, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark visit %s survey sent: %w", id, err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (s *PostgresStore) AddSurvey(sv models.Survey) (*models.Survey, error) {
	if sv.ID == "" {
		sv.ID = util.NewID("s_")
	}
	_, err := s.db.Exec(
		`INSERT INTO surveys (id, flow_id, role, active) VALUES ($1, $2, $3, $4)`,
		sv.ID, sv.FlowID, sv.Role, sv.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert survey %s: %w", sv.Role, err)
	}
	return &sv, nil
}

func (s *PostgresStore) GetActiveSurveyByRole(role string) (*models.Survey, error) {
	var sv models.Survey
	err := s.db.QueryRow(
		`SELECT id, flow_id, role, active FROM surveys WHERE role = $1 AND active`, role,
	).Scan(&sv.ID, &sv.FlowID, &sv.Role, &sv.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query survey by role %s: %w", role, err)
	}
	return &sv, nil
}

func (s *PostgresStore) ListActiveSurveys() ([]models.Survey, error) {
	rows, err := s.db.Query(`SELECT id, flow_id, role, active FROM surveys WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active surveys: %w", err)
	}
	defer rows.Close()
	var surveys []models.Survey
	for rows.Next() {
		var sv models.Survey
		if err := rows.Scan(&sv.ID, &sv.FlowID, &sv.Role, &sv.Active); err != nil {
			return nil, fmt.Errorf("failed to scan survey row: %w", err)
		}
		surveys = append(surveys, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate survey rows: %w", err)
	}
	return surveys, nil
}

func (s *PostgresStore) AddSurveyQuestion(q models.SurveyQuestion) (*models.SurveyQuestion, error) {
	if q.ID == "" {
		q.ID = util.NewID("q_")
	}
	_, err := s.db.Exec(
		`INSERT INTO survey_questions (id, survey_id, question_id, label, question_type, categories, last_negative, for_satisfaction, last_required, start_date, end_date, report_order)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		q.ID, q.SurveyID, q.QuestionID, q.Label, string(q.Type), q.Categories,
		q.LastNegative, q.ForSatisfaction, q.LastRequired,
		nullableTime(q.StartDate), nullableTime(q.EndDate), q.ReportOrder,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert survey question %s: %w", q.Label, err)
	}
	return &q, nil
}

func (s *PostgresStore) ListSurveyQuestions(surveyID string) ([]models.SurveyQuestion, error) {
	rows, err := s.db.Query(
		`SELECT `+questionColumns+` FROM survey_questions WHERE survey_id = $1 ORDER BY report_order ASC`,
		surveyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query survey questions: %w", err)
	}
	defer rows.Close()
	var questions []models.SurveyQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate question rows: %w", err)
	}
	return questions, nil
}

func (s *PostgresStore) FindVisitForResponse(mobile string, answeredAt time.Time) (*models.Visit, error) {
	row := s.db.QueryRow(
		`SELECT `+visitColumns+` FROM visits
		 WHERE mobile = $1 AND survey_sent IS NOT NULL AND survey_sent <= $2
		 ORDER BY visit_time DESC LIMIT 1`,
		mobile, answeredAt,
	)
	v, err := scanVisit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query visit for response: %w", err)
	}
	return &v, nil
}

// UpsertQuestionResponse applies the most-recent-wins rule for the
// (visit, question) key, classifies the answer, and updates the visit
// roll-ups in the same transaction as the response write.
func (s *PostgresStore) UpsertQuestionResponse(q *models.SurveyQuestion, r models.SurveyQuestionResponse) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin response transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	var existingTime time.Time
	var lookupErr error
	if r.VisitID != nil {
		lookupErr = tx.QueryRow(
			`SELECT id, datetime FROM survey_question_responses WHERE question_id = $1 AND visit_id = $2`,
			q.ID, *r.VisitID,
		).Scan(&existingID, &existingTime)
	} else {
		lookupErr = tx.QueryRow(
			`SELECT id, datetime FROM survey_question_responses WHERE question_id = $1 AND visit_id IS NULL AND mobile = $2`,
			q.ID, r.Mobile,
		).Scan(&existingID, &existingTime)
	}
	if lookupErr != nil && lookupErr != sql.ErrNoRows {
		return fmt.Errorf("failed to query existing response: %w", lookupErr)
	}
	exists := lookupErr == nil
	if exists && !existingTime.Before(r.Datetime) {
		slog.Debug("PostgresStore.UpsertQuestionResponse: discarding stale answer", "question", q.ID, "existing", existingTime, "incoming", r.Datetime)
		return nil
	}

	var visit *models.Visit
	if r.VisitID != nil {
		row := tx.QueryRow(`SELECT `+visitColumns+` FROM visits WHERE id = $1`, *r.VisitID)
		v, err := scanVisit(row)
		if err != nil {
			return fmt.Errorf("failed to query visit %s: %w", *r.VisitID, err)
		}
		visit = &v

		var clinicCode sql.NullInt64
		if err := tx.QueryRow(`SELECT clinic_code FROM patients WHERE id = $1`, v.PatientID).Scan(&clinicCode); err != nil {
			return fmt.Errorf("failed to query patient clinic: %w", err)
		}
		r.ClinicCode = intPtr(clinicCode)
		r.ServiceCode = v.ServiceCode
	} else {
		r.ClinicCode = nil
		r.ServiceCode = nil
	}

	r.PositiveResponse = q.ClassifyAnswer(r.Response)

	if exists {
		_, err = tx.Exec(
			`UPDATE survey_question_responses
			 SET response = $1, datetime = $2, positive_response = $3, clinic_code = $4, service_code = $5
			 WHERE id = $6`,
			r.Response, r.Datetime, nullableBool(r.PositiveResponse),
			nullableInt(r.ClinicCode), nullableInt(r.ServiceCode), existingID,
		)
	} else {
		if r.ID == "" {
			r.ID = util.NewResponseID()
		}
		var visitID interface{}
		if r.VisitID != nil {
			visitID = *r.VisitID
		}
		_, err = tx.Exec(
			`INSERT INTO survey_question_responses (id, question_id, visit_id, clinic_code, service_code, mobile, response, datetime, positive_response, display_on_dashboard)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			r.ID, q.ID, visitID, nullableInt(r.ClinicCode), nullableInt(r.ServiceCode),
			r.Mobile, r.Response, r.Datetime, nullableBool(r.PositiveResponse), r.DisplayOnDashboard,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}

	if visit != nil {
		visit.ApplyResponseRollups(q, r.PositiveResponse)
		_, err = tx.Exec(
			`UPDATE visits SET survey_started = $1, survey_completed = $2, satisfied = $3 WHERE id = $4`,
			visit.SurveyStarted, visit.SurveyCompleted, nullableBool(visit.Satisfied), visit.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update visit roll-ups: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit response transaction: %w", err)
	}
	slog.Debug("PostgresStore.UpsertQuestionResponse", "question", q.ID, "visit_set", r.VisitID != nil, "updated", exists)
	return nil
}

func (s *PostgresStore) ListQuestionResponses() ([]models.SurveyQuestionResponse, error) {
	rows, err := s.db.Query(`SELECT ` + responseColumns + ` FROM survey_question_responses ORDER BY datetime ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()
	var responses []models.SurveyQuestionResponse
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response row: %w", err)
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate response rows: %w", err)
	}
	return responses, nil
}

func (s *PostgresStore) AddGenericFeedback(f models.GenericFeedback) (*models.GenericFeedback, error) {
	if f.ID == "" {
		f.ID = util.NewID("f_")
	}
	if f.Time.IsZero() {
		f.Time = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO generic_feedback (id, sender, clinic_code, message, time, display_on_dashboard)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.Sender, nullableInt(f.ClinicCode), f.Message, f.Time, f.DisplayOnDashboard,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert generic feedback: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) ListGenericFeedback() ([]models.GenericFeedback, error) {
	rows, err := s.db.Query(`SELECT id, sender, clinic_code, message, time, display_on_dashboard FROM generic_feedback ORDER BY time ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query generic feedback: %w", err)
	}
	defer rows.Close()
	var feedback []models.GenericFeedback
	for rows.Next() {
		var f models.GenericFeedback
		var clinicCode sql.NullInt64
		if err := rows.Scan(&f.ID, &f.Sender, &clinicCode, &f.Message, &f.Time, &f.DisplayOnDashboard); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		f.ClinicCode = intPtr(clinicCode)
		feedback = append(feedback, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback rows: %w", err)
	}
	return feedback, nil
}
