package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/BTreeMap/FeedbackPipe/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullableTime(p *time.Time) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullableBool(p *bool) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func boolPtrOf(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	b := n.Bool
	return &b
}

// visitColumns is the canonical column list scanned by scanVisit.
const visitColumns = `id, patient_id, service_code, mobile, sender, visit_time, welcome_sent, survey_sent, survey_started, survey_completed, satisfied`

// aliasedVisitColumns qualifies visitColumns with a table alias for joins.
func aliasedVisitColumns(alias string) string {
	cols := strings.Split(visitColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func scanVisit(row rowScanner) (models.Visit, error) {
	var v models.Visit
	var serviceCode sql.NullInt64
	var welcomeSent, surveySent sql.NullTime
	var satisfied sql.NullBool
	err := row.Scan(
		&v.ID, &v.PatientID, &serviceCode, &v.Mobile, &v.Sender, &v.VisitTime,
		&welcomeSent, &surveySent, &v.SurveyStarted, &v.SurveyCompleted, &satisfied,
	)
	if err != nil {
		return v, err
	}
	v.ServiceCode = intPtr(serviceCode)
	v.WelcomeSent = timePtr(welcomeSent)
	v.SurveySent = timePtr(surveySent)
	v.Satisfied = boolPtrOf(satisfied)
	return v, nil
}

// questionColumns is the canonical column list scanned by scanQuestion.
const questionColumns = `id, survey_id, question_id, label, question_type, categories, last_negative, for_satisfaction, last_required, start_date, end_date, report_order`

func scanQuestion(row rowScanner) (models.SurveyQuestion, error) {
	var q models.SurveyQuestion
	var qType string
	var startDate, endDate sql.NullTime
	err := row.Scan(
		&q.ID, &q.SurveyID, &q.QuestionID, &q.Label, &qType, &q.Categories,
		&q.LastNegative, &q.ForSatisfaction, &q.LastRequired,
		&startDate, &endDate, &q.ReportOrder,
	)
	if err != nil {
		return q, err
	}
	q.Type = models.QuestionType(qType)
	q.StartDate = timePtr(startDate)
	q.EndDate = timePtr(endDate)
	return q, nil
}

// responseColumns is the canonical column list scanned by scanResponse.
const responseColumns = `id, question_id, visit_id, clinic_code, service_code, mobile, response, datetime, positive_response, display_on_dashboard`

func scanResponse(row rowScanner) (models.SurveyQuestionResponse, error) {
	var r models.SurveyQuestionResponse
	var visitID sql.NullString
	var clinicCode, serviceCode sql.NullInt64
	var positive sql.NullBool
	err := row.Scan(
		&r.ID, &r.QuestionID, &visitID, &clinicCode, &serviceCode, &r.Mobile,
		&r.Response, &r.Datetime, &positive, &r.DisplayOnDashboard,
	)
	if err != nil {
		return r, err
	}
	if visitID.Valid {
		r.VisitID = &visitID.String
	}
	r.ClinicCode = intPtr(clinicCode)
	r.ServiceCode = intPtr(serviceCode)
	r.PositiveResponse = boolPtrOf(positive)
	return r, nil
}

// jobColumns is the canonical column list scanned by scanJob.
const jobColumns = `id, kind, run_at, payload_json, status, attempt, max_attempts, last_error, locked_at, dedupe_key, created_at, updated_at`

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}
