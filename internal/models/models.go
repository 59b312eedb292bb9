// Package models defines the core data structures for FeedbackPipe.
//
// It includes the clinic reference data, patient visits, the survey
// configuration, and the normalized survey responses shared across modules.
package models

import (
	"strings"
	"time"
)

// SurveyRolePatientFeedback is the role of the single survey that collects
// patient feedback after a clinic visit. At most one active survey carries it.
const SurveyRolePatientFeedback = "patient-feedback"

// QuestionType defines how a survey question is answered.
type QuestionType string

const (
	// QuestionTypeOpenEnded accepts free-form text answers.
	QuestionTypeOpenEnded QuestionType = "open-ended"
	// QuestionTypeMultipleChoice accepts one of the question's categories.
	QuestionTypeMultipleChoice QuestionType = "multiple-choice"
)

// Clinic is read-mostly reference data identifying a health clinic.
type Clinic struct {
	Code int    `json:"code"` // small positive integer used in staff SMS
	Name string `json:"name"`
	Slug string `json:"slug"`
	LGA  string `json:"lga"` // administrative region name
}

// Service is read-mostly reference data identifying a clinic service.
type Service struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// Patient belongs to a clinic and is identified by a clinic-local serial.
// The clinic may be nil for visits accepted under the lenient-pass policy.
type Patient struct {
	ID         string `json:"id"`
	ClinicCode *int   `json:"clinic_code"`
	Serial     string `json:"serial"`
	Mobile     string `json:"mobile"` // 11-digit local number, or "1" when none given
}

// Visit records one patient visit registered by clinic staff.
type Visit struct {
	ID          string     `json:"id"`
	PatientID   string     `json:"patient_id"`
	ServiceCode *int       `json:"service_code"`
	Mobile      string     `json:"mobile"` // 11-digit local number, or "1" when none given
	Sender      string     `json:"sender"` // staff phone in local format
	VisitTime   time.Time  `json:"visit_time"`
	WelcomeSent *time.Time `json:"welcome_sent"` // set when the survey job was enqueued
	SurveySent  *time.Time `json:"survey_sent"`  // set when the provider flow was started

	// Roll-ups derived from survey responses.
	SurveyStarted   bool  `json:"survey_started"`
	SurveyCompleted bool  `json:"survey_completed"`
	Satisfied       *bool `json:"satisfied"`
}

// HasMobile reports whether the visit carries a usable patient phone.
// Staff enter the sentinel "1" when the patient provided no phone.
func (v *Visit) HasMobile() bool {
	return v.Mobile != "" && v.Mobile != "1"
}

// VisitRegistrationError is a counter-style record of failed registrations,
// keyed by the staff sender phone. Cleared on the first clean success or when
// the lenient-pass policy fires.
type VisitRegistrationError struct {
	ID      string    `json:"id"`
	Sender  string    `json:"sender"`
	Message string    `json:"message"` // normalized registration text
	Time    time.Time `json:"time"`
}

// VisitRegistrationErrorLog is an append-only audit record of lenient-pass
// events.
type VisitRegistrationErrorLog struct {
	ID      string    `json:"id"`
	Sender  string    `json:"sender"`
	Kinds   string    `json:"kinds"` // comma-joined field kinds that were waived
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Survey is the configuration of one external flow.
type Survey struct {
	ID     string `json:"id"`
	FlowID string `json:"flow_id"` // identifier at the flow provider
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

// SurveyQuestion is one question of a survey, matched to provider answers by
// its label.
type SurveyQuestion struct {
	ID         string       `json:"id"`
	SurveyID   string       `json:"survey_id"`
	QuestionID string       `json:"question_id"` // stable external identifier
	Label      string       `json:"label"`       // unique within the survey
	Type       QuestionType `json:"question_type"`
	Categories string       `json:"categories"` // newline-separated answer options

	// Classification flags.
	LastNegative    bool `json:"last_negative"`    // last category is the negative answer
	ForSatisfaction bool `json:"for_satisfaction"` // answer feeds the visit's satisfied roll-up
	LastRequired    bool `json:"last_required"`    // answering completes the survey

	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	ReportOrder int        `json:"report_order"`
}

// CategoryList returns the question's categories in order, with surrounding
// whitespace stripped and blank lines dropped.
func (q *SurveyQuestion) CategoryList() []string {
	var cats []string
	for _, line := range strings.Split(q.Categories, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			cats = append(cats, line)
		}
	}
	return cats
}

// SurveyQuestionResponse is one normalized answer, at most one per
// (visit, question).
type SurveyQuestionResponse struct {
	ID         string  `json:"id"`
	QuestionID string  `json:"question_id"`
	VisitID    *string `json:"visit_id"`

	// Denormalized from the visit by the classifier; nil when no visit could
	// be identified.
	ClinicCode  *int `json:"clinic_code"`
	ServiceCode *int `json:"service_code"`

	// Mobile is the respondent phone in local format. It keys the upsert for
	// answers that could not be tied to a visit.
	Mobile string `json:"mobile"`

	Response           string    `json:"response"`
	Datetime           time.Time `json:"datetime"` // provider-reported answer time
	PositiveResponse   *bool     `json:"positive_response"`
	DisplayOnDashboard bool      `json:"display_on_dashboard"`
}

// GenericFeedback is a free-form feedback message with no associated visit.
type GenericFeedback struct {
	ID                 string    `json:"id"`
	Sender             string    `json:"sender"`
	ClinicCode         *int      `json:"clinic_code"`
	Message            string    `json:"message"`
	Time               time.Time `json:"time"`
	DisplayOnDashboard bool      `json:"display_on_dashboard"`
}
