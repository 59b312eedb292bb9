// Package store provides storage backends for FeedbackPipe.
//
// This file implements an in-memory store used by tests and local
// experimentation. It mirrors the SQL backends' semantics, including the
// conditional lifecycle updates and the response upsert rules.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/FeedbackPipe/internal/models"
	"github.com/BTreeMap/FeedbackPipe/internal/util"
)

type InMemoryStore struct {
	mu sync.Mutex

	clinics       map[int]models.Clinic
	services      map[int]models.Service
	blockedPhones map[string]bool
	patients      map[string]models.Patient
	visits        map[string]models.Visit
	regErrors     []models.VisitRegistrationError
	regErrorLogs  []models.VisitRegistrationErrorLog
	surveys       map[string]models.Survey
	questions     map[string]models.SurveyQuestion
	responses     map[string]models.SurveyQuestionResponse
	feedback      []models.GenericFeedback
	jobs          map[string]Job
}

// Compile-time checks that InMemoryStore implements the persistence contracts.
var (
	_ Store   = (*InMemoryStore)(nil)
	_ JobRepo = (*InMemoryStore)(nil)
)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		clinics:       make(map[int]models.Clinic),
		services:      make(map[int]models.Service),
		blockedPhones: make(map[string]bool),
		patients:      make(map[string]models.Patient),
		visits:        make(map[string]models.Visit),
		surveys:       make(map[string]models.Survey),
		questions:     make(map[string]models.SurveyQuestion),
		responses:     make(map[string]models.SurveyQuestionResponse),
		jobs:          make(map[string]Job),
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) AddClinic(c models.Clinic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clinics[c.Code] = c
	return nil
}

func (s *InMemoryStore) GetClinicByCode(code int) (*models.Clinic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clinics[code]; ok {
		return &c, nil
	}
	return nil, nil
}

func (s *InMemoryStore) AddService(sv models.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[sv.Code] = sv
	return nil
}

func (s *InMemoryStore) GetServiceByCode(code int) (*models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sv, ok := s.services[code]; ok {
		return &sv, nil
	}
	return nil, nil
}

func (s *InMemoryStore) AddBlockedPhone(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockedPhones[phone] = true
	return nil
}

func (s *InMemoryStore) IsBlockedPhone(phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockedPhones[phone], nil
}

func (s *InMemoryStore) CountRegistrationErrors(sender string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.regErrors {
		if e.Sender == sender {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) AddRegistrationError(e models.VisitRegistrationError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = util.NewID("re_")
	}
	s.regErrors = append(s.regErrors, e)
	return nil
}

func (s *InMemoryStore) ClearRegistrationErrors(sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.regErrors[:0]
	for _, e := range s.regErrors {
		if e.Sender != sender {
			kept = append(kept, e)
		}
	}
	s.regErrors = kept
	return nil
}

func (s *InMemoryStore) AddRegistrationErrorLog(l models.VisitRegistrationErrorLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = util.NewID("rl_")
	}
	s.regErrorLogs = append(s.regErrorLogs, l)
	return nil
}

// RegistrationErrorLogs returns the lenient-pass audit trail (for tests).
func (s *InMemoryStore) RegistrationErrorLogs() []models.VisitRegistrationErrorLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := make([]models.VisitRegistrationErrorLog, len(s.regErrorLogs))
	copy(logs, s.regErrorLogs)
	return logs
}

func sameClinic(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *InMemoryStore) UpsertPatient(clinicCode *int, serial, mobile string) (*models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.patients {
		if p.Serial == serial && sameClinic(p.ClinicCode, clinicCode) {
			p.Mobile = mobile
			s.patients[id] = p
			return &p, nil
		}
	}
	p := models.Patient{ID: util.NewPatientID(), ClinicCode: clinicCode, Serial: serial, Mobile: mobile}
	s.patients[p.ID] = p
	return &p, nil
}

func (s *InMemoryStore) GetPatient(id string) (*models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.patients[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *InMemoryStore) CreateVisit(v models.Visit) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == "" {
		v.ID = util.NewVisitID()
	}
	if v.VisitTime.IsZero() {
		v.VisitTime = time.Now()
	}
	s.visits[v.ID] = v
	return &v, nil
}

func (s *InMemoryStore) GetVisit(id string) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.visits[id]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *InMemoryStore) FindRecentVisit(clinicCode *int, serial, mobile string, since time.Time) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Visit
	for _, v := range s.visits {
		if v.Mobile != mobile || !v.VisitTime.After(since) {
			continue
		}
		p, ok := s.patients[v.PatientID]
		if !ok || p.Serial != serial || !sameClinic(p.ClinicCode, clinicCode) {
			continue
		}
		if found == nil || v.VisitTime.After(found.VisitTime) {
			visit := v
			found = &visit
		}
	}
	return found, nil
}

func (s *InMemoryStore) SenderHasVisit(sender string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.visits {
		if v.Sender == sender {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) ListVisitsAwaitingWelcome(limit int) ([]models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var visits []models.Visit
	for _, v := range s.visits {
		if v.WelcomeSent == nil && v.Mobile != "" && !s.blockedPhones[v.Sender] {
			visits = append(visits, v)
		}
	}
	sort.Slice(visits, func(i, j int) bool { return visits[i].VisitTime.Before(visits[j].VisitTime) })
	if limit > 0 && len(visits) > limit {
		visits = visits[:limit]
	}
	return visits, nil
}

func (s *InMemoryStore) MarkVisitWelcomed(id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[id]
	if !ok || v.WelcomeSent != nil {
		return false, nil
	}
	v.WelcomeSent = &at
	s.visits[id] = v
	return true, nil
}

func (s *InMemoryStore) MarkVisitSurveySent(id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[id]
	if !ok || v.SurveySent != nil {
		return false, nil
	}
	v.SurveySent = &at
	s.visits[id] = v
	return true, nil
}

func (s *InMemoryStore) AddSurvey(sv models.Survey) (*models.Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sv.ID == "" {
		sv.ID = util.NewID("s_")
	}
	s.surveys[sv.ID] = sv
	return &sv, nil
}

func (s *InMemoryStore) GetActiveSurveyByRole(role string) (*models.Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sv := range s.surveys {
		if sv.Role == role && sv.Active {
			return &sv, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ListActiveSurveys() ([]models.Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var surveys []models.Survey
	for _, sv := range s.surveys {
		if sv.Active {
			surveys = append(surveys, sv)
		}
	}
	return surveys, nil
}

func (s *InMemoryStore) AddSurveyQuestion(q models.SurveyQuestion) (*models.SurveyQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == "" {
		q.ID = util.NewID("q_")
	}
	s.questions[q.ID] = q
	return &q, nil
}

func (s *InMemoryStore) ListSurveyQuestions(surveyID string) ([]models.SurveyQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var questions []models.SurveyQuestion
	for _, q := range s.questions {
		if q.SurveyID == surveyID {
			questions = append(questions, q)
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].ReportOrder < questions[j].ReportOrder })
	return questions, nil
}

func (s *InMemoryStore) FindVisitForResponse(mobile string, answeredAt time.Time) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Visit
	for _, v := range s.visits {
		if v.Mobile != mobile || v.SurveySent == nil || v.SurveySent.After(answeredAt) {
			continue
		}
		if found == nil || v.VisitTime.After(found.VisitTime) {
			visit := v
			found = &visit
		}
	}
	return found, nil
}

func (s *InMemoryStore) UpsertQuestionResponse(q *models.SurveyQuestion, r models.SurveyQuestionResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *models.SurveyQuestionResponse
	for id, cur := range s.responses {
		if cur.QuestionID != q.ID {
			continue
		}
		if r.VisitID != nil {
			if cur.VisitID != nil && *cur.VisitID == *r.VisitID {
				c := s.responses[id]
				existing = &c
				break
			}
		} else if cur.VisitID == nil && cur.Mobile == r.Mobile {
			c := s.responses[id]
			existing = &c
			break
		}
	}
	if existing != nil && !existing.Datetime.Before(r.Datetime) {
		return nil
	}

	r.QuestionID = q.ID
	if r.VisitID != nil {
		v := s.visits[*r.VisitID]
		if p, ok := s.patients[v.PatientID]; ok {
			r.ClinicCode = p.ClinicCode
		}
		r.ServiceCode = v.ServiceCode
	} else {
		r.ClinicCode = nil
		r.ServiceCode = nil
	}
	r.PositiveResponse = q.ClassifyAnswer(r.Response)

	if existing != nil {
		r.ID = existing.ID
	} else if r.ID == "" {
		r.ID = util.NewResponseID()
	}
	s.responses[r.ID] = r

	if r.VisitID != nil {
		v := s.visits[*r.VisitID]
		v.ApplyResponseRollups(q, r.PositiveResponse)
		s.visits[v.ID] = v
	}
	return nil
}

func (s *InMemoryStore) ListQuestionResponses() ([]models.SurveyQuestionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var responses []models.SurveyQuestionResponse
	for _, r := range s.responses {
		responses = append(responses, r)
	}
	sort.Slice(responses, func(i, j int) bool { return responses[i].Datetime.Before(responses[j].Datetime) })
	return responses, nil
}

func (s *InMemoryStore) AddGenericFeedback(f models.GenericFeedback) (*models.GenericFeedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = util.NewID("f_")
	}
	if f.Time.IsZero() {
		f.Time = time.Now()
	}
	s.feedback = append(s.feedback, f)
	return &f, nil
}

func (s *InMemoryStore) ListGenericFeedback() ([]models.GenericFeedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feedback := make([]models.GenericFeedback, len(s.feedback))
	copy(feedback, s.feedback)
	return feedback, nil
}
