// Package api: webhook and dashboard endpoint handlers.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/FeedbackPipe/internal/models"
	"github.com/BTreeMap/FeedbackPipe/internal/registration"
)

// webhookParams is the provider's inbound payload. The provider can be
// configured for form or JSON posts, so both are accepted.
type webhookParams struct {
	Phone  string `json:"phone"`
	Text   string `json:"text"`
	Values string `json:"values"`
}

func decodeWebhook(r *http.Request) (webhookParams, error) {
	var p webhookParams
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(r.Body).Decode(&p)
		return p, err
	}
	if err := r.ParseForm(); err != nil {
		return p, err
	}
	p.Phone = r.FormValue("phone")
	p.Text = r.FormValue("text")
	p.Values = r.FormValue("values")
	return p, nil
}

// registrationHandler receives the staff registration SMS relayed by the
// provider. It always answers 200 with the surface message; validation
// failures are part of the SMS conversation, not HTTP errors.
func (s *Server) registrationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, err := decodeWebhook(r)
	if err != nil {
		slog.Warn("Server.registrationHandler: failed to decode webhook", "error", err)
		writeJSONResponse(w, http.StatusOK, replyMessage{Text: models.MalformedMessage})
		return
	}
	slog.Debug("Server.registrationHandler: registration received", "phone", p.Phone)

	reg, err := registration.Parse(p.Text)
	if err != nil {
		writeJSONResponse(w, http.StatusOK, replyMessage{Text: surfaceOf(err)})
		return
	}
	visit, err := s.validator.Register(reg, p.Phone)
	if err != nil {
		var regErr *models.RegistrationError
		if errors.As(err, &regErr) {
			writeJSONResponse(w, http.StatusOK, replyMessage{Text: regErr.Surface()})
			return
		}
		slog.Error("Server.registrationHandler: registration failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorReply("registration failed"))
		return
	}
	slog.Info("Server.registrationHandler: visit registered", "visit", visit.ID)
	writeJSONResponse(w, http.StatusOK, replyMessage{Text: models.SuccessMessage(reg.Serial)})
}

// feedbackHandler receives generic feedback collected by the provider flow.
// Blocked and malformed submissions are dropped without telling the sender.
func (s *Server) feedbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, err := decodeWebhook(r)
	if err != nil {
		slog.Warn("Server.feedbackHandler: failed to decode webhook", "error", err)
		writeText(w, http.StatusOK, "ok")
		return
	}

	if _, err := s.intake.Submit(p.Phone, p.Values); err != nil {
		var regErr *models.RegistrationError
		if errors.As(err, &regErr) {
			slog.Debug("Server.feedbackHandler: submission dropped", "kind", regErr.Kind)
			writeText(w, http.StatusOK, "ok")
			return
		}
		slog.Error("Server.feedbackHandler: intake failed", "error", err)
		writeText(w, http.StatusInternalServerError, "error")
		return
	}
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// responsesHandler lists the classified survey responses for dashboards.
func (s *Server) responsesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	responses, err := s.store.ListQuestionResponses()
	if err != nil {
		slog.Error("Server.responsesHandler: listing failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorReply("listing responses failed"))
		return
	}
	if responses == nil {
		responses = []models.SurveyQuestionResponse{}
	}
	writeJSONResponse(w, http.StatusOK, responses)
}

// feedbackListHandler lists the generic feedback for dashboards.
func (s *Server) feedbackListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	feedback, err := s.store.ListGenericFeedback()
	if err != nil {
		slog.Error("Server.feedbackListHandler: listing failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorReply("listing feedback failed"))
		return
	}
	if feedback == nil {
		feedback = []models.GenericFeedback{}
	}
	writeJSONResponse(w, http.StatusOK, feedback)
}

// surfaceOf renders an error as its SMS surface message, falling back to the
// malformed message for anything untyped.
func surfaceOf(err error) string {
	var regErr *models.RegistrationError
	if errors.As(err, &regErr) {
		return regErr.Surface()
	}
	return models.MalformedMessage
}
