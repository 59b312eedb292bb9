package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/FeedbackPipe/internal/feedback"
	"github.com/BTreeMap/FeedbackPipe/internal/models"
	"github.com/BTreeMap/FeedbackPipe/internal/registration"
	"github.com/BTreeMap/FeedbackPipe/internal/store"
	"github.com/BTreeMap/FeedbackPipe/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	s := store.NewInMemoryStore()
	testutil.SeedReferenceData(t, s)
	return NewServer(s, registration.NewValidator(s), feedback.NewIntake(s)), s
}

func postForm(t *testing.T, srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func replyText(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var reply replyMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decoding reply %q: %v", rec.Body.String(), err)
	}
	return reply.Text
}

func TestRegistrationWebhookSuccess(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postForm(t, srv, "/hooks/registration", url.Values{
		"phone": {"+2348022112211"},
		"text":  {"1 08122233301 4000 5"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := "Entry received for patient with serial number 4000. Thank you."
	if got := replyText(t, rec); got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

func TestRegistrationWebhookAcceptsJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	body := `{"phone":"+2348022112211","text":"1 08122233301 4000 5"}`
	req := httptest.NewRequest(http.MethodPost, "/hooks/registration", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := replyText(t, rec); !strings.Contains(got, "4000") {
		t.Errorf("reply = %q", got)
	}
}

func TestRegistrationWebhookMalformed(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postForm(t, srv, "/hooks/registration", url.Values{
		"phone": {"+2348022112211"},
		"text":  {"1 08122233301"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, webhooks must answer 200", rec.Code)
	}
	if got := replyText(t, rec); got != models.MalformedMessage {
		t.Errorf("reply = %q", got)
	}
}

func TestRegistrationWebhookInvalidFields(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postForm(t, srv, "/hooks/registration", url.Values{
		"phone": {"+2348022112211"},
		"text":  {"15 8122233301 4000 5"},
	})
	want := "Error for serial 4000. There was a mistake in entering MOBILE, CLINIC. Please check and enter the whole registration code again."
	if got := replyText(t, rec); got != want {
		t.Errorf("reply = %q", got)
	}
}

func TestRegistrationWebhookDuplicate(t *testing.T) {
	srv, _ := newTestServer(t)
	form := url.Values{
		"phone": {"+2348022112211"},
		"text":  {"1 08122233301 4001 5"},
	}
	postForm(t, srv, "/hooks/registration", form)
	rec := postForm(t, srv, "/hooks/registration", form)
	if got := replyText(t, rec); got != models.DuplicateMessage {
		t.Errorf("reply = %q", got)
	}
}

func TestFeedbackWebhook(t *testing.T) {
	srv, s := newTestServer(t)
	rec := postForm(t, srv, "/hooks/feedback", url.Values{
		"phone":  {"+2348055556666"},
		"values": {`[{"category":"All Responses","value":"long wait","label":"General Feedback"}]`},
	})
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
	saved, _ := s.ListGenericFeedback()
	if len(saved) != 1 || saved[0].Message != "long wait" {
		t.Errorf("feedback = %+v", saved)
	}
}

func TestFeedbackWebhookBlockedSilently(t *testing.T) {
	srv, s := newTestServer(t)
	// Register a visit so the sender counts as a staff phone.
	postForm(t, srv, "/hooks/registration", url.Values{
		"phone": {"+2348055556666"},
		"text":  {"1 08122233301 4000 5"},
	})

	rec := postForm(t, srv, "/hooks/feedback", url.Values{
		"phone":  {"+2348055556666"},
		"values": {`[{"category":"All Responses","value":"hi","label":"General Feedback"}]`},
	})
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("status = %d, body = %q, blocked senders must not learn they are blocked", rec.Code, rec.Body.String())
	}
	saved, _ := s.ListGenericFeedback()
	if len(saved) != 0 {
		t.Errorf("blocked feedback persisted: %+v", saved)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "ok" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestResponsesEndpointEmptyList(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/responses", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want empty JSON array", got)
	}
}

func TestFeedbackListEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	s.AddGenericFeedback(models.GenericFeedback{Sender: "+2348055556666", Message: "hi"})
	req := httptest.NewRequest(http.MethodGet, "/feedback", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	var list []models.GenericFeedback
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(list) != 1 || list[0].Message != "hi" {
		t.Errorf("list = %+v", list)
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/hooks/registration", "/hooks/feedback"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s GET status = %d", path, rec.Code)
		}
	}
}
