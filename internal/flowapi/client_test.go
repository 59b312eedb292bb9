package flowapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(WithBaseURL(srv.URL), WithToken("test-token"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, srv
}

func TestGetRunsFollowsPagination(t *testing.T) {
	var srv *httptest.Server
	secondPage := false
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Query().Get("cursor") == "2" {
			secondPage = true
			json.NewEncoder(w).Encode(map[string]any{
				"results": []Run{{Phone: "+2348011111111"}},
				"next":    "",
			})
			return
		}
		if got := r.URL.Query().Get("flow"); got != "flow-1" {
			t.Errorf("flow query = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []Run{{Phone: "+2348122233301"}},
			"next":    srv.URL + "/runs?cursor=2",
		})
	}))
	srv = server

	runs, err := client.GetRuns(context.Background(), "flow-1")
	if err != nil {
		t.Fatalf("GetRuns: %v", err)
	}
	if !secondPage {
		t.Fatal("pagination link was not followed")
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].Phone != "+2348122233301" || runs[1].Phone != "+2348011111111" {
		t.Errorf("runs out of order: %+v", runs)
	}
}

func TestGetRunsDecodesValues(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []Run{{
				Phone: "+2348122233301",
				Values: []RunValue{{
					Label:    "Satisfied",
					Category: "Yes",
					Value:    "yes",
					Time:     "2026-08-30T10:15:00Z",
				}},
			}},
		})
	}))

	runs, err := client.GetRuns(context.Background(), "flow-1")
	if err != nil {
		t.Fatalf("GetRuns: %v", err)
	}
	if len(runs) != 1 || len(runs[0].Values) != 1 {
		t.Fatalf("unexpected shape: %+v", runs)
	}
	v := runs[0].Values[0]
	if v.Label != "Satisfied" || v.Category != "Yes" || v.Value != "yes" {
		t.Errorf("value mismatch: %+v", v)
	}
}

func TestStartFlowPostsContact(t *testing.T) {
	var gotPath, gotContact string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotContact = body["contact"]
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.StartFlow(context.Background(), "flow-1", "+2348122233301"); err != nil {
		t.Fatalf("StartFlow: %v", err)
	}
	if gotPath != "/flows/flow-1/start" {
		t.Errorf("path = %q", gotPath)
	}
	if gotContact != "+2348122233301" {
		t.Errorf("contact = %q", gotContact)
	}
}

func TestStatusErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusForbidden, ErrPermissionDenied},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusInternalServerError, ErrProvider},
	}
	for _, tc := range cases {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		err := client.StartFlow(context.Background(), "flow-1", "+2348122233301")
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
		if !errors.Is(err, ErrProvider) {
			t.Errorf("status %d: error should wrap ErrProvider, got %v", tc.status, err)
		}
	}
}

func TestNewClientRequiresConfig(t *testing.T) {
	if _, err := NewClient(WithToken("t")); err == nil {
		t.Error("expected error without base URL")
	}
	if _, err := NewClient(WithBaseURL("http://example.com")); err == nil {
		t.Error("expected error without token")
	}
}
