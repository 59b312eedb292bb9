// Package api provides the HTTP surface of FeedbackPipe.
//
// It exposes the inbound webhooks the flow provider posts to (visit
// registration and generic feedback) and a small set of JSON read endpoints
// for dashboard consumers.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/FeedbackPipe/internal/feedback"
	"github.com/BTreeMap/FeedbackPipe/internal/registration"
	"github.com/BTreeMap/FeedbackPipe/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		if addr != "" {
			o.Addr = addr
		}
	}
}

// Server hosts the webhook and dashboard endpoints.
type Server struct {
	addr      string
	store     store.Store
	validator *registration.Validator
	intake    *feedback.Intake
}

// NewServer creates the API server over the given store and intake pipeline.
func NewServer(s store.Store, v *registration.Validator, in *feedback.Intake, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{addr: cfg.Addr, store: s, validator: v, intake: in}
}

// Handler returns the route table. Split out so tests can drive the handlers
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/hooks/registration", s.registrationHandler)
	mux.HandleFunc("/hooks/feedback", s.feedbackHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/responses", s.responsesHandler)
	mux.HandleFunc("/feedback", s.feedbackListHandler)
	return mux
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
