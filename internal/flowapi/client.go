// Package flowapi is the client for the external SMS-flow provider.
//
// The provider hosts scripted SMS conversations ("flows"). FeedbackPipe
// starts a flow per surveyed patient and periodically pulls the completed
// runs back. The contract is narrow: a paginated runs listing and a
// start-flow call, both bearer-token authenticated.
package flowapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds every provider HTTP call.
const DefaultTimeout = 30 * time.Second

// Provider error kinds. Everything except the three mapped client errors is
// ErrProvider, which the job runner treats as retryable.
var (
	ErrProvider         = errors.New("flow provider error")
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", ErrProvider)
	ErrNotFound         = fmt.Errorf("%w: not found", ErrProvider)
	ErrBadRequest       = fmt.Errorf("%w: bad request", ErrProvider)
)

// RunValue is one answered question inside a run. Category carries
// overloaded meanings: concrete option labels, "Other", "All Responses",
// "Stop" and "Error".
type RunValue struct {
	Label    string `json:"label"`
	Category string `json:"category"`
	Value    string `json:"value"`
	Time     string `json:"time"` // ISO 8601
}

// Run is one execution of a flow for one respondent.
type Run struct {
	Phone  string     `json:"phone"`
	Values []RunValue `json:"values"`
}

// runsPage is one page of the provider's runs listing.
type runsPage struct {
	Results []Run  `json:"results"`
	Next    string `json:"next"`
}

// Opts holds configuration options for the flow provider client.
type Opts struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Option defines a configuration option for the flow provider client.
type Option func(*Opts)

// WithBaseURL sets the provider API base URL.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithToken sets the bearer token.
func WithToken(t string) Option {
	return func(o *Opts) { o.Token = t }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client talks to the flow provider. Each call opens its own request; no
// session state is kept between calls.
type Client struct {
	http *resty.Client
}

// NewClient creates a flow provider client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("flow provider base URL not set")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("flow provider token not set")
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.Token).
		SetHeader("Accept", "application/json")

	slog.Debug("flowapi.NewClient: provider client configured", "base_url", cfg.BaseURL, "timeout", cfg.Timeout)
	return &Client{http: httpClient}, nil
}

// GetRuns fetches all runs for a flow, following pagination links until
// exhausted.
func (c *Client) GetRuns(ctx context.Context, flowID string) ([]Run, error) {
	var runs []Run
	next := ""
	for page := 0; ; page++ {
		var body runsPage
		req := c.http.R().SetContext(ctx).SetResult(&body)

		var resp *resty.Response
		var err error
		if next == "" {
			resp, err = req.SetQueryParam("flow", flowID).Get("/runs")
		} else {
			// The provider hands back absolute pagination URLs.
			resp, err = req.Get(next)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: fetching runs for flow %s: %v", ErrProvider, flowID, err)
		}
		if err := statusError(resp); err != nil {
			return nil, fmt.Errorf("fetching runs for flow %s: %w", flowID, err)
		}

		runs = append(runs, body.Results...)
		if body.Next == "" {
			slog.Debug("flowapi.GetRuns: pagination exhausted", "flow", flowID, "pages", page+1, "runs", len(runs))
			return runs, nil
		}
		next = body.Next
	}
}

// StartFlow starts the flow for one contact phone.
func (c *Client) StartFlow(ctx context.Context, flowID, contact string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"contact": contact}).
		Post(fmt.Sprintf("/flows/%s/start", flowID))
	if err != nil {
		return fmt.Errorf("%w: starting flow %s: %v", ErrProvider, flowID, err)
	}
	if err := statusError(resp); err != nil {
		return fmt.Errorf("starting flow %s: %w", flowID, err)
	}
	slog.Debug("flowapi.StartFlow: flow started", "flow", flowID, "contact", contact)
	return nil
}

// statusError maps a non-2xx provider response to a typed error.
func statusError(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	switch resp.StatusCode() {
	case http.StatusForbidden:
		return ErrPermissionDenied
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		return fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode())
	}
}
