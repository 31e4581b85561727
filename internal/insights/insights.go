// Package insights is the client side of the external narrative service
// that writes deal commentary from computed scores.
package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mbd888/dealscope/internal/circuitbreaker"
	"github.com/mbd888/dealscope/internal/metrics"
	"github.com/mbd888/dealscope/internal/retry"
	"github.com/mbd888/dealscope/internal/scoring"
)

const maxResponseSize = 1 << 20

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("insights: generator not configured")

// Request is what is sent to the narrative service.
type Request struct {
	DealID   string                     `json:"dealId" binding:"required"`
	DealName string                     `json:"dealName,omitempty"`
	Language string                     `json:"language,omitempty"`
	Scores   []scoring.CompanyRiskScore `json:"scores" binding:"required,min=1"`
	Modules  []scoring.ModuleSummary    `json:"modules,omitempty"`
}

// Insight is the generated narrative.
type Insight struct {
	Summary     string    `json:"summary"`
	Highlights  []string  `json:"highlights,omitempty"`
	Risks       []string  `json:"risks,omitempty"`
	Model       string    `json:"model,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Generator produces an Insight for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Insight, error)
}

// Disabled is the Generator used when no service is configured.
type Disabled struct{}

func (Disabled) Generate(context.Context, Request) (*Insight, error) {
	return nil, ErrNotConfigured
}

// StatusError is a non-2xx response from the service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("insights: service returned HTTP %d", e.Code)
}

// HTTPGenerator POSTs requests as JSON to a fixed endpoint. 5xx and transport
// errors are retried and count against the circuit for the endpoint's host;
// 4xx responses are returned immediately.
type HTTPGenerator struct {
	endpoint string
	host     string
	client   *http.Client
	policy   retry.Policy
	breaker  *circuitbreaker.Breaker
	logger   *slog.Logger
}

// Option configures an HTTPGenerator.
type Option func(*HTTPGenerator)

// WithRetryPolicy replaces retry.DefaultPolicy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(g *HTTPGenerator) { g.policy = p }
}

// WithBreaker replaces the default 5-failure / 30s breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(g *HTTPGenerator) { g.breaker = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *HTTPGenerator) { g.logger = l }
}

// NewHTTPGenerator validates endpoint and returns a generator.
func NewHTTPGenerator(endpoint string, timeout time.Duration, opts ...Option) (*HTTPGenerator, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("insights: invalid endpoint %q", endpoint)
	}
	g := &HTTPGenerator{
		endpoint: endpoint,
		host:     u.Host,
		client:   &http.Client{Timeout: timeout},
		policy:   retry.DefaultPolicy(),
		breaker:  circuitbreaker.New(5, 30*time.Second),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		g.logger.Warn("insights circuit changed", "host", key, "from", from.String(), "to", to.String())
	})
	if g.policy.OnRetry == nil {
		g.policy.OnRetry = func(attempt int, err error, sleep time.Duration) {
			g.logger.Warn("insights request failed, retrying", "attempt", attempt, "error", err, "sleep", sleep)
		}
	}
	return g, nil
}

func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (*Insight, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("insights: marshal request: %w", err)
	}

	var out *Insight
	err = retry.Do(ctx, g.policy, func(ctx context.Context) error {
		err := g.breaker.Execute(g.host, func() error {
			ins, err := g.post(ctx, body)
			if err != nil {
				return err
			}
			out = ins
			return nil
		}, countable)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return retry.Permanent(err)
		}
		return err
	})

	metrics.InsightsRequestsTotal.WithLabelValues(result(err)).Inc()
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *HTTPGenerator) post(ctx context.Context, body []byte) (*Insight, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("insights: create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("insights: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("insights: read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode >= 300:
		return nil, retry.Permanent(&StatusError{Code: resp.StatusCode, Body: string(respBody)})
	}

	var ins Insight
	if err := json.Unmarshal(respBody, &ins); err != nil {
		return nil, retry.Permanent(fmt.Errorf("insights: decode response: %w", err))
	}
	if ins.GeneratedAt.IsZero() {
		ins.GeneratedAt = time.Now().UTC()
	}
	return &ins, nil
}

// countable keeps client-side mistakes from opening the circuit.
func countable(err error) bool {
	return !retry.IsPermanent(err)
}

func result(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "circuit_open"
	case errors.As(err, &se) && se.Code < 500:
		return "rejected"
	default:
		return "error"
	}
}
