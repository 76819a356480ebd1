// Package scoring provides the HTTP client for the external scoring and
// explanation service.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/riskdesk/internal/domain"
	"github.com/opensource-finance/riskdesk/internal/metrics"
)

var tracer = otel.Tracer("riskdesk-scoring")

// RemoteError is a non-2xx answer from the scoring service.
type RemoteError struct {
	Endpoint string
	Status   int
	Detail   string
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Endpoint, e.Status)
}

// Detail returns the remote detail message carried by err, if any.
func Detail(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Detail
	}
	return ""
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// Client implements domain.ScoringService over HTTP/JSON.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ domain.ScoringService = (*Client)(nil)

// NewClient creates a client for the scoring service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig creates a client from configuration.
func NewClientFromConfig(cfg domain.ScoringConfig) *Client {
	var opts []Option
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.Timeout)*time.Second))
	}
	return NewClient(cfg.BaseURL, opts...)
}

// Transactions fetches the scored feed.
func (c *Client) Transactions(ctx context.Context, limit int) ([]domain.ScoredTransaction, error) {
	path := "/transactions"
	if limit > 0 {
		path += "?" + url.Values{"limit": []string{strconv.Itoa(limit)}}.Encode()
	}

	var txs []domain.ScoredTransaction
	if err := c.do(ctx, http.MethodGet, path, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// Metrics fetches aggregate model-health fields.
func (c *Client) Metrics(ctx context.Context) (domain.ModelMetrics, error) {
	var m domain.ModelMetrics
	if err := c.do(ctx, http.MethodGet, "/metrics", nil, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Predict submits {data, threshold} to /predict.
func (c *Client) Predict(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationResult, error) {
	var res domain.SimulationResult
	if err := c.do(ctx, http.MethodPost, "/predict", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Explain submits {data, risk_score, prediction} to /explain.
func (c *Client) Explain(ctx context.Context, req domain.ExplainRequest) (*domain.Explanation, error) {
	var exp domain.Explanation
	if err := c.do(ctx, http.MethodPost, "/explain", req, &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

// Health checks the scoring service.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// do performs one request. No retries: simulation failures are reported to
// the analyst as they happen.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	endpoint := strings.SplitN(path, "?", 2)[0]

	ctx, span := tracer.Start(ctx, "scoring "+method+" "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("scoring.endpoint", endpoint),
		),
	)
	defer span.End()

	start := time.Now()
	err := c.roundTrip(ctx, method, path, endpoint, body, out)
	metrics.ObserveScoringCall(endpoint, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Detail:   parseDetail(data),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// parseDetail extracts {"detail": "..."} or {"error": "..."} from an error body.
func parseDetail(data []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}

	if len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			return s
		}
		// FastAPI validation errors carry a list
		return string(body.Detail)
	}
	return body.Error
}
