// Package executor performs tool calls against REST APIs and JSON-RPC
// message endpoints, with credential injection and bounded retries.
package executor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
)

// maxResponseBodySize caps upstream response bodies.
const maxResponseBodySize = 10 * 1024 * 1024 // 10MB

// Default retry settings.
const (
	DefaultRESTRetries    = 2
	DefaultMessageRetries = 1
	RESTBackoffCap        = 6 * time.Second
	MessageBackoffCap     = 4 * time.Second
)

// ExecutionError is the terminal failure of a tool call after retries.
type ExecutionError struct {
	Tool     string
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Tool, e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying: 5xx and 429.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

// Backoff returns the delay before retry number attempt (1-based).
type Backoff func(attempt int) time.Duration

// ExponentialBackoff returns min(2^attempt seconds, limit).
func ExponentialBackoff(limit time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		if d > limit || d <= 0 {
			return limit
		}
		return d
	}
}

// Option configures an executor.
type Option func(*base)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(b *base) {
		b.httpClient = client
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *base) {
		if b.httpClient != nil && d > 0 {
			b.httpClient.Timeout = d
		}
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(b *base) {
		if n >= 0 {
			b.maxRetries = n
		}
	}
}

// WithBackoff replaces the backoff schedule.
func WithBackoff(fn Backoff) Option {
	return func(b *base) {
		b.backoff = fn
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(b *base) {
		b.logger = logger
	}
}

// base holds the transport and retry policy shared by both executors.
type base struct {
	kind       string
	httpClient *http.Client
	maxRetries int
	backoff    Backoff
	logger     *slog.Logger
}

func newBase(kind string, retries int, backoffCap time.Duration, opts []Option) base {
	b := base{
		kind: kind,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxRetries: retries,
		backoff:    ExponentialBackoff(backoffCap),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// retry runs call until it succeeds, fails terminally, or retries run out.
func (b *base) retry(ctx context.Context, toolName string, payload map[string]any, call func(context.Context) (any, error)) (any, error) {
	attempt := 0
	for {
		attempt++
		result, err := call(ctx)
		if err == nil {
			return result, nil
		}
		if attempt > b.maxRetries || !isRetryable(ctx, err) {
			return nil, &ExecutionError{Tool: toolName, Attempts: attempt, Err: err}
		}

		delay := b.backoff(attempt)
		b.logger.Warn(b.kind+" call failed, retrying",
			"tool", toolName,
			"attempt", attempt,
			"max_retries", b.maxRetries,
			"backoff", delay,
			"error", err,
			"payload", credential.Redact(payload),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &ExecutionError{Tool: toolName, Attempts: attempt, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

// send executes req and returns the limited body. Non-2xx responses are
// returned as *StatusError.
func (b *base) send(req *http.Request) (*http.Response, []byte, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, body, nil
}
