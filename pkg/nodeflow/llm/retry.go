package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"
)

// RetryConfig configures how a RetryClient retries failed calls.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the wait after each attempt.
	BackoffFactor float64

	// Jitter is the random spread applied to each wait (0.0-1.0).
	Jitter float64

	// Retryable overrides IsTransient when set.
	Retryable func(error) bool
}

// DefaultRetry is the standard retry configuration.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: time.Second,
	MaxBackoff:     30 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry disables retries.
var NoRetry = RetryConfig{MaxAttempts: 1}

// TransientError marks an error as worth retrying.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so IsTransient reports true.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// transientMarkers are provider message fragments for rate limiting and
// temporary server trouble.
var transientMarkers = []string{
	"429", "502", "503", "504",
	"rate limit", "too many requests", "overloaded",
	"service unavailable", "connection reset", "connection refused",
}

// IsTransient reports whether a retry will likely help. Cancellation is
// never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// RetryError reports the last failure after retries gave up.
type RetryError struct {
	Err      error
	Attempts int
}

// Error implements the error interface.
func (e *RetryError) Error() string {
	return fmt.Sprintf("%v (attempts: %d)", e.Err, e.Attempts)
}

// Unwrap returns the last failure.
func (e *RetryError) Unwrap() error { return e.Err }

// RetryClient wraps a Client and retries transient failures of Complete
// and of opening a Stream. Errors arriving inside an open stream are not
// retried, since chunks may already have been consumed.
type RetryClient struct {
	next   Client
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetryClient wraps next. A nil logger uses slog.Default().
func NewRetryClient(next Client, cfg RetryConfig, logger *slog.Logger) *RetryClient {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryClient{next: next, cfg: cfg, logger: logger}
}

// Complete implements Client.
func (c *RetryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return withRetry(ctx, c, "complete", func(ctx context.Context) (*CompletionResponse, error) {
		return c.next.Complete(ctx, req)
	})
}

// Stream implements Client.
func (c *RetryClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	return withRetry(ctx, c, "stream", func(ctx context.Context) (<-chan StreamChunk, error) {
		return c.next.Stream(ctx, req)
	})
}

func withRetry[T any](ctx context.Context, c *RetryClient, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	retryable := c.cfg.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	backoff := c.cfg.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !retryable(err) {
			return zero, err
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		wait := jittered(backoff, c.cfg.Jitter)
		c.logger.Warn("llm call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
		backoff = time.Duration(float64(backoff) * c.cfg.BackoffFactor)
		if c.cfg.MaxBackoff > 0 && backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
	return zero, &RetryError{Err: lastErr, Attempts: c.cfg.MaxAttempts}
}

func jittered(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	spread := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + spread)
}

var _ Client = (*RetryClient)(nil)
