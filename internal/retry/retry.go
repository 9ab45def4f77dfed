package retry

import (
	"context"
	"math"
	"time"
)

// Config holds the configuration for retry logic.
type Config struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultConfig returns a sensible default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// calculateDelay computes the delay for the given attempt using exponential backoff.
func (c Config) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(c.BaseDelay) * math.Pow(c.BackoffMultiple, float64(attempt)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// Attempt is one try of an HTTP call. It returns the response body, the
// HTTP status code, and an error for transport failures and non-2xx
// responses alike (transport failures carry status 0).
type Attempt func() (body []byte, statusCode int, err error)

// Retryable reports whether a failed attempt should be retried.
type Retryable func(statusCode int, err error) bool

// OnServerErrors retries transport errors, 429s and 5xx responses.
func OnServerErrors(statusCode int, err error) bool {
	return statusCode == 0 || statusCode == 429 || statusCode >= 500
}

// Do runs the attempt with exponential backoff until it succeeds, the error
// is not retryable, or the attempts run out.
func Do(ctx context.Context, cfg Config, apiName string, retryable Retryable, fn Attempt) ([]byte, error) {
	var lastBody []byte
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.calculateDelay(attempt - 1)):
			}
		}

		body, status, err := fn()
		if err == nil {
			return body, nil
		}
		lastBody, lastStatus, lastErr = body, status, err

		if !retryable(status, err) {
			return nil, err
		}
	}

	return nil, &ExhaustedError{
		APIName:        apiName,
		MaxAttempts:    cfg.MaxRetries + 1,
		LastStatusCode: lastStatus,
		LastResponse:   lastBody,
		cause:          lastErr,
	}
}

// ExhaustedError reports that all retry attempts failed.
type ExhaustedError struct {
	APIName        string
	MaxAttempts    int
	LastStatusCode int
	LastResponse   []byte
	cause          error
}

func (e *ExhaustedError) Error() string {
	msg := "retry attempts exhausted for " + e.APIName + " API"
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *ExhaustedError) Unwrap() error { return e.cause }
