// Package retry re-runs archive fetches that failed for transient reasons.
//
// Only *entity.FetchError values are considered: a 5xx, 408 or 429 status,
// a timeout or a refused/reset connection. A missing report (404) or a
// parse failure is final and returned after the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"

	"sonde-catalog/internal/domain/entity"
)

// Config holds the backoff schedule.
type Config struct {
	// MaxAttempts counts the first try.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFraction is the share of the delay added at random (0.0 to 1.0).
	JitterFraction float64
}

// ReportFetchConfig is used for individual sonde reports.
// Archive servers recover quickly, so delays stay short to keep jobs moving.
func ReportFetchConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// ListingFetchConfig is used for archive listings.
// A failed listing fails the whole job, so it retries harder.
func ListingFetchConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Fetch calls fn until it succeeds, fails with a non-retryable error or
// cfg.MaxAttempts is reached. If ctx ends while waiting, the last fetch
// error is returned as is.
func Fetch(ctx context.Context, cfg Config, url string, fn func() (entity.RawContent, error)) (entity.RawContent, error) {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		raw, err := fn()
		if err == nil {
			if attempt > 1 {
				slog.Info("fetch succeeded after retry",
					slog.String("url", url),
					slog.Int("attempt", attempt))
			}
			return raw, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return entity.RawContent{}, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		slog.Warn("fetch failed, retrying",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return entity.RawContent{}, lastErr
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		delay = addJitter(delay, cfg.JitterFraction)
	}

	return entity.RawContent{}, &ExhaustedError{Attempts: cfg.MaxAttempts, Err: lastErr}
}

// IsRetryable reports whether err is a fetch failure worth another attempt.
func IsRetryable(err error) bool {
	var fetchErr *entity.FetchError
	if !errors.As(err, &fetchErr) {
		return false
	}
	if fetchErr.StatusCode > 0 {
		return RetryableStatus(fetchErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH)
}

// RetryableStatus reports whether an HTTP status is transient.
func RetryableStatus(code int) bool {
	switch {
	case code >= 500 && code < 600:
		return true
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	}
	return false
}

func addJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	if fraction > 1.0 {
		fraction = 1.0
	}
	// #nosec G404 -- backoff jitter does not need cryptographic randomness.
	return d + time.Duration(rand.Float64()*float64(d)*fraction)
}
