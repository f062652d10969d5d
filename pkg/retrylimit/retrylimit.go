// Package retrylimit paces calls to a rate-limited remote API and retries
// the ones that fail transiently.
//
//	lim := retrylimit.NewAdaptiveLimiter(retrylimit.LimiterConfig{Initial: 5, Min: 1, Max: 20, StepUp: 1, StepDown: 0.5})
//	err := retrylimit.Do(ctx, lim, retrylimit.DefaultRetryConfig(), func(ctx context.Context) error {
//	    return publish(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// LimiterConfig sets the rate bounds in requests per second. StepUp is added
// after a success once errors have been quiet for Quiet; StepDown multiplies
// the rate after a rate-limit or server error.
type LimiterConfig struct {
	Initial  rate.Limit
	Min      rate.Limit
	Max      rate.Limit
	StepUp   rate.Limit
	StepDown float64
	Quiet    time.Duration
}

// AdaptiveLimiter is a token bucket whose rate follows the remote side's
// responses. It is safe for concurrent use.
type AdaptiveLimiter struct {
	cfg LimiterConfig

	mu        sync.Mutex
	limiter   *rate.Limiter
	lastError time.Time
}

func NewAdaptiveLimiter(cfg LimiterConfig) *AdaptiveLimiter {
	cfg.Min = max(cfg.Min, 1)
	cfg.Initial = max(cfg.Initial, cfg.Min)
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.StepDown <= 0 || cfg.StepDown >= 1 {
		cfg.StepDown = 0.5
	}
	if cfg.Quiet <= 0 {
		cfg.Quiet = 10 * time.Second
	}
	return &AdaptiveLimiter{cfg: cfg, limiter: rate.NewLimiter(cfg.Initial, burstFor(cfg.Initial))}
}

// Wait blocks until a token is available or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success raises the rate if no error was seen recently.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > a.cfg.Quiet {
		a.setLocked(a.limiter.Limit() + a.cfg.StepUp)
	}
}

// Backoff lowers the rate after the remote side pushed back.
func (a *AdaptiveLimiter) Backoff() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.setLocked(rate.Limit(float64(a.limiter.Limit()) * a.cfg.StepDown))
}

// Limit returns the current rate in requests per second.
func (a *AdaptiveLimiter) Limit() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.limiter.Limit())
}

func (a *AdaptiveLimiter) setLocked(l rate.Limit) {
	l = min(max(l, a.cfg.Min), a.cfg.Max)
	if l != a.limiter.Limit() {
		a.limiter.SetLimit(l)
		a.limiter.SetBurst(burstFor(l))
	}
}

func burstFor(l rate.Limit) int { return max(1, int(l)) }

// StatusError is implemented by errors that carry an HTTP status code.
type StatusError interface {
	error
	StatusCode() int
}

// RetryAfterError is implemented by errors that say when to try again.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// FatalError stops retries immediately.
type FatalError struct{ Err error }

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// Fatal marks err as not worth retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// RetryConfig is the backoff schedule.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration
	Multiplier     float64
	Jitter         bool
	OnRetry        func(attempt int, err error)
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		RateLimitDelay: time.Second,
		Multiplier:     2,
		Jitter:         true,
	}
}

// ErrAttemptsExhausted wraps the last error once MaxAttempts is used up.
var ErrAttemptsExhausted = errors.New("retrylimit: attempts exhausted")

// Do runs fn until it succeeds, returns a FatalError, ctx ends, or the
// attempts run out. Each attempt first waits on lim when lim is non-nil.
// Client errors (4xx other than 429) are not retried.
func Do(ctx context.Context, lim *AdaptiveLimiter, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	delay := cfg.InitialDelay

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lim != nil {
			if werr := lim.Wait(ctx); werr != nil {
				return werr
			}
		}

		err = fn(ctx)
		if err == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				log.Debug().Int("attempt", attempt).Msg("succeeded after retry")
			}
			return nil
		}

		var fatal *FatalError
		if errors.As(err, &fatal) || isClientError(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		wait := delay
		switch {
		case isRateLimited(err):
			if lim != nil {
				lim.Backoff()
			}
			wait = cfg.RateLimitDelay
			var ra RetryAfterError
			if errors.As(err, &ra) && ra.RetryAfter() > 0 {
				wait = ra.RetryAfter()
			}
		case isServerError(err):
			if lim != nil {
				lim.Backoff()
			}
			fallthrough
		default:
			if cfg.Jitter {
				wait = jitter(wait)
			}
			delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("request failed, retrying")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, cfg.MaxAttempts, err)
}

func jitter(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	return d + rand.N(d/4)
}

func status(err error) int {
	var se StatusError
	if errors.As(err, &se) {
		return se.StatusCode()
	}
	return 0
}

func isRateLimited(err error) bool { return status(err) == http.StatusTooManyRequests }

func isServerError(err error) bool {
	code := status(err)
	return code >= 500 && code < 600
}

func isClientError(err error) bool {
	code := status(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}
