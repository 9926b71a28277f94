// Package upstream wraps single dictionary lookups with bounded retries,
// jittered exponential backoff and rate-limit accounting.
package upstream

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go"

	"github.com/at-ishikawa/naverdict/internal/dictionary"
	"github.com/at-ishikawa/naverdict/internal/ratelimit"
)

// Config bounds the retry behavior.
type Config struct {
	// MaxAttempts is the total number of upstream attempts, including the
	// first one.
	MaxAttempts uint
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Orchestrator retries transient upstream failures. Every retry costs one
// extra rate-limit token since it makes one extra upstream call; when the
// bucket is empty, retrying stops and the pending failure surfaces instead.
type Orchestrator struct {
	fetcher dictionary.Fetcher
	limiter *ratelimit.Bucket
	config  Config
}

func New(fetcher dictionary.Fetcher, limiter *ratelimit.Bucket, config Config) *Orchestrator {
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	return &Orchestrator{
		fetcher: fetcher,
		limiter: limiter,
		config:  config,
	}
}

// Fetch performs one upstream lookup with retries. The caller has already
// charged the token for the first attempt.
func (o *Orchestrator) Fetch(ctx context.Context, word string, variant dictionary.Variant) ([]byte, error) {
	var body []byte
	attempts := uint(0)

	err := retry.Do(
		func() error {
			attempts++
			b, err := o.fetcher.Search(ctx, word, variant)
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(o.config.MaxAttempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if !IsRetryable(err) {
				return false
			}
			// retry-go consults this even after the final attempt; only
			// charge a token when another attempt will actually run.
			if attempts >= o.config.MaxAttempts {
				return false
			}
			if !o.limiter.Consume(1) {
				slog.Default().Warn("aborting retries, rate limit quota exhausted",
					"word", word,
					"attempts", attempts,
				)
				return false
			}
			return true
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Default().Debug("retrying upstream lookup",
				"word", word,
				"attempt", n+1,
				"error", err,
			)
		}),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			return o.delay(n, err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// delay computes the backoff before retry n (zero-based): capped exponential
// with full jitter, except that an upstream 429 carrying a parseable
// Retry-After header floors the delay at the upstream's own hint plus a small
// proportional jitter.
func (o *Orchestrator) delay(n uint, err error) time.Duration {
	capped := o.config.BaseDelay << n
	if capped <= 0 || capped > o.config.MaxDelay {
		capped = o.config.MaxDelay
	}

	var statusErr *dictionary.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		if after, ok := parseRetryAfter(statusErr.RetryAfter, time.Now()); ok {
			if after > o.config.MaxDelay {
				after = o.config.MaxDelay
			}
			return after + time.Duration(rand.Float64()*0.1*float64(after))
		}
	}

	return time.Duration(rand.Float64() * float64(capped))
}

// parseRetryAfter understands both forms of the header: integer seconds and
// HTTP-date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		delay := at.Sub(now)
		if delay < 0 {
			delay = 0
		}
		return delay, true
	}
	return 0, false
}

// IsRetryable reports whether an upstream failure is worth another attempt:
// 429 and 5xx gateway/server statuses, timeouts and connection failures.
// Everything else, including other HTTP statuses and parse failures,
// propagates immediately.
func IsRetryable(err error) bool {
	var statusErr *dictionary.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var timeoutErr *dictionary.TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var connErr *dictionary.ConnectionError
	return errors.As(err, &connErr)
}
