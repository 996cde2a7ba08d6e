// Package ratelimit enforces a fixed-window request budget per API key.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"dealflow/internal/platform/metrics"
)

const (
	DefaultLimit  = 500
	DefaultWindow = time.Minute
)

// Counter is the state of one window after an increment.
type Counter struct {
	Count int64
	TTL   time.Duration
}

// Store counts hits per key. An error means the store is unavailable.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (Counter, error)
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
	// Degraded is set when the store failed and the request was let through.
	Degraded bool
}

// ResetSeconds rounds ResetIn up to whole seconds, never below 1.
func (d Decision) ResetSeconds() int {
	secs := int((d.ResetIn + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

type Limiter struct {
	store   Store
	limit   int
	window  time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewLimiter(store Store, limit int, window time.Duration, m *metrics.Metrics, log zerolog.Logger) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Limiter{
		store:   store,
		limit:   limit,
		window:  window,
		metrics: m,
		log:     log.With().Str("component", "ratelimit").Logger(),
	}
}

// Check counts one request for keyID. It fails open when the store is unavailable.
func (l *Limiter) Check(ctx context.Context, keyID string) Decision {
	c, err := l.store.Increment(ctx, keyID, l.window)
	if err != nil {
		l.metrics.RateLimitDecision.WithLabelValues("fail_open").Inc()
		l.log.Error().Err(err).Str("key_id", keyID).Msg("rate limit store unavailable, allowing request")
		return Decision{
			Allowed:   true,
			Limit:     l.limit,
			Remaining: l.limit,
			ResetIn:   l.window,
			Degraded:  true,
		}
	}

	ttl := c.TTL
	if ttl <= 0 || ttl > l.window {
		ttl = l.window
	}

	remaining := l.limit - int(c.Count)
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   c.Count <= int64(l.limit),
		Limit:     l.limit,
		Remaining: remaining,
		ResetIn:   ttl,
	}
	if d.Allowed {
		l.metrics.RateLimitDecision.WithLabelValues("allowed").Inc()
	} else {
		l.metrics.RateLimitDecision.WithLabelValues("denied").Inc()
	}
	return d
}
