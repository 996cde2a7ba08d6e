package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	apiContext "dealflow/internal/api/context"
	"dealflow/internal/engine/apikeys"
	"dealflow/internal/engine/ratelimit"
	"dealflow/internal/pkg/errors"
)

// RateLimitMiddleware must run after APIKeyMiddleware; budgets are per API key.
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
}

func NewRateLimitMiddleware(limiter *ratelimit.Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

func (m *RateLimitMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := r.Context().Value(apiContext.Identity).(*apikeys.Identity)
		if !ok || identity == nil {
			errors.Unauthorized(w)
			return
		}

		d := m.limiter.Check(r.Context(), identity.KeyID)
		reset := strconv.Itoa(d.ResetSeconds())

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", reset)

		if !d.Allowed {
			w.Header().Set("Retry-After", reset)
			errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded,
				fmt.Sprintf("Rate limit of %d requests exceeded, retry in %s seconds", d.Limit, reset))
			return
		}

		next(w, r)
	}
}
