package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiContext "dealflow/internal/api/context"
	"dealflow/internal/engine/apikeys"
	"dealflow/internal/engine/ratelimit"
	"dealflow/internal/platform/auth"
	"dealflow/internal/platform/config"
	"dealflow/internal/platform/metrics"
	"dealflow/internal/platform/models"
	"dealflow/internal/workers"
)

type brokenKeyStore struct{}

func (brokenKeyStore) GetActiveByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	return nil, errors.New("disk I/O error")
}

func (brokenKeyStore) UpdateLastUsed(ctx context.Context, id string, ts int64) error { return nil }

type downStore struct{}

func (downStore) Increment(ctx context.Context, key string, window time.Duration) (ratelimit.Counter, error) {
	return ratelimit.Counter{}, errors.New("dial tcp: connection refused")
}

func ok(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAPIKeyMiddleware_StoreErrorIs500(t *testing.T) {
	pool := workers.NewPool(1, zerolog.Nop())
	defer pool.Shutdown(time.Second)
	authn := apikeys.NewAuthenticator(brokenKeyStore{}, "", pool, nil, nil, zerolog.Nop())
	mw := NewAPIKeyMiddleware(authn, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
	req.Header.Set("Authorization", "Bearer pk_live_abc")
	rec := httptest.NewRecorder()
	mw.Handle(ok)(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimitMiddleware_FailOpenPassesThrough(t *testing.T) {
	limiter := ratelimit.NewLimiter(downStore{}, 1, time.Minute, nil, zerolog.Nop())
	mw := NewRateLimitMiddleware(limiter)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), apiContext.Identity, &apikeys.Identity{UserID: "usr_1", KeyID: "key_1"}))
		rec := httptest.NewRecorder()
		mw.Handle(ok)(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitMiddleware_RequiresIdentity(t *testing.T) {
	mw := NewRateLimitMiddleware(ratelimit.NewLimiter(downStore{}, 1, time.Minute, nil, zerolog.Nop()))

	rec := httptest.NewRecorder()
	mw.Handle(ok)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewTokenService(config.JWTConfig{Secret: "s3cret", AccessTokenTTL: time.Minute})
	token, err := tokens.GenerateAccessToken("usr_7", "grace@example.com")
	require.NoError(t, err)

	mw := NewAuthMiddleware(tokens)
	handler := mw.Handle(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "usr_7", apiContext.UserID(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequestLogger_RecoversPanics(t *testing.T) {
	m := metrics.NewNop()
	h := RequestLogger(zerolog.Nop(), m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestLogger_PanicAfterWriteKeepsResponse(t *testing.T) {
	m := metrics.NewNop()
	h := RequestLogger(zerolog.Nop(), m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"deal_1"`))
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"id":"deal_1"`, rec.Body.String())
}
