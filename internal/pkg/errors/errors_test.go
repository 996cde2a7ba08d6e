package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusTooManyRequests, ErrCodeRateLimitExceeded, "slow down")

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, ContentTypeProblem, rr.Header().Get("Content-Type"))

	var p Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, "https://dealflow.dev/problems/rate-limit-exceeded", p.Type)
	assert.Equal(t, "Too Many Requests", p.Title)
	assert.Equal(t, 429, p.Status)
	assert.Equal(t, "slow down", p.Detail)
}

func TestUnauthorized(t *testing.T) {
	rr := httptest.NewRecorder()
	Unauthorized(rr)

	var p Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, 401, p.Status)
	assert.Equal(t, ErrCodeUnauthorized, p.Code)
}
