package middleware

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog"

	apiContext "dealflow/internal/api/context"
	"dealflow/internal/engine/apikeys"
	"dealflow/internal/pkg/errors"
)

// APIKeyMiddleware resolves the caller of the public API from "Authorization: Bearer <key>".
type APIKeyMiddleware struct {
	auth *apikeys.Authenticator
	log  zerolog.Logger
}

func NewAPIKeyMiddleware(auth *apikeys.Authenticator, log zerolog.Logger) *APIKeyMiddleware {
	return &APIKeyMiddleware{auth: auth, log: log}
}

func (m *APIKeyMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			errors.Unauthorized(w)
			return
		}

		identity, err := m.auth.Authenticate(r.Context(), token)
		if stderrors.Is(err, apikeys.ErrUnauthorized) {
			errors.Unauthorized(w)
			return
		}
		if err != nil {
			m.log.Error().Err(err).Str("path", r.URL.Path).Msg("api key authentication failed")
			errors.Internal(w)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Identity, identity)
		next(w, r.WithContext(ctx))
	}
}
