package context

import (
	stdctx "context"

	"dealflow/internal/engine/apikeys"
	"dealflow/internal/platform/auth"
)

type Key string

const (
	Claims   Key = "claims"
	Identity Key = "identity"
	Params   Key = "params"
)

// UserID returns the caller resolved by either the API-key or the session middleware.
func UserID(ctx stdctx.Context) string {
	if id, ok := ctx.Value(Identity).(*apikeys.Identity); ok && id != nil {
		return id.UserID
	}
	if claims, ok := ctx.Value(Claims).(*auth.Claims); ok && claims != nil {
		return claims.UserID
	}
	return ""
}
