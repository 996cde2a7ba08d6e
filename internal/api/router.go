package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	apiContext "dealflow/internal/api/context"
	"dealflow/internal/api/handlers"
	"dealflow/internal/api/middleware"
	"dealflow/internal/pkg/errors"
	"dealflow/internal/platform/metrics"
)

type Dependencies struct {
	AuthHandler    *handlers.AuthHandler
	DealHandler    *handlers.DealHandler
	WebhookHandler *handlers.WebhookHandler
	APIKeyHandler  *handlers.APIKeyHandler
	AuditHandler   *handlers.AuditHandler
	HealthHandler  *handlers.HealthHandler
	MetricsHandler *handlers.MetricsHandler

	AuthMiddleware      *middleware.AuthMiddleware
	APIKeyMiddleware    *middleware.APIKeyMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware

	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

func NewRouter(deps *Dependencies) http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "No such route")
	})

	// Operational
	router.GET("/healthz", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	// Session
	router.POST("/api/v1/auth/login", wrap(deps.AuthHandler.Login))

	sessionMid := deps.AuthMiddleware.Handle
	router.GET("/api/v1/account/api-keys", chain(deps.APIKeyHandler.List, sessionMid))
	router.POST("/api/v1/account/api-keys", chain(deps.APIKeyHandler.Create, sessionMid))
	router.POST("/api/v1/account/api-keys/:key_id/regenerate", chain(deps.APIKeyHandler.Regenerate, sessionMid))
	router.DELETE("/api/v1/account/api-keys/:key_id", chain(deps.APIKeyHandler.Delete, sessionMid))
	router.GET("/api/v1/account/audit-log", chain(deps.AuditHandler.List, sessionMid))

	// Public API: authenticate first, then spend the key's budget.
	keyMid := deps.APIKeyMiddleware.Handle
	limitMid := deps.RateLimitMiddleware.Handle

	router.POST("/api/v1/deals", chain(deps.DealHandler.Create, keyMid, limitMid))
	router.GET("/api/v1/deals", chain(deps.DealHandler.List, keyMid, limitMid))
	router.GET("/api/v1/deals/:deal_id", chain(deps.DealHandler.Get, keyMid, limitMid))
	router.PATCH("/api/v1/deals/:deal_id", chain(deps.DealHandler.Update, keyMid, limitMid))
	router.DELETE("/api/v1/deals/:deal_id", chain(deps.DealHandler.Delete, keyMid, limitMid))

	router.POST("/api/v1/webhooks", chain(deps.WebhookHandler.Create, keyMid, limitMid))
	router.GET("/api/v1/webhooks", chain(deps.WebhookHandler.List, keyMid, limitMid))
	router.GET("/api/v1/webhooks/:webhook_id", chain(deps.WebhookHandler.Get, keyMid, limitMid))
	router.PATCH("/api/v1/webhooks/:webhook_id", chain(deps.WebhookHandler.Update, keyMid, limitMid))
	router.DELETE("/api/v1/webhooks/:webhook_id", chain(deps.WebhookHandler.Delete, keyMid, limitMid))

	return middleware.RequestLogger(deps.Logger, deps.Metrics)(router)
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
