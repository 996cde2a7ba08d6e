package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog"

	apiContext "dealflow/internal/api/context"
	"dealflow/internal/engine/webhooks"
	"dealflow/internal/pkg/errors"
	"dealflow/internal/platform/audit"
	"dealflow/internal/platform/models"
)

type WebhookHandler struct {
	svc   *webhooks.Service
	audit *audit.Logger
	log   zerolog.Logger
}

func NewWebhookHandler(svc *webhooks.Service, auditLog *audit.Logger, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, audit: auditLog, log: log}
}

type createWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
}

type updateWebhookRequest struct {
	URL    *string  `json:"url"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
}

// createdWebhook is the only representation that carries the signing secret.
type createdWebhook struct {
	*models.Webhook
	Secret string `json:"secret"`
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if !decode(w, r, &req) {
		return
	}

	userID := apiContext.UserID(r.Context())
	webhook, err := h.svc.Create(r.Context(), userID, webhooks.CreateInput{
		URL:    req.URL,
		Events: req.Events,
		Active: req.Active,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	h.audit.Log(r, userID, audit.ActionWebhookCreated, "webhook", webhook.ID, map[string]any{"url": webhook.URL, "events": webhook.Events})
	writeJSON(w, http.StatusCreated, createdWebhook{Webhook: webhook, Secret: webhook.Secret})
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), apiContext.UserID(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	webhook, err := h.svc.Get(r.Context(), apiContext.UserID(r.Context()), param(r, "webhook_id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhook)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateWebhookRequest
	if !decode(w, r, &req) {
		return
	}

	userID := apiContext.UserID(r.Context())
	webhook, err := h.svc.Update(r.Context(), userID, param(r, "webhook_id"), webhooks.UpdateInput{
		URL:    req.URL,
		Events: req.Events,
		Active: req.Active,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	h.audit.Log(r, userID, audit.ActionWebhookUpdated, "webhook", webhook.ID, map[string]any{"active": webhook.Active, "events": webhook.Events})
	writeJSON(w, http.StatusOK, webhook)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := apiContext.UserID(r.Context())
	id := param(r, "webhook_id")
	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, err)
		return
	}

	h.audit.Log(r, userID, audit.ActionWebhookDeleted, "webhook", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *WebhookHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, webhooks.ErrNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Webhook not found")
	case stderrors.Is(err, webhooks.ErrInvalidInput):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error())
	default:
		h.log.Error().Err(err).Msg("webhook operation failed")
		errors.Internal(w)
	}
}
