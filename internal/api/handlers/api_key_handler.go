package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog"

	apiContext "dealflow/internal/api/context"
	"dealflow/internal/engine/apikeys"
	"dealflow/internal/pkg/errors"
	"dealflow/internal/platform/audit"
)

type APIKeyHandler struct {
	svc   *apikeys.Service
	audit *audit.Logger
	log   zerolog.Logger
}

func NewAPIKeyHandler(svc *apikeys.Service, auditLog *audit.Logger, log zerolog.Logger) *APIKeyHandler {
	return &APIKeyHandler{svc: svc, audit: auditLog, log: log}
}

// issuedKey is returned by create and regenerate; the raw key is shown once.
type issuedKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Key       string `json:"key"`
	KeyPrefix string `json:"key_prefix"`
	CreatedAt int64  `json:"created_at"`
}

func newIssuedKey(i *apikeys.Issued) issuedKey {
	return issuedKey{
		ID:        i.Key.ID,
		Name:      i.Key.Name,
		Key:       i.Token,
		KeyPrefix: i.Key.KeyPrefix,
		CreatedAt: i.Key.CreatedAt,
	}
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}

	userID := apiContext.UserID(r.Context())
	issued, err := h.svc.Create(r.Context(), userID, req.Name)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.audit.Log(r, userID, audit.ActionAPIKeyCreated, "api_key", issued.Key.ID, map[string]any{"name": issued.Key.Name})
	writeJSON(w, http.StatusCreated, newIssuedKey(issued))
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.svc.List(r.Context(), apiContext.UserID(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": keys})
}

func (h *APIKeyHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	userID := apiContext.UserID(r.Context())
	oldID := param(r, "key_id")

	issued, err := h.svc.Regenerate(r.Context(), userID, oldID)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.audit.Log(r, userID, audit.ActionAPIKeyRegenerated, "api_key", issued.Key.ID, map[string]any{"replaces": oldID})
	writeJSON(w, http.StatusOK, newIssuedKey(issued))
}

func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := apiContext.UserID(r.Context())
	id := param(r, "key_id")
	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, err)
		return
	}

	h.audit.Log(r, userID, audit.ActionAPIKeyDeleted, "api_key", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIKeyHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, apikeys.ErrNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "API key not found")
	case stderrors.Is(err, apikeys.ErrNameTaken):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, err.Error())
	case stderrors.Is(err, apikeys.ErrInvalidName):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error())
	default:
		h.log.Error().Err(err).Msg("api key operation failed")
		errors.Internal(w)
	}
}
