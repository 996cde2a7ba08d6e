package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	apiContext "dealflow/internal/api/context"
	"dealflow/internal/pkg/errors"
	"dealflow/internal/platform/audit"
)

type AuditHandler struct {
	audit *audit.Logger
	log   zerolog.Logger
}

func NewAuditHandler(auditLog *audit.Logger, log zerolog.Logger) *AuditHandler {
	return &AuditHandler{audit: auditLog, log: log}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.audit.List(r.Context(), apiContext.UserID(r.Context()), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list audit log")
		errors.Internal(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}
