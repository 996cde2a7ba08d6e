package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	apiContext "dealflow/internal/api/context"
	"dealflow/internal/engine/deals"
	"dealflow/internal/pkg/errors"
)

type DealHandler struct {
	svc *deals.Service
	log zerolog.Logger
}

func NewDealHandler(svc *deals.Service, log zerolog.Logger) *DealHandler {
	return &DealHandler{svc: svc, log: log}
}

type createDealRequest struct {
	Title    string `json:"title"`
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
	Stage    string `json:"stage"`
}

type updateDealRequest struct {
	Title    *string `json:"title"`
	Value    *int64  `json:"value"`
	Currency *string `json:"currency"`
	Stage    *string `json:"stage"`
}

func (h *DealHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDealRequest
	if !decode(w, r, &req) {
		return
	}

	deal, err := h.svc.Create(r.Context(), apiContext.UserID(r.Context()), deals.CreateInput{
		Title:    req.Title,
		Value:    req.Value,
		Currency: req.Currency,
		Stage:    req.Stage,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

func (h *DealHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "limit must be an integer")
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "offset must be an integer")
		return
	}

	list, err := h.svc.List(r.Context(), apiContext.UserID(r.Context()), limit, offset)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list, "limit": limit, "offset": offset})
}

func (h *DealHandler) Get(w http.ResponseWriter, r *http.Request) {
	deal, err := h.svc.Get(r.Context(), apiContext.UserID(r.Context()), param(r, "deal_id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

func (h *DealHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateDealRequest
	if !decode(w, r, &req) {
		return
	}

	deal, err := h.svc.Update(r.Context(), apiContext.UserID(r.Context()), param(r, "deal_id"), deals.UpdateInput{
		Title:    req.Title,
		Value:    req.Value,
		Currency: req.Currency,
		Stage:    req.Stage,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

func (h *DealHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), apiContext.UserID(r.Context()), param(r, "deal_id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DealHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, deals.ErrNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Deal not found")
	case stderrors.Is(err, deals.ErrInvalidInput):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error())
	default:
		h.log.Error().Err(err).Msg("deal operation failed")
		errors.Internal(w)
	}
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
