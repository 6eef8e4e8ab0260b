package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oshri1997/Deal-Hunter/internal/api/respond"
	"github.com/oshri1997/Deal-Hunter/internal/membership"
	"github.com/oshri1997/Deal-Hunter/internal/tier"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// writeServiceError maps service errors onto HTTP statuses. Limit denials
// carry the tier message verbatim.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var le *tier.LimitError
	switch {
	case errors.As(err, &le):
		respond.WriteErrorDetail(w, http.StatusConflict, "LIMIT_EXCEEDED", le.Error(), string(le.Resource))
	case errors.Is(err, membership.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, membership.ErrInvalid):
		respond.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// idParam parses a positive integer path parameter, writing a 400 with
// code on failure.
func idParam(w http.ResponseWriter, r *http.Request, name, code string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		respond.WriteError(w, http.StatusBadRequest, code, name+" must be a positive integer")
		return 0, false
	}
	return v, true
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return idParam(w, r, "userID", "INVALID_USER_ID")
}

// page reads offset/limit query parameters.
func page(r *http.Request) (offset, limit int) {
	limit = defaultPageSize
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l >= 1 && l <= maxPageSize {
		limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o > 0 {
		offset = o
	}
	return offset, limit
}
