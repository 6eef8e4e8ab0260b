package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/api/respond"
	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/provider"
	"github.com/oshri1997/Deal-Hunter/internal/region"
)

// maxUploadBytes bounds an observation upload.
const maxUploadBytes = 16 << 20

// PostScrape queues an out-of-band scrape.
// @Summary Trigger scrape
// @Tags admin
// @Accept json
// @Param body body model.ScrapeRequest false "Region (empty for all) and depth"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Security BearerAuth
// @Router /admin/scrape [post]
func (h *Handler) PostScrape(w http.ResponseWriter, r *http.Request) {
	if h.scraper == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "SCRAPER_DISABLED", "no scrape source configured")
		return
	}
	var req model.ScrapeRequest
	if r.ContentLength != 0 {
		if err := respond.DecodeJSON(w, r, &req); err != nil {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
	}
	req.Region = strings.ToUpper(strings.TrimSpace(req.Region))
	if req.Region != "" && !region.Valid(req.Region) {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_REGION", "unknown region")
		return
	}
	if !h.scraper.Trigger(req) {
		respond.WriteError(w, http.StatusServiceUnavailable, "SCRAPE_BUSY", "scrape queue is full, retry later")
		return
	}
	respond.WriteJSONObject(w, http.StatusAccepted, map[string]interface{}{
		"status": "queued",
		"region": req.Region,
		"full":   req.Full,
	})
}

// PostObservations ingests raw observations synchronously and returns one
// cycle result per region. The body is a JSON array or
// {"observations": [...]}.
// @Summary Ingest observations
// @Tags admin
// @Accept json
// @Produce json
// @Param body body []model.RawObservation true "Raw observations"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Security BearerAuth
// @Router /admin/observations [post]
func (h *Handler) PostObservations(w http.ResponseWriter, r *http.Request) {
	if h.ingester == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "INGEST_DISABLED", "ingestion is not available")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	raws, err := provider.DecodeObservations(body)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if len(raws) == 0 {
		respond.WriteError(w, http.StatusBadRequest, "EMPTY_BATCH", "no observations in body")
		return
	}
	now := time.Now().UTC()
	for i := range raws {
		if raws[i].ScrapedAt.IsZero() {
			raws[i].ScrapedAt = now
		}
	}

	results, err := h.ingester.IngestAll(r.Context(), raws)
	resp := map[string]interface{}{"results": results}
	if err != nil {
		resp["error"] = err.Error()
	}
	respond.WriteJSONObject(w, http.StatusOK, resp)
}

type tierRequest struct {
	Tier      string     `json:"tier"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// PutUserTier sets a user's tier and optional premium expiry.
// @Summary Set user tier
// @Tags admin
// @Accept json
// @Param userID path int true "Chat user ID"
// @Param body body tierRequest true "Tier"
// @Success 204
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Security BearerAuth
// @Router /admin/users/{userID}/tier [put]
func (h *Handler) PutUserTier(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req tierRequest
	if err := respond.DecodeJSON(w, r, &req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if err := h.members.SetTier(r.Context(), id, req.Tier, req.ExpiresAt); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respond.WriteNoContent(w)
}
