package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oshri1997/Deal-Hunter/internal/api/respond"
	"github.com/oshri1997/Deal-Hunter/internal/membership"
)

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

const expandedScopeNote = "absolute-price alerts are per currency; regions subscribed later are not covered, add the alert again for them"

type registerRequest struct {
	Username string `json:"username"`
}

// PutUser registers a user or refreshes their username.
// @Summary Register user
// @Tags users
// @Accept json
// @Produce json
// @Param userID path int true "Chat user ID"
// @Param body body registerRequest false "Username"
// @Success 200 {object} model.User
// @Failure 400 {object} respond.ErrorResponse
// @Router /users/{userID} [put]
func (h *Handler) PutUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if r.ContentLength != 0 {
		if err := respond.DecodeJSON(w, r, &req); err != nil {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
	}
	u, err := h.members.Register(r.Context(), id, req.Username)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, u)
}

// GetUser returns a user's profile with limits and usage.
// @Summary Get user profile
// @Tags users
// @Produce json
// @Param userID path int true "Chat user ID"
// @Success 200 {object} membership.Profile
// @Failure 404 {object} respond.ErrorResponse
// @Router /users/{userID} [get]
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	p, err := h.members.Profile(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, p)
}

type cadenceRequest struct {
	Cadence string `json:"cadence"`
}

// PutCadence sets instant or digest delivery.
// @Summary Set notification cadence
// @Tags users
// @Accept json
// @Param userID path int true "Chat user ID"
// @Param body body cadenceRequest true "instant or digest"
// @Success 204
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /users/{userID}/cadence [put]
func (h *Handler) PutCadence(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req cadenceRequest
	if err := respond.DecodeJSON(w, r, &req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if err := h.members.SetCadence(r.Context(), id, req.Cadence); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respond.WriteNoContent(w)
}

// --------------------------------------------------------------------------
// Regions
// --------------------------------------------------------------------------

// GetUserRegions lists a user's subscribed regions.
// @Summary List subscribed regions
// @Tags regions
// @Produce json
// @Param userID path int true "Chat user ID"
// @Success 200 {object} map[string]interface{}
// @Router /users/{userID}/regions [get]
func (h *Handler) GetUserRegions(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	codes, err := h.members.Regions(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"regions": codes})
}

type regionRequest struct {
	Code string `json:"code"`
}

// PostUserRegion subscribes a user to a region. 201 when added, 200 when
// already subscribed.
// @Summary Subscribe to region
// @Tags regions
// @Accept json
// @Param userID path int true "Chat user ID"
// @Param body body regionRequest true "Region code"
// @Success 200
// @Success 201
// @Failure 409 {object} respond.ErrorResponse
// @Router /users/{userID}/regions [post]
func (h *Handler) PostUserRegion(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req regionRequest
	if err := respond.DecodeJSON(w, r, &req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	added, err := h.members.AddRegion(r.Context(), id, req.Code)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	respond.WriteJSONObject(w, status, map[string]interface{}{"region": req.Code, "added": added})
}

// DeleteUserRegion unsubscribes a user from a region.
// @Summary Unsubscribe from region
// @Tags regions
// @Param userID path int true "Chat user ID"
// @Param code path string true "Region code"
// @Success 204
// @Failure 404 {object} respond.ErrorResponse
// @Router /users/{userID}/regions/{code} [delete]
func (h *Handler) DeleteUserRegion(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	removed, err := h.members.RemoveRegion(r.Context(), id, chi.URLParam(r, "code"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !removed {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "not subscribed to region")
		return
	}
	respond.WriteNoContent(w)
}

// --------------------------------------------------------------------------
// Wishlist
// --------------------------------------------------------------------------

// GetWishlist lists a user's wishlist.
// @Summary List wishlist
// @Tags wishlist
// @Produce json
// @Param userID path int true "Chat user ID"
// @Success 200 {object} map[string]interface{}
// @Router /users/{userID}/wishlist [get]
func (h *Handler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	entries, err := h.members.Wishlist(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"wishlist": entries})
}

type wishlistRequest struct {
	Title string `json:"title"`
}

// PostWishlist adds a game by title, creating it in the catalog if needed.
// @Summary Add to wishlist
// @Tags wishlist
// @Accept json
// @Produce json
// @Param userID path int true "Chat user ID"
// @Param body body wishlistRequest true "Game title"
// @Success 200 {object} map[string]interface{}
// @Success 201 {object} map[string]interface{}
// @Failure 409 {object} respond.ErrorResponse
// @Router /users/{userID}/wishlist [post]
func (h *Handler) PostWishlist(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req wishlistRequest
	if err := respond.DecodeJSON(w, r, &req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	g, added, err := h.members.AddToWishlist(r.Context(), id, req.Title)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	respond.WriteJSONObject(w, status, map[string]interface{}{"game": g, "added": added})
}

// DeleteWishlist removes a game from the wishlist.
// @Summary Remove from wishlist
// @Tags wishlist
// @Param userID path int true "Chat user ID"
// @Param gameID path int true "Game ID"
// @Success 204
// @Failure 404 {object} respond.ErrorResponse
// @Router /users/{userID}/wishlist/{gameID} [delete]
func (h *Handler) DeleteWishlist(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	gameID, ok := idParam(w, r, "gameID", "INVALID_GAME_ID")
	if !ok {
		return
	}
	removed, err := h.members.RemoveFromWishlist(r.Context(), id, gameID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !removed {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "game not on wishlist")
		return
	}
	respond.WriteNoContent(w)
}

// --------------------------------------------------------------------------
// Alerts
// --------------------------------------------------------------------------

// GetAlerts lists a user's alert rules.
// @Summary List alerts
// @Tags alerts
// @Produce json
// @Param userID path int true "Chat user ID"
// @Success 200 {object} map[string]interface{}
// @Router /users/{userID}/alerts [get]
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	rules, err := h.members.Alerts(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"alerts": rules})
}

// PostAlert creates alert rules. An absolute-price rule without a region
// becomes one rule per subscribed region; the response then lists those
// regions and notes that regions added later are not covered.
// @Summary Add alert
// @Description An absolute-price alert without a region covers only the regions subscribed now; the response lists them under "regions" with a "note".
// @Tags alerts
// @Accept json
// @Produce json
// @Param userID path int true "Chat user ID"
// @Param body body membership.AlertRequest true "Alert"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /users/{userID}/alerts [post]
func (h *Handler) PostAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req membership.AlertRequest
	if err := respond.DecodeJSON(w, r, &req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	rules, err := h.members.AddAlert(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := map[string]interface{}{"alerts": rules}
	if regions, ok := membership.ExpandedScope(req, rules); ok {
		resp["regions"] = regions
		resp["note"] = expandedScopeNote
	}
	respond.WriteJSONObject(w, http.StatusCreated, resp)
}

// DeleteAlert removes one of the user's alert rules.
// @Summary Remove alert
// @Tags alerts
// @Param userID path int true "Chat user ID"
// @Param alertID path string true "Alert rule ID"
// @Success 204
// @Failure 404 {object} respond.ErrorResponse
// @Router /users/{userID}/alerts/{alertID} [delete]
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	removed, err := h.members.RemoveAlert(r.Context(), id, chi.URLParam(r, "alertID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !removed {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "alert not found")
		return
	}
	respond.WriteNoContent(w)
}

// GetUserDeals pages through open deals in the user's regions.
// @Summary Deals for user
// @Tags deals
// @Produce json
// @Param userID path int true "Chat user ID"
// @Param offset query int false "Offset"
// @Param limit query int false "Page size (1-100, default 20)"
// @Success 200 {object} map[string]interface{}
// @Router /users/{userID}/deals [get]
func (h *Handler) GetUserDeals(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	offset, limit := page(r)
	deals, total, err := h.members.Deals(r.Context(), id, offset, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"deals":  deals,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}
