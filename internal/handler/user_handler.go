package handler

import (
	"net/http"
	"time"

	"bizledger/internal/model"
	"bizledger/pkg/logger"
	"bizledger/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// GetProfile returns the authenticated user.
func (h *Handler) GetProfile(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// OnlineUsers lists the members of the caller's business together with their
// presence state. Presence store unavailability degrades to "everyone
// offline" rather than an error.
func (h *Handler) OnlineUsers(c echo.Context) error {
	log := logger.FromEcho(c)

	_, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var members []model.User
	if err := h.db.Where("business_id = ? AND active = ?", businessID, true).Find(&members).Error; err != nil {
		log.Error("Failed to list business members", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list members"})
	}

	candidates := make([]uint, len(members))
	for i, m := range members {
		candidates[i] = m.ID
	}

	online, err := h.presence.OnlineUsers(c.Request().Context(), businessID, candidates)
	if err != nil {
		log.Warn("Presence lookup failed, reporting all members offline", zap.Error(err))
		online = nil
	}
	onlineSet := make(map[uint]bool, len(online))
	for _, id := range online {
		onlineSet[id] = true
	}

	type memberView struct {
		ID     uint   `json:"id"`
		Email  string `json:"email"`
		Role   string `json:"role"`
		Online bool   `json:"online"`
	}
	views := make([]memberView, len(members))
	for i, m := range members {
		views[i] = memberView{ID: m.ID, Email: m.Email, Role: m.Role, Online: onlineSet[m.ID]}
	}

	return c.JSON(http.StatusOK, echo.Map{"members": views})
}
