package handler

import (
	"net/http"

	"bizledger/internal/dashcache"
	"bizledger/internal/model"
	"bizledger/internal/notifier"
	"bizledger/internal/presence"
	"bizledger/pkg/jwtutil"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// Handler carries the collaborators shared by all REST endpoints.
type Handler struct {
	db          *gorm.DB
	jwt         *jwtutil.JWTUtil
	notifier    *notifier.Notifier
	invalidator *dashcache.Invalidator
	presence    *presence.Store
}

// New wires a Handler from its collaborators.
func New(db *gorm.DB, jwt *jwtutil.JWTUtil, n *notifier.Notifier, inv *dashcache.Invalidator, p *presence.Store) *Handler {
	return &Handler{
		db:          db,
		jwt:         jwt,
		notifier:    n,
		invalidator: inv,
		presence:    p,
	}
}

// currentUser loads the authenticated user resolved by the auth middleware.
func (h *Handler) currentUser(c echo.Context) (*model.User, error) {
	userID, ok := c.Get("user_id").(uint)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	if !user.Active {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "account deactivated")
	}
	return &user, nil
}

// requireBusiness resolves the caller's business, rejecting users without one.
func (h *Handler) requireBusiness(c echo.Context) (*model.User, uint, error) {
	user, err := h.currentUser(c)
	if err != nil {
		return nil, 0, err
	}
	if user.BusinessID == nil {
		return nil, 0, echo.NewHTTPError(http.StatusForbidden, "business membership required")
	}
	return user, *user.BusinessID, nil
}
