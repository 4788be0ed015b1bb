package handler

import (
	"net/http"
	"strconv"
	"time"

	"bizledger/internal/model"
	"bizledger/pkg/logger"
	"bizledger/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// CreateBusiness creates a tenant. Superuser only.
func (h *Handler) CreateBusiness(c echo.Context) error {
	log := logger.FromEcho(c)

	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	if !user.Superuser {
		prometheus.RecordAuthError("superuser_required")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "superuser required"})
	}

	var req struct {
		Name     string `json:"name"`
		Address  string `json:"address"`
		Phone    string `json:"phone"`
		Timezone string `json:"timezone"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	business := model.Business{
		Name:     req.Name,
		Address:  req.Address,
		Phone:    req.Phone,
		Timezone: req.Timezone,
		Active:   true,
	}
	if business.Timezone == "" {
		business.Timezone = "UTC"
	}
	if err := h.db.Create(&business).Error; err != nil {
		log.Error("Failed to create business", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "business creation failed"})
	}

	log.Info("Business created", zap.Uint("business_id", business.ID), zap.String("name", business.Name))
	return c.JSON(http.StatusCreated, business)
}

// DeactivateBusiness soft-deactivates a tenant and cascades the deactivation
// to its member users. Businesses are never hard-deleted.
func (h *Handler) DeactivateBusiness(c echo.Context) error {
	log := logger.FromEcho(c)

	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	if !user.Superuser {
		prometheus.RecordAuthError("superuser_required")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "superuser required"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid business ID"})
	}
	businessID := uint(id)

	defer prometheus.TrackDBOperation("update")(time.Now())

	tx := h.db.Begin()
	if tx.Error != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	var business model.Business
	if err := tx.First(&business, businessID).Error; err != nil {
		tx.Rollback()
		return c.JSON(http.StatusNotFound, echo.Map{"error": "business not found"})
	}

	if err := tx.Model(&business).Update("active", false).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to deactivate business", zap.Uint("business_id", businessID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivation failed"})
	}
	if err := tx.Model(&model.User{}).Where("business_id = ?", businessID).Update("active", false).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to deactivate business users", zap.Uint("business_id", businessID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivation failed"})
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit deactivation", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivation failed"})
	}

	if _, err := h.notifier.RecordActivity(c.Request().Context(), businessID, user,
		model.ActionUpdate, "Business", strconv.FormatUint(uint64(businessID), 10),
		map[string]interface{}{"active": true}, map[string]interface{}{"active": false}); err != nil {
		log.Error("Failed to record deactivation activity", zap.Error(err))
	}

	log.Info("Business deactivated", zap.Uint("business_id", businessID))
	return c.JSON(http.StatusOK, echo.Map{"message": "business deactivated"})
}

// InviteUser creates a pending member account for the caller's business and
// notifies the invitee on their private channel. Requires manager or above.
func (h *Handler) InviteUser(c echo.Context) error {
	log := logger.FromEcho(c)

	user, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}
	if !user.RoleAtLeast(model.RoleManager) {
		prometheus.RecordAuthError("insufficient_role")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "manager role required"})
	}

	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}
	if req.Role == "" {
		req.Role = model.RoleStaff
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	invitee := model.User{
		Email:      req.Email,
		BusinessID: &businessID,
		Role:       req.Role,
		Active:     true,
	}
	if err := h.db.Create(&invitee).Error; err != nil {
		log.Error("Failed to create invitee", zap.String("email", req.Email), zap.Error(err))
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	if _, err := h.notifier.RecordNotification(c.Request().Context(), businessID,
		user.Email+" invited you to the business", model.NotifyUserInvited,
		map[string]interface{}{"invited_by": user.ID, "role": req.Role}, &invitee); err != nil {
		log.Error("Failed to record invite notification", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "invite notification failed"})
	}

	log.Info("User invited",
		zap.Uint("business_id", businessID),
		zap.Uint("invitee_id", invitee.ID),
		zap.String("role", req.Role))
	return c.JSON(http.StatusCreated, invitee)
}
