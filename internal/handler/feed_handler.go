package handler

import (
	"net/http"
	"strconv"
	"time"

	"bizledger/internal/model"
	"bizledger/prometheus"

	"github.com/labstack/echo/v4"
)

// ListNotifications returns the caller's visible notifications: business
// broadcasts plus the ones addressed to them, newest first.
func (h *Handler) ListNotifications(c echo.Context) error {
	user, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var notifications []model.Notification
	if err := h.db.
		Where("business_id = ? AND (recipient_id IS NULL OR recipient_id = ?)", businessID, user.ID).
		Order("created_at DESC").Limit(200).Find(&notifications).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list notifications"})
	}
	return c.JSON(http.StatusOK, notifications)
}

// MarkNotificationRead flips the read flag. Only the addressed recipient may
// mark a targeted notification; broadcasts may be marked by any member.
func (h *Handler) MarkNotificationRead(c echo.Context) error {
	user, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid notification ID"})
	}

	var notification model.Notification
	if err := h.db.Where("business_id = ?", businessID).First(&notification, uint(id)).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "notification not found"})
	}
	if notification.RecipientID != nil && *notification.RecipientID != user.ID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not the recipient"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := h.db.Model(&notification).Update("is_read", true).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to mark notification read"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "notification marked read", "id": notification.ID})
}

// ListActivities returns the business audit feed, newest first.
func (h *Handler) ListActivities(c echo.Context) error {
	_, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var activities []model.Activity
	if err := h.db.Where("business_id = ?", businessID).
		Order("timestamp DESC").Limit(200).Find(&activities).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list activities"})
	}
	return c.JSON(http.StatusOK, activities)
}

// ListChatMessages returns the business chat history, newest first.
func (h *Handler) ListChatMessages(c echo.Context) error {
	_, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var messages []model.ChatMessage
	if err := h.db.Where("business_id = ?", businessID).
		Order("created_at DESC").Limit(200).Find(&messages).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list chat messages"})
	}
	return c.JSON(http.StatusOK, messages)
}
