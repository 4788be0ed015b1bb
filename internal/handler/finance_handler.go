package handler

import (
	"net/http"
	"strconv"
	"time"

	"bizledger/internal/model"
	"bizledger/internal/notifier"
	"bizledger/pkg/logger"
	"bizledger/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type financeRequest struct {
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"` // YYYY-MM-DD
	Description string  `json:"description"`
	CategoryID  *uint   `json:"category_id,omitempty"`
}

func (r *financeRequest) parseDate() (time.Time, error) {
	if r.Date == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	return time.Parse("2006-01-02", r.Date)
}

func expenseSnapshot(e *model.Expense) map[string]interface{} {
	return map[string]interface{}{
		"amount":      e.Amount,
		"date":        e.Date.Format("2006-01-02"),
		"description": e.Description,
		"category_id": e.CategoryID,
	}
}

func incomeSnapshot(i *model.Income) map[string]interface{} {
	return map[string]interface{}{
		"amount":      i.Amount,
		"date":        i.Date.Format("2006-01-02"),
		"description": i.Description,
		"category_id": i.CategoryID,
	}
}

// recordMutation persists the audit entry and broadcast notification for a
// finance mutation, then invalidates the business's dashboard caches. The
// record write failing propagates; the cache invalidation is best-effort.
func (h *Handler) recordMutation(c echo.Context, user *model.User, businessID uint, actionType, modelName, objectID, verb, notifyType string, before, after map[string]interface{}) error {
	ctx := c.Request().Context()

	if _, err := h.notifier.RecordActivity(ctx, businessID, user, actionType, modelName, objectID, before, after); err != nil {
		return err
	}
	if _, err := h.notifier.RecordNotification(ctx, businessID, verb, notifyType,
		map[string]interface{}{"model": modelName, "object_id": objectID}, nil); err != nil {
		return err
	}
	if err := h.invalidator.Invalidate(ctx, businessID); err != nil {
		logger.FromEcho(c).Warn("Dashboard invalidation failed",
			zap.Uint("business_id", businessID), zap.Error(err))
	}
	return nil
}

// CreateExpense records a financial outflow for the caller's business.
func (h *Handler) CreateExpense(c echo.Context) error {
	log := logger.FromEcho(c)

	user, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}
	if !user.RoleAtLeast(model.RoleAccountant) {
		prometheus.RecordAuthError("insufficient_role")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "accountant role required"})
	}

	var req financeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	date, err := req.parseDate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date format, use YYYY-MM-DD"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	expense := model.Expense{
		BusinessID:  businessID,
		CategoryID:  req.CategoryID,
		Amount:      req.Amount,
		Date:        date,
		Description: req.Description,
		CreatedByID: &user.ID,
	}
	if err := h.db.Create(&expense).Error; err != nil {
		log.Error("Failed to create expense", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "expense creation failed"})
	}

	objectID := strconv.FormatUint(uint64(expense.ID), 10)
	if err := h.recordMutation(c, user, businessID, model.ActionCreate, "Expense", objectID,
		"expense created", model.NotifyFinanceCreated, nil, expenseSnapshot(&expense)); err != nil {
		log.Error("Failed to record expense creation", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "expense recording failed"})
	}

	return c.JSON(http.StatusCreated, expense)
}

// UpdateExpense mutates an expense. A no-op update (identical snapshots
// after normalization) is persisted but produces no audit or broadcast
// traffic.
func (h *Handler) UpdateExpense(c echo.Context) error {
	log := logger.FromEcho(c)

	user, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}
	if !user.RoleAtLeast(model.RoleAccountant) {
		prometheus.RecordAuthError("insufficient_role")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "accountant role required"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid expense ID"})
	}

	var expense model.Expense
	if err := h.db.Where("business_id = ?", businessID).First(&expense, uint(id)).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "expense not found"})
	}
	before := expenseSnapshot(&expense)

	var req financeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	date, err := req.parseDate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date format, use YYYY-MM-DD"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	expense.Amount = req.Amount
	expense.Date = date
	expense.Description = req.Description
	expense.CategoryID = req.CategoryID
	if err := h.db.Save(&expense).Error; err != nil {
		log.Error("Failed to update expense", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "expense update failed"})
	}

	after := expenseSnapshot(&expense)
	if notifier.SnapshotsEqual(before, after) {
		return c.JSON(http.StatusOK, expense)
	}

	objectID := strconv.FormatUint(uint64(expense.ID), 10)
	if err := h.recordMutation(c, user, businessID, model.ActionUpdate, "Expense", objectID,
		"expense updated", model.NotifyFinanceUpdated, before, after); err != nil {
		log.Error("Failed to record expense update", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "expense recording failed"})
	}

	return c.JSON(http.StatusOK, expense)
}

// DeleteExpense soft-deletes an expense.
func (h *Handler) DeleteExpense(c echo.Context) error {
	log := logger.FromEcho(c)

	user, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}
	if !user.RoleAtLeast(model.RoleAccountant) {
		prometheus.RecordAuthError("insufficient_role")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "accountant role required"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid expense ID"})
	}

	var expense model.Expense
	if err := h.db.Where("business_id = ?", businessID).First(&expense, uint(id)).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "expense not found"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	if err := h.db.Delete(&expense).Error; err != nil {
		log.Error("Failed to delete expense", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "expense deletion failed"})
	}

	objectID := strconv.FormatUint(uint64(expense.ID), 10)
	if err := h.recordMutation(c, user, businessID, model.ActionDelete, "Expense", objectID,
		"expense deleted", model.NotifyFinanceUpdated, expenseSnapshot(&expense), nil); err != nil {
		log.Error("Failed to record expense deletion", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "expense recording failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "expense deleted"})
}

// ListExpenses lists the caller's business expenses, newest first.
func (h *Handler) ListExpenses(c echo.Context) error {
	_, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var expenses []model.Expense
	if err := h.db.Where("business_id = ?", businessID).Order("date DESC, created_at DESC").Limit(500).Find(&expenses).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list expenses"})
	}
	return c.JSON(http.StatusOK, expenses)
}

// CreateIncome records a financial inflow for the caller's business.
func (h *Handler) CreateIncome(c echo.Context) error {
	log := logger.FromEcho(c)

	user, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}
	if !user.RoleAtLeast(model.RoleAccountant) {
		prometheus.RecordAuthError("insufficient_role")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "accountant role required"})
	}

	var req financeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	date, err := req.parseDate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date format, use YYYY-MM-DD"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	income := model.Income{
		BusinessID:  businessID,
		CategoryID:  req.CategoryID,
		Amount:      req.Amount,
		Date:        date,
		Description: req.Description,
		CreatedByID: &user.ID,
	}
	if err := h.db.Create(&income).Error; err != nil {
		log.Error("Failed to create income", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "income creation failed"})
	}

	objectID := strconv.FormatUint(uint64(income.ID), 10)
	if err := h.recordMutation(c, user, businessID, model.ActionCreate, "Income", objectID,
		"income created", model.NotifyFinanceCreated, nil, incomeSnapshot(&income)); err != nil {
		log.Error("Failed to record income creation", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "income recording failed"})
	}

	return c.JSON(http.StatusCreated, income)
}

// ListIncomes lists the caller's business incomes, newest first.
func (h *Handler) ListIncomes(c echo.Context) error {
	_, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var incomes []model.Income
	if err := h.db.Where("business_id = ?", businessID).Order("date DESC, created_at DESC").Limit(500).Find(&incomes).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list incomes"})
	}
	return c.JSON(http.StatusOK, incomes)
}

// CreateCategory adds a reporting category for the caller's business.
func (h *Handler) CreateCategory(c echo.Context) error {
	user, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}
	if !user.RoleAtLeast(model.RoleAccountant) {
		prometheus.RecordAuthError("insufficient_role")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "accountant role required"})
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	category := model.Category{BusinessID: businessID, Name: req.Name}
	if err := h.db.Create(&category).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "category creation failed"})
	}
	return c.JSON(http.StatusCreated, category)
}

// ListCategories lists the caller's business categories.
func (h *Handler) ListCategories(c echo.Context) error {
	_, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}

	var categories []model.Category
	if err := h.db.Where("business_id = ?", businessID).Order("name").Find(&categories).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list categories"})
	}
	return c.JSON(http.StatusOK, categories)
}
