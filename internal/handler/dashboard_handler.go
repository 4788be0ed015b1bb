package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bizledger/internal/model"
	"bizledger/pkg/logger"
	"bizledger/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type categoryTotal struct {
	CategoryID *uint   `json:"category_id"`
	Name       string  `json:"name"`
	Total      float64 `json:"total"`
}

type dailyFlow struct {
	Date    string  `json:"date"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
}

type dashboardPayload struct {
	Summary struct {
		TotalIncome         float64  `json:"total_income"`
		TotalExpense        float64  `json:"total_expense"`
		Net                 float64  `json:"net"`
		ProfitMarginPercent *float64 `json:"profit_margin_percent"`
	} `json:"summary"`
	CashFlowDaily       []dailyFlow     `json:"cash_flow_daily"`
	TopCategories       []categoryTotal `json:"top_categories"`
	TopIncomeCategories []categoryTotal `json:"top_income_categories"`
	GeneratedAt         string          `json:"generated_at"`
}

// Dashboard serves the cached analytics payload for the caller's business.
// Computed payloads are cached for a short TTL and the cache key registered
// for invalidation on the next finance mutation.
func (h *Handler) Dashboard(c echo.Context) error {
	log := logger.FromEcho(c)

	_, businessID, err := h.requireBusiness(c)
	if err != nil {
		return err
	}

	start, end, err := dateRange(c.QueryParam("start_date"), c.QueryParam("end_date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date format, use YYYY-MM-DD"})
	}
	period := c.QueryParam("period")
	if period == "" {
		period = "auto"
	}

	cacheKey := fmt.Sprintf("finance_dashboard:%d:%s:%s:%s",
		businessID, start.Format("2006-01-02"), end.Format("2006-01-02"), period)

	ctx := c.Request().Context()
	if cached := h.invalidator.Get(ctx, cacheKey); cached != nil {
		return c.JSONBlob(http.StatusOK, cached)
	}

	payload, err := h.analytics(c, businessID, start, end)
	if err != nil {
		log.Error("Failed to compute dashboard analytics", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "analytics computation failed"})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "analytics encoding failed"})
	}
	h.invalidator.Set(ctx, businessID, cacheKey, raw)

	return c.JSONBlob(http.StatusOK, raw)
}

func dateRange(s, e string) (time.Time, time.Time, error) {
	if s == "" || e == "" {
		end := time.Now().UTC().Truncate(24 * time.Hour)
		return end.AddDate(0, 0, -30), end, nil
	}
	start, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse("2006-01-02", e)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func (h *Handler) analytics(c echo.Context, businessID uint, start, end time.Time) (*dashboardPayload, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var payload dashboardPayload

	var totalExpense, totalIncome float64
	if err := h.db.Model(&model.Expense{}).
		Where("business_id = ? AND date >= ? AND date <= ?", businessID, start, end).
		Select("COALESCE(SUM(amount), 0)").Scan(&totalExpense).Error; err != nil {
		return nil, err
	}
	if err := h.db.Model(&model.Income{}).
		Where("business_id = ? AND date >= ? AND date <= ?", businessID, start, end).
		Select("COALESCE(SUM(amount), 0)").Scan(&totalIncome).Error; err != nil {
		return nil, err
	}

	payload.Summary.TotalIncome = totalIncome
	payload.Summary.TotalExpense = totalExpense
	payload.Summary.Net = totalIncome - totalExpense
	if totalIncome != 0 {
		margin := payload.Summary.Net / totalIncome * 100
		payload.Summary.ProfitMarginPercent = &margin
	}

	daily, err := h.dailyFlows(businessID, start, end)
	if err != nil {
		return nil, err
	}
	payload.CashFlowDaily = daily

	payload.TopCategories, err = h.topCategories(&model.Expense{}, businessID, start, end)
	if err != nil {
		return nil, err
	}
	payload.TopIncomeCategories, err = h.topCategories(&model.Income{}, businessID, start, end)
	if err != nil {
		return nil, err
	}

	payload.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	return &payload, nil
}

// dailyFlows builds the gap-filled per-day income/expense series.
func (h *Handler) dailyFlows(businessID uint, start, end time.Time) ([]dailyFlow, error) {
	type row struct {
		Date  time.Time
		Total float64
	}

	index := make(map[string]int)
	var series []dailyFlow
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, 1) {
		key := cur.Format("2006-01-02")
		index[key] = len(series)
		series = append(series, dailyFlow{Date: key})
	}

	var incomes []row
	if err := h.db.Model(&model.Income{}).
		Where("business_id = ? AND date >= ? AND date <= ?", businessID, start, end).
		Select("date, SUM(amount) AS total").Group("date").Scan(&incomes).Error; err != nil {
		return nil, err
	}
	for _, r := range incomes {
		if i, ok := index[r.Date.Format("2006-01-02")]; ok {
			series[i].Income = r.Total
		}
	}

	var expenses []row
	if err := h.db.Model(&model.Expense{}).
		Where("business_id = ? AND date >= ? AND date <= ?", businessID, start, end).
		Select("date, SUM(amount) AS total").Group("date").Scan(&expenses).Error; err != nil {
		return nil, err
	}
	for _, r := range expenses {
		if i, ok := index[r.Date.Format("2006-01-02")]; ok {
			series[i].Expense = r.Total
		}
	}

	return series, nil
}

// topCategories returns the five largest categories by total amount for the
// given record model.
func (h *Handler) topCategories(recordModel interface{}, businessID uint, start, end time.Time) ([]categoryTotal, error) {
	var rows []struct {
		CategoryID *uint
		Total      float64
	}
	if err := h.db.Model(recordModel).
		Where("business_id = ? AND date >= ? AND date <= ?", businessID, start, end).
		Select("category_id, SUM(amount) AS total").
		Group("category_id").Order("total DESC").Limit(5).Scan(&rows).Error; err != nil {
		return nil, err
	}

	totals := make([]categoryTotal, 0, len(rows))
	for _, r := range rows {
		name := "Uncategorized"
		if r.CategoryID != nil {
			var category model.Category
			if err := h.db.First(&category, *r.CategoryID).Error; err == nil {
				name = category.Name
			}
		}
		totals = append(totals, categoryTotal{CategoryID: r.CategoryID, Name: name, Total: r.Total})
	}
	return totals, nil
}
