package reports

import (
	"encoding/json"
	"fmt"
	"time"

	"market-backend/internal/auth"
	"market-backend/internal/cache"
	"market-backend/internal/database"
	"market-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type DailySummary struct {
	Date          string          `json:"date"`
	BranchID      uint            `json:"branch_id"`
	SaleCount     int64           `json:"sale_count"`
	Net           decimal.Decimal `json:"net"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	CashTotal     decimal.Decimal `json:"cash_total"`
	CardTotal     decimal.Decimal `json:"card_total"`
	TransferTotal decimal.Decimal `json:"transfer_total"`
}

type MovementSummaryRow struct {
	Type          models.MovementType `json:"type"`
	MovementCount int64               `json:"movement_count"`
	TotalQuantity int64               `json:"total_quantity"`
}

type TopProductRow struct {
	ProductID    uint            `json:"product_id"`
	ProductName  string          `json:"product_name"`
	TotalQty     int64           `json:"total_quantity"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	return time.Parse("2006-01-02", s)
}

// GET /api/reports/daily-summary?date=2026-09-01
func DailySummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var requested *uint
		if bid := uint(c.QueryInt("branch_id", 0)); bid > 0 {
			requested = &bid
		}
		branchID, err := auth.ResolveBranchID(c, requested)
		if err != nil {
			return err
		}

		day, err := parseDay(c.Query("date"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Tarih formatı YYYY-MM-DD olmalı")
		}
		dayStr := day.Format("2006-01-02")

		// Sadece bugünün özeti cache'lenir, geçmiş günler değişmez ama nadiren sorgulanır
		cacheKey := fmt.Sprintf("%s%d:%s", cache.DailySummaryKeyPrefix, branchID, dayStr)
		if cached, ok := cache.Get(c.Context(), cacheKey); ok {
			c.Set("X-Cache", "HIT")
			c.Set("Content-Type", "application/json")
			return c.SendString(cached)
		}

		summary := DailySummary{
			Date:          dayStr,
			BranchID:      branchID,
			Net:           decimal.Zero,
			Tax:           decimal.Zero,
			Total:         decimal.Zero,
			CashTotal:     decimal.Zero,
			CardTotal:     decimal.Zero,
			TransferTotal: decimal.Zero,
		}

		var sales []models.Sale
		if err := database.DB.
			Where("branch_id = ? AND status = ? AND date >= ? AND date < ?",
				branchID, models.SaleCompleted, day, day.AddDate(0, 0, 1)).
			Find(&sales).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Günlük özet alınamadı")
		}

		summary.SaleCount = int64(len(sales))
		for _, s := range sales {
			summary.Net = summary.Net.Add(s.Net)
			summary.Tax = summary.Tax.Add(s.Tax)
			summary.Total = summary.Total.Add(s.Total)
			switch s.PaymentMethod {
			case models.PaymentCash:
				summary.CashTotal = summary.CashTotal.Add(s.Total)
			case models.PaymentCard:
				summary.CardTotal = summary.CardTotal.Add(s.Total)
			case models.PaymentTransfer:
				summary.TransferTotal = summary.TransferTotal.Add(s.Total)
			}
		}

		if payload, err := json.Marshal(summary); err == nil {
			cache.Set(c.Context(), cacheKey, string(payload), cache.DailySummaryTTL)
		}

		return c.JSON(summary)
	}
}

// GET /api/reports/movements?from=&to= — hareket tipi bazında özet
func MovementSummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var requested *uint
		if bid := uint(c.QueryInt("branch_id", 0)); bid > 0 {
			requested = &bid
		}
		branchID, err := auth.ResolveBranchID(c, requested)
		if err != nil {
			return err
		}

		dbq := database.DB.Model(&models.StockMovement{}).
			Where("branch_id = ?", branchID)

		if from := c.Query("from"); from != "" {
			if t, err := time.Parse("2006-01-02", from); err == nil {
				dbq = dbq.Where("movement_date >= ?", t)
			}
		}
		if to := c.Query("to"); to != "" {
			if t, err := time.Parse("2006-01-02", to); err == nil {
				dbq = dbq.Where("movement_date < ?", t.AddDate(0, 0, 1))
			}
		}

		var rows []MovementSummaryRow
		if err := dbq.
			Select("type, COUNT(*) AS movement_count, SUM(quantity) AS total_quantity").
			Group("type").
			Scan(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Hareket özeti alınamadı")
		}

		return c.JSON(rows)
	}
}

// GET /api/reports/top-products?limit=10 — satış adedine göre en çok satanlar
func TopProductsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var requested *uint
		if bid := uint(c.QueryInt("branch_id", 0)); bid > 0 {
			requested = &bid
		}
		branchID, err := auth.ResolveBranchID(c, requested)
		if err != nil {
			return err
		}

		limit := c.QueryInt("limit", 10)
		if limit <= 0 || limit > 50 {
			limit = 10
		}

		cacheKey := fmt.Sprintf("%s%d", cache.TopProductsKeyPrefix, branchID)
		if cached, ok := cache.Get(c.Context(), cacheKey); ok && limit == 10 {
			c.Set("X-Cache", "HIT")
			c.Set("Content-Type", "application/json")
			return c.SendString(cached)
		}

		var rows []TopProductRow
		if err := database.DB.
			Table("sale_products").
			Select(`sale_products.product_id,
				products.name AS product_name,
				SUM(sale_products.quantity) AS total_qty,
				SUM(sale_products.subtotal) AS total_revenue`).
			Joins("JOIN sales ON sales.id = sale_products.sale_id").
			Joins("JOIN products ON products.id = sale_products.product_id").
			Where("sales.branch_id = ? AND sales.status = ? AND sales.deleted_at IS NULL",
				branchID, models.SaleCompleted).
			Group("sale_products.product_id, products.name").
			Order("total_qty DESC").
			Limit(limit).
			Scan(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Çok satanlar raporu alınamadı")
		}

		if limit == 10 {
			if payload, err := json.Marshal(rows); err == nil {
				cache.Set(c.Context(), cacheKey, string(payload), cache.TopProductsTTL)
			}
		}

		return c.JSON(rows)
	}
}
