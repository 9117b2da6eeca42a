package sales

import (
	"errors"
	"time"

	"market-backend/internal/audit"
	"market-backend/internal/auth"
	"market-backend/internal/cache"
	"market-backend/internal/database"
	"market-backend/internal/logger"
	"market-backend/internal/models"
	"market-backend/internal/stock"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

type SaleItemRequest struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity" validate:"required,min=1"`
}

type CreateSaleRequest struct {
	BranchID      *uint                `json:"branch_id"`
	ClientID      *uint                `json:"client_id"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required,oneof=cash card transfer"`
	AmountPaid    decimal.Decimal      `json:"amount_paid" validate:"required"`
	Items         []SaleItemRequest    `json:"items" validate:"required,min=1,dive"`
}

// saleError: orkestratör sentinel hatalarını HTTP koduna çevirir
func saleError(err error) error {
	switch {
	case errors.Is(err, ErrSaleNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrProductNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrInvalidQuantity):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidPayment),
		errors.Is(err, ErrProductInactive),
		errors.Is(err, ErrBranchMismatch),
		errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, stock.ErrProductInactive),
		errors.Is(err, stock.ErrBranchMismatch):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, stock.ErrConcurrency), isSerializationError(err):
		return fiber.NewError(fiber.StatusConflict, "Eşzamanlı işlem çakışması, lütfen tekrar deneyin")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Satış işlemi tamamlanamadı")
	}
}

// POST /api/sales
func CreateSaleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateSaleRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if err := validate.Struct(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Doğrulama hatası: "+err.Error())
		}

		userID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}
		branchID, err := auth.ResolveBranchID(c, body.BranchID)
		if err != nil {
			return err
		}

		items := make([]SaleItemInput, 0, len(body.Items))
		for _, item := range body.Items {
			items = append(items, SaleItemInput{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			})
		}

		sale, err := CreateSale(database.DB, CreateSaleInput{
			BranchID:      branchID,
			SellerID:      userID,
			ClientID:      body.ClientID,
			PaymentMethod: body.PaymentMethod,
			AmountPaid:    body.AmountPaid,
			Items:         items,
		})
		if err != nil {
			logger.Error("sales", "CreateSaleHandler", err, logrus.Fields{
				"branch_id": branchID,
				"user_id":   userID,
			})
			return saleError(err)
		}

		if err := audit.WriteLog(audit.LogOptions{
			BranchID:    &branchID,
			UserID:      userID,
			UserName:    audit.UserNameByID(userID),
			EntityType:  "sale",
			EntityID:    sale.ID,
			Action:      models.AuditActionCreate,
			Description: "Satış " + sale.Code,
			After:       sale,
		}); err != nil {
			logger.Error("sales", "CreateSaleHandler", err, nil)
		}

		cache.InvalidateBranch(c.Context(), branchID)

		return c.Status(fiber.StatusCreated).JSON(sale)
	}
}

// GET /api/sales?from=&to=&status=&payment_method=&limit=&offset=
func ListSalesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var requested *uint
		if bid := uint(c.QueryInt("branch_id", 0)); bid > 0 {
			requested = &bid
		}
		branchID, err := auth.ResolveBranchID(c, requested)
		if err != nil {
			return err
		}

		dbq := database.DB.Model(&models.Sale{}).
			Where("branch_id = ?", branchID)

		if status := c.Query("status"); status != "" {
			dbq = dbq.Where("status = ?", status)
		}
		if pm := c.Query("payment_method"); pm != "" {
			dbq = dbq.Where("payment_method = ?", pm)
		}
		if from := c.Query("from"); from != "" {
			if t, err := time.Parse("2006-01-02", from); err == nil {
				dbq = dbq.Where("date >= ?", t)
			}
		}
		if to := c.Query("to"); to != "" {
			if t, err := time.Parse("2006-01-02", to); err == nil {
				dbq = dbq.Where("date < ?", t.AddDate(0, 0, 1))
			}
		}

		limit := c.QueryInt("limit", 50)
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		offset := c.QueryInt("offset", 0)
		if offset < 0 {
			offset = 0
		}

		var total int64
		dbq.Count(&total)

		var sales []models.Sale
		if err := dbq.Preload("Items").Preload("Client").
			Order("date DESC, id DESC").
			Limit(limit).Offset(offset).
			Find(&sales).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Satışlar listelenemedi")
		}

		return c.JSON(fiber.Map{
			"total": total,
			"sales": sales,
		})
	}
}

// GET /api/sales/:id
func GetSaleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz satış ID")
		}

		var sale models.Sale
		if err := database.DB.Preload("Items.Product").Preload("Client").Preload("Branch").
			First(&sale, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Satış bulunamadı")
		}
		if err := auth.CanActInBranch(c, sale.BranchID); err != nil {
			return err
		}

		return c.JSON(sale)
	}
}

// POST /api/sales/:id/cancel
func CancelSaleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz satış ID")
		}

		var existing models.Sale
		if err := database.DB.First(&existing, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Satış bulunamadı")
		}
		if err := auth.CanActInBranch(c, existing.BranchID); err != nil {
			return err
		}

		userID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		sale, err := CancelSale(database.DB, uint(id), userID)
		if err != nil {
			logger.Error("sales", "CancelSaleHandler", err, logrus.Fields{"sale_id": id})
			return saleError(err)
		}

		if err := audit.WriteLog(audit.LogOptions{
			BranchID:    &sale.BranchID,
			UserID:      userID,
			UserName:    audit.UserNameByID(userID),
			EntityType:  "sale",
			EntityID:    sale.ID,
			Action:      models.AuditActionCancel,
			Description: "Satış iptali " + sale.Code,
			Before:      existing,
			After:       sale,
		}); err != nil {
			logger.Error("sales", "CancelSaleHandler", err, nil)
		}

		cache.InvalidateBranch(c.Context(), sale.BranchID)

		return c.JSON(sale)
	}
}
