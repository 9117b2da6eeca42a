package stock

import (
	"errors"
	"time"

	"market-backend/internal/audit"
	"market-backend/internal/auth"
	"market-backend/internal/cache"
	"market-backend/internal/database"
	"market-backend/internal/logger"
	"market-backend/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

type CreateMovementRequest struct {
	ProductID    uint                `json:"product_id" validate:"required"`
	BranchID     *uint               `json:"branch_id"`
	Type         models.MovementType `json:"type" validate:"required,oneof=in out adjustment"`
	Quantity     int                 `json:"quantity" validate:"min=0"`
	UnitCost     *decimal.Decimal    `json:"unit_cost"`
	Reference    string              `json:"reference" validate:"max=100"`
	Note         string              `json:"note" validate:"max=255"`
	MovementDate *time.Time          `json:"movement_date"`
}

// EngineError: motor sentinel hatalarını HTTP koduna çevirir
func EngineError(err error) error {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidMovementType),
		errors.Is(err, ErrBranchMismatch),
		errors.Is(err, ErrProductInactive):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrConcurrency):
		return fiber.NewError(fiber.StatusConflict, "Eşzamanlı işlem çakışması, lütfen tekrar deneyin")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Stok hareketi uygulanamadı")
	}
}

// POST /api/stock-movements
func CreateMovementHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateMovementRequest
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

		input := MovementInput{
			ProductID: body.ProductID,
			UserID:    userID,
			BranchID:  branchID,
			Type:      body.Type,
			Quantity:  body.Quantity,
			UnitCost:  body.UnitCost,
			Reference: body.Reference,
			Note:      body.Note,
		}
		if body.MovementDate != nil {
			input.MovementDate = *body.MovementDate
		}

		movement, err := ApplyMovement(database.DB, input)
		if err != nil {
			logger.Error("stock", "CreateMovementHandler", err, logrus.Fields{
				"product_id": body.ProductID,
				"type":       body.Type,
			})
			return EngineError(err)
		}

		if err := audit.WriteLog(audit.LogOptions{
			BranchID:    &branchID,
			UserID:      userID,
			UserName:    audit.UserNameByID(userID),
			EntityType:  "stock_movement",
			EntityID:    movement.ID,
			Action:      models.AuditActionCreate,
			Description: "Stok hareketi: " + string(movement.Type),
			After:       movement,
		}); err != nil {
			logger.Error("stock", "CreateMovementHandler", err, nil)
		}

		cache.InvalidateBranch(c.Context(), branchID)

		return c.Status(fiber.StatusCreated).JSON(movement)
	}
}

// GET /api/stock-movements?product_id=&type=&from=&to=&limit=&offset=
func ListMovementsHandler() fiber.Handler {
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

		if pid := uint(c.QueryInt("product_id", 0)); pid > 0 {
			dbq = dbq.Where("product_id = ?", pid)
		}
		if mt := c.Query("type"); mt != "" {
			dbq = dbq.Where("type = ?", mt)
		}
		if from := c.Query("from"); from != "" {
			if t, err := time.Parse("2006-01-02", from); err == nil {
				dbq = dbq.Where("movement_date >= ?", t)
			}
		}
		if to := c.Query("to"); to != "" {
			if t, err := time.Parse("2006-01-02", to); err == nil {
				// Gün sonuna kadar dahil
				dbq = dbq.Where("movement_date < ?", t.AddDate(0, 0, 1))
			}
		}

		limit := c.QueryInt("limit", 100)
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		offset := c.QueryInt("offset", 0)
		if offset < 0 {
			offset = 0
		}

		var total int64
		dbq.Count(&total)

		var movements []models.StockMovement
		if err := dbq.Preload("Product").
			Order("movement_date DESC, id DESC").
			Limit(limit).Offset(offset).
			Find(&movements).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Stok hareketleri listelenemedi")
		}

		return c.JSON(fiber.Map{
			"total":     total,
			"movements": movements,
		})
	}
}

// GET /api/stock-movements/verify/:productId
func VerifyChainHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		productID, err := c.ParamsInt("productId")
		if err != nil || productID <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz ürün ID")
		}

		var product models.Product
		if err := database.DB.First(&product, productID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Ürün bulunamadı")
		}
		if err := auth.CanActInBranch(c, product.BranchID); err != nil {
			return err
		}

		result, err := VerifyChain(database.DB, uint(productID))
		if err != nil {
			return EngineError(err)
		}
		return c.JSON(result)
	}
}

// POST /api/stock-movements/reconcile/:productId
func ReconcileHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		productID, err := c.ParamsInt("productId")
		if err != nil || productID <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz ürün ID")
		}

		var product models.Product
		if err := database.DB.First(&product, productID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Ürün bulunamadı")
		}
		if err := auth.CanActInBranch(c, product.BranchID); err != nil {
			return err
		}

		userID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		before, err := VerifyChain(database.DB, uint(productID))
		if err != nil {
			return EngineError(err)
		}

		result, err := Reconcile(database.DB, uint(productID))
		if err != nil {
			logger.Error("stock", "ReconcileHandler", err, logrus.Fields{"product_id": productID})
			return EngineError(err)
		}

		if !before.Consistent {
			if err := audit.WriteLog(audit.LogOptions{
				BranchID:    &product.BranchID,
				UserID:      userID,
				UserName:    audit.UserNameByID(userID),
				EntityType:  "product",
				EntityID:    uint(productID),
				Action:      models.AuditActionUpdate,
				Description: "Stok mutabakatı",
				Before:      before,
				After:       result,
			}); err != nil {
				logger.Error("stock", "ReconcileHandler", err, nil)
			}
			cache.InvalidateBranch(c.Context(), product.BranchID)
		}

		return c.JSON(result)
	}
}
