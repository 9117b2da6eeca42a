package inventory

import (
	"encoding/json"
	"fmt"
	"strings"

	"market-backend/internal/audit"
	"market-backend/internal/auth"
	"market-backend/internal/cache"
	"market-backend/internal/database"
	"market-backend/internal/logger"
	"market-backend/internal/models"
	"market-backend/internal/stock"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateProductRequest struct {
	Name          string          `json:"name"`
	Code          string          `json:"code"`
	BranchID      *uint           `json:"branch_id"`
	CategoryID    uint            `json:"category_id"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	MinStock      int             `json:"min_stock"`
	InitialStock  int             `json:"initial_stock"` // Opsiyonel, adjustment hareketi olarak yazılır
}

type UpdateProductRequest struct {
	Name          *string          `json:"name"`
	Code          *string          `json:"code"`
	CategoryID    *uint            `json:"category_id"`
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
	SalePrice     *decimal.Decimal `json:"sale_price"`
	TaxRate       *decimal.Decimal `json:"tax_rate"`
	MinStock      *int             `json:"min_stock"`
	IsActive      *bool            `json:"is_active"`
}

type StockCorrectionRequest struct {
	NewStock int    `json:"new_stock"`
	Note     string `json:"note"`
}

// POST /api/products
func CreateProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		body.Name = strings.TrimSpace(body.Name)
		body.Code = strings.TrimSpace(body.Code)

		if body.Name == "" || body.Code == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Ürün adı ve kodu zorunlu")
		}
		if body.CategoryID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Kategori zorunlu")
		}
		if body.SalePrice.IsNegative() || body.PurchasePrice.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, "Fiyat negatif olamaz")
		}
		if body.TaxRate.IsNegative() || body.TaxRate.GreaterThan(decimal.NewFromInt(100)) {
			return fiber.NewError(fiber.StatusBadRequest, "KDV oranı 0-100 arasında olmalı")
		}
		if body.MinStock < 0 || body.InitialStock < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Stok değerleri negatif olamaz")
		}

		userID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}
		branchID, err := auth.ResolveBranchID(c, body.BranchID)
		if err != nil {
			return err
		}

		var category models.Category
		if err := database.DB.First(&category, body.CategoryID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Kategori bulunamadı")
		}

		// Kod şube içinde benzersiz olmalı
		var existing models.Product
		if err := database.DB.Where("branch_id = ? AND code = ?", branchID, body.Code).
			First(&existing).Error; err == nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bu ürün kodu şubede zaten kullanılıyor")
		}

		p := models.Product{
			Name:          body.Name,
			Code:          body.Code,
			BranchID:      branchID,
			CategoryID:    body.CategoryID,
			PurchasePrice: body.PurchasePrice,
			SalePrice:     body.SalePrice,
			TaxRate:       body.TaxRate,
			MinStock:      body.MinStock,
			IsActive:      true,
		}

		// Ürün + açılış stoğu tek transaction: stok alanına motor dışında yazılmaz,
		// açılış stoğu adjustment hareketi olarak deftere girer
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
			if body.InitialStock > 0 {
				if _, err := stock.ApplyMovementTx(tx, stock.MovementInput{
					ProductID: p.ID,
					UserID:    userID,
					BranchID:  branchID,
					Type:      models.MovementAdjustment,
					Quantity:  body.InitialStock,
					Reference: "Açılış stoğu",
				}); err != nil {
					return err
				}
				p.Stock = body.InitialStock
			}
			return nil
		})
		if err != nil {
			logger.Error("inventory", "CreateProductHandler", err, nil)
			return fiber.NewError(fiber.StatusInternalServerError, "Ürün oluşturulamadı")
		}

		if err := audit.WriteLog(audit.LogOptions{
			BranchID:    &branchID,
			UserID:      userID,
			UserName:    audit.UserNameByID(userID),
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: "Ürün oluşturuldu: " + p.Name,
			After:       p,
		}); err != nil {
			logger.Error("inventory", "CreateProductHandler", err, nil)
		}

		cache.InvalidateBranch(c.Context(), branchID)

		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

// GET /api/products?category_id=&q=&include_inactive=&low_stock=
func ListProductsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var requested *uint
		if bid := uint(c.QueryInt("branch_id", 0)); bid > 0 {
			requested = &bid
		}
		branchID, err := auth.ResolveBranchID(c, requested)
		if err != nil {
			return err
		}

		dbq := database.DB.Model(&models.Product{}).
			Where("branch_id = ?", branchID)

		if cid := uint(c.QueryInt("category_id", 0)); cid > 0 {
			dbq = dbq.Where("category_id = ?", cid)
		}
		if q := strings.TrimSpace(c.Query("q")); q != "" {
			like := "%" + q + "%"
			dbq = dbq.Where("name ILIKE ? OR code ILIKE ?", like, like)
		}
		if c.Query("include_inactive") != "true" {
			dbq = dbq.Where("is_active = ?", true)
		}
		if c.Query("low_stock") == "true" {
			dbq = dbq.Where("stock <= min_stock")
		}

		var products []models.Product
		if err := dbq.Preload("Category").Order("name asc").Find(&products).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Ürünler listelenemedi")
		}

		return c.JSON(products)
	}
}

// GET /api/products/:id
func GetProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz ürün ID")
		}

		var p models.Product
		if err := database.DB.Preload("Category").Preload("Branch").
			First(&p, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Ürün bulunamadı")
		}
		if err := auth.CanActInBranch(c, p.BranchID); err != nil {
			return err
		}

		return c.JSON(p)
	}
}

// PUT /api/products/:id — stok alanı bilinçli olarak güncellenemez,
// stok değişikliği sadece stok hareketiyle yapılır
func UpdateProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz ürün ID")
		}

		var p models.Product
		if err := database.DB.First(&p, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Ürün bulunamadı")
		}
		if err := auth.CanActInBranch(c, p.BranchID); err != nil {
			return err
		}

		var body UpdateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		before := p

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Ürün adı boş olamaz")
			}
			p.Name = name
		}
		if body.Code != nil {
			code := strings.TrimSpace(*body.Code)
			if code == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Ürün kodu boş olamaz")
			}
			if code != p.Code {
				var existing models.Product
				if err := database.DB.Where("branch_id = ? AND code = ? AND id != ?", p.BranchID, code, p.ID).
					First(&existing).Error; err == nil {
					return fiber.NewError(fiber.StatusBadRequest, "Bu ürün kodu şubede zaten kullanılıyor")
				}
			}
			p.Code = code
		}
		if body.CategoryID != nil {
			var category models.Category
			if err := database.DB.First(&category, *body.CategoryID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Kategori bulunamadı")
			}
			p.CategoryID = *body.CategoryID
		}
		if body.PurchasePrice != nil {
			if body.PurchasePrice.IsNegative() {
				return fiber.NewError(fiber.StatusBadRequest, "Fiyat negatif olamaz")
			}
			p.PurchasePrice = *body.PurchasePrice
		}
		if body.SalePrice != nil {
			if body.SalePrice.IsNegative() {
				return fiber.NewError(fiber.StatusBadRequest, "Fiyat negatif olamaz")
			}
			p.SalePrice = *body.SalePrice
		}
		if body.TaxRate != nil {
			if body.TaxRate.IsNegative() || body.TaxRate.GreaterThan(decimal.NewFromInt(100)) {
				return fiber.NewError(fiber.StatusBadRequest, "KDV oranı 0-100 arasında olmalı")
			}
			p.TaxRate = *body.TaxRate
		}
		if body.MinStock != nil {
			if *body.MinStock < 0 {
				return fiber.NewError(fiber.StatusBadRequest, "Minimum stok negatif olamaz")
			}
			p.MinStock = *body.MinStock
		}
		if body.IsActive != nil {
			p.IsActive = *body.IsActive
		}

		// Save yerine alan listesi: stok kolonu bu yoldan asla yazılmaz
		if err := database.DB.Model(&p).
			Select("name", "code", "category_id", "purchase_price", "sale_price", "tax_rate", "min_stock", "is_active").
			Updates(&p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Ürün güncellenemedi")
		}

		userID, _ := auth.CurrentUserID(c)
		if err := audit.WriteLog(audit.LogOptions{
			BranchID:    &p.BranchID,
			UserID:      userID,
			UserName:    audit.UserNameByID(userID),
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionUpdate,
			Description: "Ürün güncellendi: " + p.Name,
			Before:      before,
			After:       p,
		}); err != nil {
			logger.Error("inventory", "UpdateProductHandler", err, nil)
		}

		cache.InvalidateBranch(c.Context(), p.BranchID)

		return c.JSON(p)
	}
}

// POST /api/products/:id/stock-correction — sayım sonucu düzeltme,
// adjustment hareketi olarak deftere yazılır
func StockCorrectionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz ürün ID")
		}

		var body StockCorrectionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if body.NewStock < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Yeni stok negatif olamaz")
		}

		var p models.Product
		if err := database.DB.First(&p, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Ürün bulunamadı")
		}
		if err := auth.CanActInBranch(c, p.BranchID); err != nil {
			return err
		}

		userID, err := auth.CurrentUserID(c)
		if err != nil {
			return err
		}

		movement, err := stock.ApplyMovement(database.DB, stock.MovementInput{
			ProductID: p.ID,
			UserID:    userID,
			BranchID:  p.BranchID,
			Type:      models.MovementAdjustment,
			Quantity:  body.NewStock,
			Reference: "Sayım düzeltmesi",
			Note:      body.Note,
		})
		if err != nil {
			logger.Error("inventory", "StockCorrectionHandler", err, nil)
			return stock.EngineError(err)
		}

		if err := audit.WriteLog(audit.LogOptions{
			BranchID:    &p.BranchID,
			UserID:      userID,
			UserName:    audit.UserNameByID(userID),
			EntityType:  "stock_movement",
			EntityID:    movement.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Sayım düzeltmesi: %s (%d -> %d)", p.Name, movement.PreviousStock, movement.NewStock),
			After:       movement,
		}); err != nil {
			logger.Error("inventory", "StockCorrectionHandler", err, nil)
		}

		cache.InvalidateBranch(c.Context(), p.BranchID)

		return c.JSON(movement)
	}
}

// DELETE /api/products/:id — soft delete, defter kayıtları yerinde kalır
func DeleteProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz ürün ID")
		}

		var p models.Product
		if err := database.DB.First(&p, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Ürün bulunamadı")
		}
		if err := auth.CanActInBranch(c, p.BranchID); err != nil {
			return err
		}

		if err := database.DB.Delete(&p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Ürün silinemedi")
		}

		userID, _ := auth.CurrentUserID(c)
		if err := audit.WriteLog(audit.LogOptions{
			BranchID:    &p.BranchID,
			UserID:      userID,
			UserName:    audit.UserNameByID(userID),
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionDelete,
			Description: "Ürün silindi: " + p.Name,
			Before:      p,
		}); err != nil {
			logger.Error("inventory", "DeleteProductHandler", err, nil)
		}

		cache.InvalidateBranch(c.Context(), p.BranchID)

		return c.JSON(fiber.Map{"message": "Ürün silindi"})
	}
}

// POST /api/products/:id/restore
func RestoreProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz ürün ID")
		}

		var p models.Product
		if err := database.DB.Unscoped().First(&p, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Ürün bulunamadı")
		}
		if err := auth.CanActInBranch(c, p.BranchID); err != nil {
			return err
		}
		if !p.DeletedAt.Valid {
			return fiber.NewError(fiber.StatusBadRequest, "Ürün zaten aktif")
		}

		if err := database.DB.Unscoped().Model(&p).
			Update("deleted_at", nil).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Ürün geri yüklenemedi")
		}

		cache.InvalidateBranch(c.Context(), p.BranchID)

		return c.JSON(fiber.Map{"message": "Ürün geri yüklendi"})
	}
}

// GET /api/products/low-stock — Redis cache'li düşük stok listesi
func LowStockHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var requested *uint
		if bid := uint(c.QueryInt("branch_id", 0)); bid > 0 {
			requested = &bid
		}
		branchID, err := auth.ResolveBranchID(c, requested)
		if err != nil {
			return err
		}

		cacheKey := fmt.Sprintf("%s%d", cache.LowStockKeyPrefix, branchID)
		if cached, ok := cache.Get(c.Context(), cacheKey); ok {
			c.Set("X-Cache", "HIT")
			c.Set("Content-Type", "application/json")
			return c.SendString(cached)
		}

		var products []models.Product
		if err := database.DB.Preload("Category").
			Where("branch_id = ? AND is_active = ? AND stock <= min_stock", branchID, true).
			Order("stock asc").
			Find(&products).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Düşük stok listesi alınamadı")
		}

		if payload, err := json.Marshal(products); err == nil {
			cache.Set(c.Context(), cacheKey, string(payload), cache.LowStockTTL)
		}

		return c.JSON(products)
	}
}
