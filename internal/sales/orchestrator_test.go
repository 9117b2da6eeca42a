package sales

import (
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"market-backend/internal/models"
	"market-backend/internal/stock"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestNewSaleCodeFormat(t *testing.T) {
	now := time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^SAT-20260901-[0-9A-F]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := newSaleCode(now)
		require.Regexp(t, pattern, code)
		seen[code] = true
	}
	// Rastgele parça pratikte çakışmamalı
	require.Greater(t, len(seen), 95)
}

func TestCreateSaleValidation(t *testing.T) {
	// Doğrulama hataları veritabanına dokunmadan döner
	_, err := CreateSale(nil, CreateSaleInput{
		PaymentMethod: models.PaymentCash,
		Items:         nil,
	})
	require.ErrorIs(t, err, ErrEmptyCart)

	_, err = CreateSale(nil, CreateSaleInput{
		PaymentMethod: "bitcoin",
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidPayment)

	_, err = CreateSale(nil, CreateSaleInput{
		PaymentMethod: models.PaymentCash,
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func setupIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=market_test port=5432 sslmode=disable"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Migrator().DropTable(
		&models.StockMovement{}, &models.SaleProduct{}, &models.Sale{},
		&models.Product{}, &models.Category{}, &models.Client{},
		&models.User{}, &models.Branch{}, &models.AuditLog{},
	))
	require.NoError(t, db.AutoMigrate(
		&models.Branch{}, &models.User{}, &models.Category{}, &models.Product{},
		&models.Client{}, &models.StockMovement{}, &models.Sale{},
		&models.SaleProduct{}, &models.AuditLog{},
	))
	return db
}

type fixture struct {
	branch  models.Branch
	user    models.User
	product models.Product
}

func seedSaleFixture(t *testing.T, db *gorm.DB, initialStock int) *fixture {
	t.Helper()

	f := &fixture{}
	f.branch = models.Branch{Name: "Merkez Şube"}
	require.NoError(t, db.Create(&f.branch).Error)

	f.user = models.User{
		Name: "Test Kasiyer", Email: "kasiyer@test.local",
		PasswordHash: "x", Role: models.RoleCashier, BranchID: &f.branch.ID,
	}
	require.NoError(t, db.Create(&f.user).Error)

	category := models.Category{Name: "Gıda"}
	require.NoError(t, db.Create(&category).Error)

	f.product = models.Product{
		Name: "Zeytinyağı 1L", Code: "ZY-1", BranchID: f.branch.ID, CategoryID: category.ID,
		PurchasePrice: decimal.NewFromInt(700), SalePrice: decimal.NewFromInt(1000),
		TaxRate: decimal.NewFromInt(19), MinStock: 2, IsActive: true,
	}
	require.NoError(t, db.Create(&f.product).Error)

	if initialStock > 0 {
		_, err := stock.ApplyMovement(db, stock.MovementInput{
			ProductID: f.product.ID, UserID: f.user.ID, BranchID: f.branch.ID,
			Type: models.MovementAdjustment, Quantity: initialStock,
			Reference: "Açılış stoğu",
		})
		require.NoError(t, err)
	}
	return f
}

func TestCreateSaleTotals(t *testing.T) {
	db := setupIntegrationDB(t)
	f := seedSaleFixture(t, db, 10)

	// 2 adet x 1000, %19 KDV, nakit 3000
	sale, err := CreateSale(db, CreateSaleInput{
		BranchID:      f.branch.ID,
		SellerID:      f.user.ID,
		PaymentMethod: models.PaymentCash,
		AmountPaid:    decimal.NewFromInt(3000),
		Items:         []SaleItemInput{{ProductID: f.product.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	require.True(t, sale.Net.Equal(decimal.NewFromInt(2000)), "net: %s", sale.Net)
	require.True(t, sale.Tax.Equal(decimal.NewFromInt(380)), "tax: %s", sale.Tax)
	require.True(t, sale.Total.Equal(decimal.NewFromInt(2380)), "total: %s", sale.Total)
	require.True(t, sale.ChangeAmount.Equal(decimal.NewFromInt(620)), "change: %s", sale.ChangeAmount)
	require.Equal(t, models.SaleCompleted, sale.Status)
	require.Len(t, sale.Items, 1)
	require.True(t, sale.Items[0].Subtotal.Equal(decimal.NewFromInt(2000)))

	// Stok düştü ve hareket satışı referanslıyor
	var product models.Product
	require.NoError(t, db.First(&product, f.product.ID).Error)
	require.Equal(t, 8, product.Stock)

	var movement models.StockMovement
	require.NoError(t, db.Where("product_id = ? AND type = ?", f.product.ID, models.MovementOut).
		Order("id DESC").First(&movement).Error)
	require.Equal(t, "Satış "+sale.Code, movement.Reference)
	require.Equal(t, 10, movement.PreviousStock)
	require.Equal(t, 8, movement.NewStock)

	// Defter zinciri tutarlı
	result, err := stock.VerifyChain(db, f.product.ID)
	require.NoError(t, err)
	require.True(t, result.Consistent)
}

func TestCreateSaleDuplicateLines(t *testing.T) {
	db := setupIntegrationDB(t)
	f := seedSaleFixture(t, db, 10)

	// Aynı ürün iki ayrı kalemde: her kalem kendi satırını ve kendi
	// defter hareketini üretir
	sale, err := CreateSale(db, CreateSaleInput{
		BranchID: f.branch.ID, SellerID: f.user.ID,
		PaymentMethod: models.PaymentCash,
		AmountPaid:    decimal.NewFromInt(5000),
		Items: []SaleItemInput{
			{ProductID: f.product.ID, Quantity: 1},
			{ProductID: f.product.ID, Quantity: 2},
		},
	})
	require.NoError(t, err)

	require.Len(t, sale.Items, 2)
	require.Equal(t, 1, sale.Items[0].Quantity)
	require.Equal(t, 2, sale.Items[1].Quantity)
	require.True(t, sale.Net.Equal(decimal.NewFromInt(3000)), "net: %s", sale.Net)

	var movements []models.StockMovement
	require.NoError(t, db.Where("product_id = ? AND type = ?", f.product.ID, models.MovementOut).
		Order("id ASC").Find(&movements).Error)
	require.Len(t, movements, 2)
	require.Equal(t, 10, movements[0].PreviousStock)
	require.Equal(t, 9, movements[0].NewStock)
	require.Equal(t, 9, movements[1].PreviousStock)
	require.Equal(t, 7, movements[1].NewStock)

	var product models.Product
	require.NoError(t, db.First(&product, f.product.ID).Error)
	require.Equal(t, 7, product.Stock)

	result, err := stock.VerifyChain(db, f.product.ID)
	require.NoError(t, err)
	require.True(t, result.Consistent)
}

func TestCreateSaleDuplicateLinesExceedStock(t *testing.T) {
	db := setupIntegrationDB(t)
	f := seedSaleFixture(t, db, 2)

	// Kalemler tek tek stoğa sığar ama toplamı sığmaz; ikinci kalem
	// kilitli stoğun kalanına karşı reddedilir
	_, err := CreateSale(db, CreateSaleInput{
		BranchID: f.branch.ID, SellerID: f.user.ID,
		PaymentMethod: models.PaymentCash,
		AmountPaid:    decimal.NewFromInt(5000),
		Items: []SaleItemInput{
			{ProductID: f.product.ID, Quantity: 1},
			{ProductID: f.product.ID, Quantity: 2},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var saleCount int64
	db.Model(&models.Sale{}).Count(&saleCount)
	require.Equal(t, int64(0), saleCount)

	var product models.Product
	require.NoError(t, db.First(&product, f.product.ID).Error)
	require.Equal(t, 2, product.Stock)
}

func TestCreateSaleInsufficientStock(t *testing.T) {
	db := setupIntegrationDB(t)
	f := seedSaleFixture(t, db, 1)

	_, err := CreateSale(db, CreateSaleInput{
		BranchID:      f.branch.ID,
		SellerID:      f.user.ID,
		PaymentMethod: models.PaymentCash,
		AmountPaid:    decimal.NewFromInt(5000),
		Items:         []SaleItemInput{{ProductID: f.product.ID, Quantity: 3}},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Hiçbir şey yazılmamış olmalı: satış yok, stok değişmemiş
	var saleCount int64
	db.Model(&models.Sale{}).Count(&saleCount)
	require.Equal(t, int64(0), saleCount)

	var product models.Product
	require.NoError(t, db.First(&product, f.product.ID).Error)
	require.Equal(t, 1, product.Stock)

	var movementCount int64
	db.Model(&models.StockMovement{}).
		Where("product_id = ? AND type = ?", f.product.ID, models.MovementOut).
		Count(&movementCount)
	require.Equal(t, int64(0), movementCount)
}

func TestCreateSalePaymentRules(t *testing.T) {
	db := setupIntegrationDB(t)
	f := seedSaleFixture(t, db, 10)

	// Nakit: alınan tutar toplamın altında
	_, err := CreateSale(db, CreateSaleInput{
		BranchID: f.branch.ID, SellerID: f.user.ID,
		PaymentMethod: models.PaymentCash,
		AmountPaid:    decimal.NewFromInt(100),
		Items:         []SaleItemInput{{ProductID: f.product.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidPayment)

	// Kart: alınan tutar ne gönderilirse gönderilsin toplam üzerinden
	// kaydedilir, üstü para kavramı yok. 1190 = 1000 + %19
	sale, err := CreateSale(db, CreateSaleInput{
		BranchID: f.branch.ID, SellerID: f.user.ID,
		PaymentMethod: models.PaymentCard,
		AmountPaid:    decimal.NewFromInt(2000),
		Items:         []SaleItemInput{{ProductID: f.product.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.True(t, sale.AmountPaid.Equal(decimal.NewFromInt(1190)), "paid: %s", sale.AmountPaid)
	require.True(t, sale.ChangeAmount.IsZero())
}

func TestCancelSale(t *testing.T) {
	db := setupIntegrationDB(t)
	f := seedSaleFixture(t, db, 10)

	sale, err := CreateSale(db, CreateSaleInput{
		BranchID: f.branch.ID, SellerID: f.user.ID,
		PaymentMethod: models.PaymentCash,
		AmountPaid:    decimal.NewFromInt(2380),
		Items:         []SaleItemInput{{ProductID: f.product.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	cancelled, err := CancelSale(db, sale.ID, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, models.SaleCancelled, cancelled.Status)

	// Stok telafi hareketiyle geri geldi, orijinal çıkış kaydı yerinde
	var product models.Product
	require.NoError(t, db.First(&product, f.product.ID).Error)
	require.Equal(t, 10, product.Stock)

	var compensating models.StockMovement
	require.NoError(t, db.Where("product_id = ? AND reference = ?",
		f.product.ID, "Satış iptali "+sale.Code).First(&compensating).Error)
	require.Equal(t, models.MovementIn, compensating.Type)
	require.Equal(t, 2, compensating.Quantity)

	result, err := stock.VerifyChain(db, f.product.ID)
	require.NoError(t, err)
	require.True(t, result.Consistent)

	// İkinci iptal reddedilir
	_, err = CancelSale(db, sale.ID, f.user.ID)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestCancelSaleAfterProductRemoved(t *testing.T) {
	db := setupIntegrationDB(t)
	f := seedSaleFixture(t, db, 10)

	sale, err := CreateSale(db, CreateSaleInput{
		BranchID: f.branch.ID, SellerID: f.user.ID,
		PaymentMethod: models.PaymentCash,
		AmountPaid:    decimal.NewFromInt(2380),
		Items:         []SaleItemInput{{ProductID: f.product.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	// Ürün satıştan sonra pasife alınıp siliniyor; iptal yine de çalışmalı
	require.NoError(t, db.Model(&models.Product{}).
		Where("id = ?", f.product.ID).
		Update("is_active", false).Error)
	require.NoError(t, db.Delete(&models.Product{}, f.product.ID).Error)

	cancelled, err := CancelSale(db, sale.ID, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, models.SaleCancelled, cancelled.Status)

	var product models.Product
	require.NoError(t, db.Unscoped().First(&product, f.product.ID).Error)
	require.Equal(t, 10, product.Stock)

	var compensating models.StockMovement
	require.NoError(t, db.Where("product_id = ? AND reference = ?",
		f.product.ID, "Satış iptali "+sale.Code).First(&compensating).Error)
	require.Equal(t, models.MovementIn, compensating.Type)
}

func TestConcurrentSalesLastUnit(t *testing.T) {
	db := setupIntegrationDB(t)
	f := seedSaleFixture(t, db, 1)

	// Son birim için yarışan iki satış: biri başarır, diğeri yetersiz stok alır
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = CreateSale(db, CreateSaleInput{
				BranchID: f.branch.ID, SellerID: f.user.ID,
				PaymentMethod: models.PaymentCash,
				AmountPaid:    decimal.NewFromInt(2000),
				Items:         []SaleItemInput{{ProductID: f.product.ID, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	var succeeded, failed int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrInsufficientStock)
			failed++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, failed)

	var product models.Product
	require.NoError(t, db.First(&product, f.product.ID).Error)
	require.Equal(t, 0, product.Stock)

	result, err := stock.VerifyChain(db, f.product.ID)
	require.NoError(t, err)
	require.True(t, result.Consistent)
}
