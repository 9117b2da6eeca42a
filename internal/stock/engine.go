package stock

import (
	"errors"
	"fmt"
	"time"

	"market-backend/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrProductNotFound     = errors.New("ürün bulunamadı")
	ErrProductInactive     = errors.New("ürün pasif durumda, stok hareketi yapılamaz")
	ErrInvalidQuantity     = errors.New("geçersiz miktar")
	ErrInvalidMovementType = errors.New("geçersiz hareket tipi")
	ErrBranchMismatch      = errors.New("ürün bu şubeye ait değil")
	ErrConcurrency         = errors.New("eşzamanlı işlem çakışması")
)

// MovementInput: stok motoruna verilen hareket isteği.
// Quantity yorumu tipe bağlıdır: in/out için hareket miktarı (>0),
// adjustment için yeni mutlak stok (>=0).
type MovementInput struct {
	ProductID    uint
	UserID       uint
	BranchID     uint
	Type         models.MovementType
	Quantity     int
	UnitCost     *decimal.Decimal
	Reference    string
	Note         string
	MovementDate time.Time
	AllowTrashed bool // düzeltme yolu: silinmiş/pasif ürüne hareket (ör: satış iptali)
}

// ApplyMovementTx: hareketi verilen transaction içinde uygular. Ürün satırı
// FOR UPDATE ile kilitlenir, defter kaydı yazılır ve product.stock
// SADECE burada güncellenir. product.stock'a başka hiçbir kod yazmaz.
func ApplyMovementTx(tx *gorm.DB, in MovementInput) (*models.StockMovement, error) {
	switch in.Type {
	case models.MovementIn, models.MovementOut:
		if in.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	case models.MovementAdjustment:
		if in.Quantity < 0 {
			return nil, ErrInvalidQuantity
		}
	default:
		return nil, ErrInvalidMovementType
	}

	query := tx.Clauses(clause.Locking{Strength: "UPDATE"})
	if in.AllowTrashed {
		// Silinmiş ürün de kilitlenebilir olmalı, iptal telafisi defteri tamamlar
		query = query.Unscoped()
	}

	var product models.Product
	if err := query.First(&product, in.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	if product.BranchID != in.BranchID {
		return nil, ErrBranchMismatch
	}
	if !product.IsActive && in.Type != models.MovementAdjustment && !in.AllowTrashed {
		return nil, ErrProductInactive
	}

	previous := product.Stock
	var next int
	switch in.Type {
	case models.MovementIn:
		next = previous + in.Quantity
	case models.MovementOut:
		// Manuel çıkışlar negatife düşmez, sıfırda kırpılır.
		// Satış yolu yetersiz stoğu motor çağrılmadan reddeder.
		next = previous - in.Quantity
		if next < 0 {
			next = 0
		}
	case models.MovementAdjustment:
		next = in.Quantity
	}

	movementDate := in.MovementDate
	if movementDate.IsZero() {
		movementDate = time.Now()
	}

	movement := models.StockMovement{
		ProductID:     in.ProductID,
		UserID:        in.UserID,
		BranchID:      in.BranchID,
		Type:          in.Type,
		Quantity:      in.Quantity,
		PreviousStock: previous,
		NewStock:      next,
		UnitCost:      in.UnitCost,
		Reference:     in.Reference,
		Note:          in.Note,
		MovementDate:  movementDate,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, err
	}

	update := tx.Model(&models.Product{})
	if in.AllowTrashed {
		// Varsayılan scope silinmiş satırı atlar, güncelleme sessizce kaybolurdu
		update = tx.Unscoped().Model(&models.Product{})
	}
	if err := update.
		Where("id = ?", product.ID).
		Update("stock", next).Error; err != nil {
		return nil, err
	}

	return &movement, nil
}

// ApplyMovement: hareketi kendi transaction'ında uygular. Serileştirme
// çakışmasında (40001/40P01) bir kez yeniden dener.
func ApplyMovement(db *gorm.DB, in MovementInput) (*models.StockMovement, error) {
	var movement *models.StockMovement
	run := func() error {
		return db.Transaction(func(tx *gorm.DB) error {
			m, err := ApplyMovementTx(tx, in)
			if err != nil {
				return err
			}
			movement = m
			return nil
		})
	}

	err := run()
	if err != nil && isSerializationError(err) {
		err = run()
	}
	if err != nil {
		if isSerializationError(err) {
			return nil, fmt.Errorf("%w: %v", ErrConcurrency, err)
		}
		return nil, err
	}
	return movement, nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001: serialization_failure, 40P01: deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// ChainGap: defter zincirindeki kopukluk
type ChainGap struct {
	MovementID   uint `json:"movement_id"`
	ExpectedPrev int  `json:"expected_previous"`
	RecordedPrev int  `json:"recorded_previous"`
}

// VerifyResult: bir ürünün defter doğrulama sonucu
type VerifyResult struct {
	ProductID     uint       `json:"product_id"`
	Consistent    bool       `json:"consistent"`
	LedgerStock   int        `json:"ledger_stock"`
	ProductStock  int        `json:"product_stock"`
	MovementCount int64      `json:"movement_count"`
	Gaps          []ChainGap `json:"gaps,omitempty"`
}

// VerifyChain: ürünün hareket zincirini baştan yürütür. Her kaydın
// PreviousStock'u bir önceki kaydın NewStock'una, son kaydın NewStock'u
// product.stock'a eşit olmalıdır. Hareket yoksa product.stock 0 beklenir.
func VerifyChain(db *gorm.DB, productID uint) (*VerifyResult, error) {
	var product models.Product
	if err := db.First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	var movements []models.StockMovement
	if err := db.Where("product_id = ?", productID).
		Order("id ASC").
		Find(&movements).Error; err != nil {
		return nil, err
	}

	result := &VerifyResult{
		ProductID:     productID,
		ProductStock:  product.Stock,
		MovementCount: int64(len(movements)),
	}

	expected := 0
	for _, m := range movements {
		if m.PreviousStock != expected {
			result.Gaps = append(result.Gaps, ChainGap{
				MovementID:   m.ID,
				ExpectedPrev: expected,
				RecordedPrev: m.PreviousStock,
			})
		}
		expected = m.NewStock
	}
	result.LedgerStock = expected
	result.Consistent = len(result.Gaps) == 0 && result.LedgerStock == product.Stock

	return result, nil
}

// Reconcile: defter ile product.stock uyuşmuyorsa defteri otorite kabul
// edip product.stock'u defterin son NewStock değerine çeker. Defter
// append-only olduğu için zincirdeki tarihsel kopukluklar (gaps)
// düzeltilemez, sadece raporlanır.
func Reconcile(db *gorm.DB, productID uint) (*VerifyResult, error) {
	var result *VerifyResult
	err := db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}

		r, err := VerifyChain(tx, productID)
		if err != nil {
			return err
		}

		if r.LedgerStock != r.ProductStock {
			if err := tx.Model(&models.Product{}).
				Where("id = ?", productID).
				Update("stock", r.LedgerStock).Error; err != nil {
				return fmt.Errorf("stok mutabakatı yazılamadı: %w", err)
			}
			r.ProductStock = r.LedgerStock
			r.Consistent = len(r.Gaps) == 0
		}

		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
