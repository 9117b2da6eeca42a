package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementIn         MovementType = "in"         // giriş (alım, iade)
	MovementOut        MovementType = "out"        // çıkış (satış, fire)
	MovementAdjustment MovementType = "adjustment" // sayım düzeltmesi, quantity = yeni mutlak stok
)

// StockMovement: Stok defteri kaydı. Append-only; oluşturulduktan sonra
// asla güncellenmez veya silinmez. PreviousStock -> NewStock zinciri
// ürün bazında kesintisiz olmak zorundadır.
type StockMovement struct {
	ID            uint `gorm:"primaryKey"`
	ProductID     uint `gorm:"not null;index:idx_movements_product_date"`
	Product       Product
	UserID        uint             `gorm:"not null"` // hareketi yapan kullanıcı
	BranchID      uint             `gorm:"not null;index:idx_movements_branch_date"`
	Type          MovementType     `gorm:"size:20;not null;index:idx_movements_type_date"`
	Quantity      int              `gorm:"not null"` // in/out: hareket miktarı, adjustment: yeni mutlak stok
	PreviousStock int              `gorm:"not null"`
	NewStock      int              `gorm:"not null"`
	UnitCost      *decimal.Decimal `gorm:"type:numeric(12,2)"` // birim maliyet, "in" için anlamlı
	Reference     string           `gorm:"size:100"`           // ör: "Satış SAT-20250901-A1B2C3"
	Note          string           `gorm:"size:255"`
	MovementDate  time.Time        `gorm:"not null;index:idx_movements_product_date;index:idx_movements_branch_date;index:idx_movements_type_date"`
	CreatedAt     time.Time
}
