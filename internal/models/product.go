package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID            uint            `gorm:"primaryKey"`
	Name          string          `gorm:"size:150;not null"`
	Code          string          `gorm:"size:50;not null;uniqueIndex:idx_products_branch_code"` // Şube içinde benzersiz stok kodu
	BranchID      uint            `gorm:"not null;uniqueIndex:idx_products_branch_code;index"`
	Branch        Branch
	CategoryID    uint `gorm:"index;not null"`
	Category      Category
	PurchasePrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	SalePrice     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	TaxRate       decimal.Decimal `gorm:"type:numeric(5,2);not null"` // KDV yüzdesi (ör: 19.00)
	Stock         int             `gorm:"not null;default:0"`         // SADECE stok motoru yazar
	MinStock      int             `gorm:"not null;default:0"`
	IsActive      bool            `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

// IsLowStock: kritik stok kontrolü (stok <= minimum stok)
func (p *Product) IsLowStock() bool {
	return p.Stock <= p.MinStock
}
