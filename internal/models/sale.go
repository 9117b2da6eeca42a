package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"     // nakit
	PaymentCard     PaymentMethod = "card"     // kredi/banka kartı
	PaymentTransfer PaymentMethod = "transfer" // havale/EFT
)

type SaleStatus string

const (
	SaleCompleted SaleStatus = "completed"
	SalePending   SaleStatus = "pending"
	SaleCancelled SaleStatus = "cancelled"
)

// Sale: Satış başlığı. Kalemleri ve stok hareketleriyle birlikte tek
// transaction içinde oluşturulur. Total = Net + Tax.
type Sale struct {
	ID            uint   `gorm:"primaryKey"`
	Code          string `gorm:"size:50;not null;uniqueIndex"`
	BranchID      uint   `gorm:"not null;index"`
	Branch        Branch
	ClientID      *uint
	Client        *Client
	SellerID      uint            `gorm:"not null"` // satışı yapan kullanıcı
	Net           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Tax           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Total         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	AmountPaid    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ChangeAmount  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PaymentMethod PaymentMethod   `gorm:"size:20;not null"`
	Date          time.Time       `gorm:"not null;index"`
	Status        SaleStatus      `gorm:"size:20;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`

	Items []SaleProduct `gorm:"foreignKey:SaleID"`
}

// SaleProduct: Satış kalemi. Fiyat satış anındaki SalePrice'ın kopyasıdır,
// ürün fiyatı sonradan değişse de kalem değişmez.
type SaleProduct struct {
	ID        uint `gorm:"primaryKey"`
	SaleID    uint `gorm:"not null;index"`
	ProductID uint `gorm:"not null;index"`
	Product   Product
	Quantity  int             `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null"` // satış anı fiyatı
	Subtotal  decimal.Decimal `gorm:"type:numeric(12,2);not null"` // Quantity * Price
	CreatedAt time.Time
}
