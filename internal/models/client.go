package models

import (
	"time"

	"gorm.io/gorm"
)

// Client: Müşteri kaydı (satışa opsiyonel olarak bağlanır)
type Client struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:150;not null"`
	TaxNumber string `gorm:"size:30"` // Vergi no (opsiyonel)
	Phone     string `gorm:"size:50"`
	Email     string `gorm:"size:100"`
	Address   string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}
