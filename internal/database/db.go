package database

import (
	"log"

	"market-backend/internal/config"
	"market-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Veritabanına bağlanılamadı: %v", err)
	}

	err = DB.AutoMigrate(
		&models.Branch{},
		&models.User{},
		&models.Category{},
		&models.Product{},
		&models.Client{},
		&models.StockMovement{},
		&models.Sale{},
		&models.SaleProduct{},
		&models.AuditLog{},
	)
	if err != nil {
		log.Fatalf("AutoMigrate hatası: %v", err)
	}

	// stock_movements tablosunda UPDATE/DELETE yasak: defter append-only.
	// Trigger ile veritabanı seviyesinde de garanti altına alıyoruz.
	if err := DB.Exec(`
		CREATE OR REPLACE FUNCTION reject_stock_movement_change() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'stock_movements kayıtları değiştirilemez veya silinemez';
		END;
		$$ LANGUAGE plpgsql
	`).Error; err != nil {
		log.Printf("Stok defteri trigger fonksiyonu oluşturulurken hata: %v", err)
	}
	if err := DB.Exec(`
		DROP TRIGGER IF EXISTS trg_stock_movements_immutable ON stock_movements;
		CREATE TRIGGER trg_stock_movements_immutable
		BEFORE UPDATE OR DELETE ON stock_movements
		FOR EACH ROW EXECUTE FUNCTION reject_stock_movement_change()
	`).Error; err != nil {
		log.Printf("Stok defteri trigger'ı oluşturulurken hata: %v", err)
	}

	log.Println("Veritabanı bağlantısı başarılı. Migration tamamlandı.")
}
