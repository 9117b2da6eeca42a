package main

import (
	"strings"

	"market-backend/internal/admin"
	"market-backend/internal/audit"
	"market-backend/internal/auth"
	"market-backend/internal/cache"
	"market-backend/internal/clients"
	"market-backend/internal/config"
	"market-backend/internal/database"
	"market-backend/internal/inventory"
	"market-backend/internal/logger"
	"market-backend/internal/models"
	"market-backend/internal/reports"
	"market-backend/internal/sales"
	"market-backend/internal/stock"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)
	cache.Init(cfg)

	log := logger.Get()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.WithField("path", c.Path()).Error(err.Error())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Beklenmeyen sunucu hatası",
			})
		},
	})

	// CORS origins'i virgülle ayrılmış string'den array'e çevir
	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-super-admin", auth.RegisterSuperAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Super admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleSuperAdmin))

	// Şube yönetimi
	adminRoutes.Post("/branches", admin.CreateBranchHandler())
	adminRoutes.Get("/branches", admin.ListBranchesHandler())
	adminRoutes.Get("/branches/:id", admin.GetBranchHandler())
	adminRoutes.Put("/branches/:id", admin.UpdateBranchHandler())
	adminRoutes.Delete("/branches/:id", admin.DeleteBranchHandler())
	adminRoutes.Post("/branches/:id/staff", admin.CreateBranchStaffHandler())
	adminRoutes.Get("/branches/:id/staff", admin.ListBranchStaffHandler())

	// Kategori yönetimi (yazma sadece super_admin)
	adminRoutes.Post("/categories", inventory.CreateCategoryHandler())
	adminRoutes.Put("/categories/:id", inventory.UpdateCategoryHandler())
	adminRoutes.Delete("/categories/:id", inventory.DeleteCategoryHandler())

	// Yönetici (super_admin + branch_admin) gerektiren route'lar.
	// Grup yerine route bazında guard: boş prefix'li grup middleware'i
	// sonradan eklenen ortak route'ları da yakalardı.
	manager := auth.RequireRole(models.RoleSuperAdmin, models.RoleBranchAdmin)

	// Ürün yönetimi
	protected.Post("/products", manager, inventory.CreateProductHandler())
	protected.Put("/products/:id", manager, inventory.UpdateProductHandler())
	protected.Delete("/products/:id", manager, inventory.DeleteProductHandler())
	protected.Post("/products/:id/restore", manager, inventory.RestoreProductHandler())
	protected.Post("/products/:id/stock-correction", manager, inventory.StockCorrectionHandler())

	// Stok mutabakatı ve defter doğrulama
	protected.Get("/stock-movements/verify/:productId", manager, stock.VerifyChainHandler())
	protected.Post("/stock-movements/reconcile/:productId", manager, stock.ReconcileHandler())

	// Satış iptali (kasiyer iptal edemez)
	protected.Post("/sales/:id/cancel", manager, sales.CancelSaleHandler())

	// Müşteri yönetimi
	protected.Post("/clients", manager, clients.CreateClientHandler())
	protected.Put("/clients/:id", manager, clients.UpdateClientHandler())
	protected.Delete("/clients/:id", manager, clients.DeleteClientHandler())

	// Ortak (auth gerektiren) route'lar

	// Ürünler ve kategoriler
	protected.Get("/products", inventory.ListProductsHandler())
	protected.Get("/products/low-stock", inventory.LowStockHandler())
	protected.Get("/products/:id", inventory.GetProductHandler())
	protected.Get("/categories", inventory.ListCategoriesHandler())

	// Stok hareketleri
	protected.Post("/stock-movements", stock.CreateMovementHandler())
	protected.Get("/stock-movements", stock.ListMovementsHandler())

	// Satışlar
	protected.Post("/sales", sales.CreateSaleHandler())
	protected.Get("/sales", sales.ListSalesHandler())
	protected.Get("/sales/:id", sales.GetSaleHandler())

	// Müşteriler
	protected.Get("/clients", clients.ListClientsHandler())
	protected.Get("/clients/:id", clients.GetClientHandler())

	// Raporlar
	protected.Get("/reports/daily-summary", reports.DailySummaryHandler())
	protected.Get("/reports/movements", reports.MovementSummaryHandler())
	protected.Get("/reports/top-products", reports.TopProductsHandler())

	// Audit logs
	protected.Get("/audit-logs", audit.ListAuditLogsHandler())

	log.Info("Server çalışıyor port: " + cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
