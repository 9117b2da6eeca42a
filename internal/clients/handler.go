package clients

import (
	"strings"

	"market-backend/internal/database"
	"market-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateClientRequest struct {
	Name      string `json:"name"`
	TaxNumber string `json:"tax_number"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
}

type UpdateClientRequest struct {
	Name      *string `json:"name"`
	TaxNumber *string `json:"tax_number"`
	Phone     *string `json:"phone"`
	Email     *string `json:"email"`
	Address   *string `json:"address"`
}

// POST /api/clients
func CreateClientHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateClientRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Müşteri adı zorunlu")
		}

		client := models.Client{
			Name:      body.Name,
			TaxNumber: strings.TrimSpace(body.TaxNumber),
			Phone:     strings.TrimSpace(body.Phone),
			Email:     strings.ToLower(strings.TrimSpace(body.Email)),
			Address:   strings.TrimSpace(body.Address),
		}
		if err := database.DB.Create(&client).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Müşteri oluşturulamadı")
		}

		return c.Status(fiber.StatusCreated).JSON(client)
	}
}

// GET /api/clients?q=
func ListClientsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.Client{})

		if q := strings.TrimSpace(c.Query("q")); q != "" {
			like := "%" + q + "%"
			dbq = dbq.Where("name ILIKE ? OR tax_number ILIKE ? OR phone ILIKE ?", like, like, like)
		}

		var clients []models.Client
		if err := dbq.Order("name asc").Find(&clients).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Müşteriler listelenemedi")
		}
		return c.JSON(clients)
	}
}

// GET /api/clients/:id
func GetClientHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz müşteri ID")
		}

		var client models.Client
		if err := database.DB.First(&client, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Müşteri bulunamadı")
		}
		return c.JSON(client)
	}
}

// PUT /api/clients/:id
func UpdateClientHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz müşteri ID")
		}

		var client models.Client
		if err := database.DB.First(&client, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Müşteri bulunamadı")
		}

		var body UpdateClientRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Müşteri adı boş olamaz")
			}
			client.Name = name
		}
		if body.TaxNumber != nil {
			client.TaxNumber = strings.TrimSpace(*body.TaxNumber)
		}
		if body.Phone != nil {
			client.Phone = strings.TrimSpace(*body.Phone)
		}
		if body.Email != nil {
			client.Email = strings.ToLower(strings.TrimSpace(*body.Email))
		}
		if body.Address != nil {
			client.Address = strings.TrimSpace(*body.Address)
		}

		if err := database.DB.Save(&client).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Müşteri güncellenemedi")
		}
		return c.JSON(client)
	}
}

// DELETE /api/clients/:id — soft delete, geçmiş satışlar müşteriyi referanslamaya devam eder
func DeleteClientHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz müşteri ID")
		}

		var client models.Client
		if err := database.DB.First(&client, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Müşteri bulunamadı")
		}

		if err := database.DB.Delete(&client).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Müşteri silinemedi")
		}
		return c.JSON(fiber.Map{"message": "Müşteri silindi"})
	}
}
