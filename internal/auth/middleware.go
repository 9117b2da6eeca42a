package auth

import (
	"fmt"
	"strings"

	"market-backend/internal/config"
	"market-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserRoleKey = "user_role"
	CtxBranchIDKey = "branch_id"
)

func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header eksik")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization formatı 'Bearer <token>' olmalı")
		}

		tokenStr := parts[1]

		token, err := jwt.ParseWithClaims(tokenStr, &JWTCustomClaims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("geçersiz imzalama yöntemi")
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "Geçersiz veya süresi dolmuş token")
		}

		claims, ok := token.Claims.(*JWTCustomClaims)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Token çözümlenemedi")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxBranchIDKey, claims.BranchID)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roleVal := c.Locals(CtxUserRoleKey)
		role, ok := roleVal.(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "Rol bilgisi alınamadı")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "Bu işlem için yetkiniz yok")
	}
}

// CurrentUserID: middleware sonrası Locals'tan kullanıcı ID'sini okur
func CurrentUserID(c *fiber.Ctx) (uint, error) {
	id, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "Kullanıcı bilgisi alınamadı")
	}
	return id, nil
}

func CurrentRole(c *fiber.Ctx) (models.UserRole, error) {
	role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
	if !ok {
		return "", fiber.NewError(fiber.StatusForbidden, "Rol bilgisi alınamadı")
	}
	return role, nil
}

func CurrentBranchID(c *fiber.Ctx) *uint {
	branchID, _ := c.Locals(CtxBranchIDKey).(*uint)
	return branchID
}

// CanActInBranch: kullanıcının hedef şubede işlem yapıp yapamayacağını kontrol eder.
// Super admin her şubede çalışır, branch admin ve kasiyer sadece kendi şubesinde.
func CanActInBranch(c *fiber.Ctx, targetBranchID uint) error {
	role, err := CurrentRole(c)
	if err != nil {
		return err
	}
	if role == models.RoleSuperAdmin {
		return nil
	}
	branchID := CurrentBranchID(c)
	if branchID == nil || *branchID != targetBranchID {
		return fiber.NewError(fiber.StatusForbidden, "Bu şubede işlem yapma yetkiniz yok")
	}
	return nil
}

// ResolveBranchID: hedef şubeyi belirler. Super admin body/query'den gelen
// değeri kullanmak zorundadır, diğer roller her zaman kendi şubesine sabitlenir.
func ResolveBranchID(c *fiber.Ctx, requested *uint) (uint, error) {
	role, err := CurrentRole(c)
	if err != nil {
		return 0, err
	}
	if role == models.RoleSuperAdmin {
		if requested == nil || *requested == 0 {
			return 0, fiber.NewError(fiber.StatusBadRequest, "Super admin için branch_id zorunlu")
		}
		return *requested, nil
	}
	branchID := CurrentBranchID(c)
	if branchID == nil {
		return 0, fiber.NewError(fiber.StatusForbidden, "Kullanıcının şube kaydı yok")
	}
	if requested != nil && *requested != 0 && *requested != *branchID {
		return 0, fiber.NewError(fiber.StatusForbidden, "Başka şube adına işlem yapılamaz")
	}
	return *branchID, nil
}
