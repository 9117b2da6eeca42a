package stock

import (
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestEngineErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"ürün yok", ErrProductNotFound, fiber.StatusNotFound},
		{"geçersiz miktar", ErrInvalidQuantity, fiber.StatusUnprocessableEntity},
		{"geçersiz tip", ErrInvalidMovementType, fiber.StatusUnprocessableEntity},
		{"şube uyuşmazlığı", ErrBranchMismatch, fiber.StatusUnprocessableEntity},
		{"pasif ürün", ErrProductInactive, fiber.StatusUnprocessableEntity},
		{"çakışma", ErrConcurrency, fiber.StatusConflict},
		{"sarılmış çakışma", fmt.Errorf("satış: %w", ErrConcurrency), fiber.StatusConflict},
		{"bilinmeyen", fmt.Errorf("disk dolu"), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ferr, ok := EngineError(tc.err).(*fiber.Error)
			require.True(t, ok)
			require.Equal(t, tc.code, ferr.Code)
		})
	}
}
