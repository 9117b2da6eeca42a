package auth

import (
	"testing"

	"market-backend/internal/models"

	"github.com/stretchr/testify/require"
)

func TestRolePermissions(t *testing.T) {
	super := rolePermissions(models.RoleSuperAdmin)
	require.Equal(t, true, super["can_sell"])
	require.Equal(t, true, super["can_manage_products"])
	require.Equal(t, true, super["can_cancel_sales"])
	require.Equal(t, true, super["can_reconcile_stock"])
	require.Equal(t, true, super["can_manage_branches"])

	branchAdmin := rolePermissions(models.RoleBranchAdmin)
	require.Equal(t, true, branchAdmin["can_sell"])
	require.Equal(t, true, branchAdmin["can_manage_products"])
	require.Equal(t, true, branchAdmin["can_cancel_sales"])
	require.Equal(t, false, branchAdmin["can_manage_branches"])

	// Kasiyer sadece satış yapar
	cashier := rolePermissions(models.RoleCashier)
	require.Equal(t, true, cashier["can_sell"])
	require.Equal(t, false, cashier["can_manage_products"])
	require.Equal(t, false, cashier["can_cancel_sales"])
	require.Equal(t, false, cashier["can_reconcile_stock"])
	require.Equal(t, false, cashier["can_manage_branches"])
}
