package models

import "testing"

func TestIsLowStock(t *testing.T) {
	cases := []struct {
		name     string
		stock    int
		minStock int
		want     bool
	}{
		{"stok minimumun altında", 3, 5, true},
		{"stok minimuma eşit", 5, 5, true},
		{"stok minimumun üstünde", 6, 5, false},
		{"sıfır stok sıfır minimum", 0, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Product{Stock: tc.stock, MinStock: tc.minStock}
			if got := p.IsLowStock(); got != tc.want {
				t.Errorf("IsLowStock() stock=%d min=%d: got %v, want %v", tc.stock, tc.minStock, got, tc.want)
			}
		})
	}
}
