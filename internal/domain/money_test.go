package domain

import "testing"

func TestTaxCentsForRoundsHalfUp(t *testing.T) {
	cases := []struct {
		subtotal int64
		rate     float64
		want     int64
	}{
		{7998, 15, 1200},
		{999, 15, 150},
		{10000, 0, 0},
		{0, 15, 0},
		{100, 12.5, 13},
	}
	for _, tc := range cases {
		if got := TaxCentsFor(tc.subtotal, tc.rate); got != tc.want {
			t.Fatalf("TaxCentsFor(%d, %v) = %d, want %d", tc.subtotal, tc.rate, got, tc.want)
		}
	}
}

func TestProportionalTaxCents(t *testing.T) {
	if got := ProportionalTaxCents(1200, 8000, 4000); got != 600 {
		t.Fatalf("expected half the tax (600), got %d", got)
	}
	if got := ProportionalTaxCents(1200, 8000, 8000); got != 1200 {
		t.Fatalf("expected full tax, got %d", got)
	}
	if got := ProportionalTaxCents(0, 8000, 4000); got != 0 {
		t.Fatalf("expected 0 for tax-free sale, got %d", got)
	}
	if got := ProportionalTaxCents(1200, 0, 4000); got != 0 {
		t.Fatalf("expected 0 for zero subtotal, got %d", got)
	}
}

func TestRemainingQuantityNeverNegative(t *testing.T) {
	item := SaleItem{Quantity: 2, ReturnedQuantity: 2}
	if got := item.RemainingQuantity(); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
	item.ReturnedQuantity = 3
	if got := item.RemainingQuantity(); got != 0 {
		t.Fatalf("expected clamp at 0, got %d", got)
	}
}

func TestFullyReturned(t *testing.T) {
	sale := Sale{Items: []SaleItem{
		{Quantity: 2, ReturnedQuantity: 2},
		{Quantity: 1, ReturnedQuantity: 0},
	}}
	if sale.FullyReturned() {
		t.Fatalf("expected not fully returned")
	}
	sale.Items[1].ReturnedQuantity = 1
	if !sale.FullyReturned() {
		t.Fatalf("expected fully returned")
	}
}
