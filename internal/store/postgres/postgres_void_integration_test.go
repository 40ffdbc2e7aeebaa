package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"tillpoint/backend/internal/domain"
)

func TestVoidSaleRestocksInventory(t *testing.T) {
	databaseURL := os.Getenv("TILLPOINT_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TILLPOINT_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-void-it-%d", stamp)
	saleID := fmt.Sprintf("sale-void-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price_cents, stock, low_stock_threshold, active, created_at, updated_at)
		VALUES ($1, 'Void IT Product', 'Test', 12000, 10, 2, true, now(), now())
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		ID:              saleID,
		Type:            domain.SaleTypeSale,
		Status:          domain.SaleStatusCompleted,
		PaymentMethod:   domain.PaymentMethodCash,
		AmountPaidCents: 30000,
		OperatorID:      "op-it",
		OperatorName:    "Integration Operator",
		Items: []domain.SaleItem{
			{ProductID: productID, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.SubtotalCents != 24000 || sale.TotalCents != 24000 {
		t.Fatalf("unexpected totals: subtotal %d total %d", sale.SubtotalCents, sale.TotalCents)
	}

	var stock int
	if err := s.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", stock)
	}

	result, err := s.VoidSale(ctx, saleID, domain.AuthorizationRecord{
		UserID:    "user-it",
		UserName:  "Integration Admin",
		Timestamp: time.Now().UTC(),
		Action:    domain.AuthActionVoid,
		Details:   "integration test void",
	})
	if err != nil {
		t.Fatalf("void sale: %v", err)
	}
	if result.Sale.Status != domain.SaleStatusVoided {
		t.Fatalf("expected voided status, got %s", result.Sale.Status)
	}
	if result.Restored[productID] != 2 {
		t.Fatalf("expected 2 units restocked, got %d", result.Restored[productID])
	}

	if err := s.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 10 {
		t.Fatalf("expected stock 10 after void restock, got %d", stock)
	}

	reloaded, err := s.GetSaleByID(ctx, saleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if reloaded.Status != domain.SaleStatusVoided {
		t.Fatalf("expected sale status voided, got %s", reloaded.Status)
	}
	if len(reloaded.Authorizations) != 1 || reloaded.Authorizations[0].Action != domain.AuthActionVoid {
		t.Fatalf("expected void authorization persisted, got %+v", reloaded.Authorizations)
	}
}
