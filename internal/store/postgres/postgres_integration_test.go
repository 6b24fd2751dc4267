package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
)

func newIntegrationStore(t *testing.T) (*Store, string) {
	t.Helper()
	databaseURL := os.Getenv("KEDAIPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KEDAIPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))

	stamp := time.Now().UnixNano()
	businessID := fmt.Sprintf("biz-it-%d", stamp)
	branchID := fmt.Sprintf("br-it-%d", stamp)
	now := time.Now().UTC()
	require.NoError(t, s.CreateBusiness(ctx,
		domain.Business{ID: businessID, Name: "Integration", OwnerID: "owner-it", CreatedAt: now},
		domain.Branch{ID: branchID, BusinessID: businessID, Name: "Main", Active: true, CreatedAt: now},
		domain.UserAccount{
			ID: fmt.Sprintf("owner_it_%d", stamp), Email: fmt.Sprintf("owner-%d@it.test", stamp),
			PasswordHash: "hash", Role: domain.RoleOwner, BusinessID: businessID, BranchID: branchID,
			Active: true, CreatedAt: now,
		},
	))

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id IN (SELECT id FROM sales WHERE business_id = $1)`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE business_id = $1`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_history WHERE business_id = $1`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE business_id = $1`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE business_id = $1`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM branches WHERE business_id = $1`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM businesses WHERE id = $1`, businessID)
		_ = s.Close()
	})
	return s, businessID
}

func seedProduct(t *testing.T, s *Store, businessID string, id string, stock int) domain.Product {
	t.Helper()
	now := time.Now().UTC()
	p := domain.Product{
		ID: id, BusinessID: businessID, BranchID: "br-x", Name: "Item " + id, SKU: id, Unit: "pcs",
		SellPrice: decimal.NewFromInt(100), CostPrice: decimal.NewFromInt(60), TaxRate: decimal.NewFromInt(15),
		CurrentStock: stock, Active: true, CreatedAt: now, UpdatedAt: now,
	}
	created, err := s.CreateProduct(context.Background(), p)
	require.NoError(t, err)
	return *created
}

func TestCommitSaleDecrementsStockInOneTransaction(t *testing.T) {
	s, businessID := newIntegrationStore(t)
	ctx := context.Background()
	a := seedProduct(t, s, businessID, businessID+"-a", 5)
	b := seedProduct(t, s, businessID, businessID+"-b", 1)

	now := time.Now().UTC()
	sale := domain.Sale{
		ID: businessID + "-sale", BusinessID: businessID, ReceiptNumber: "20240515100000001",
		Items: []domain.SaleItem{
			{ProductID: a.ID, ProductName: a.Name, SKU: a.SKU, SellPrice: a.SellPrice, CostPrice: a.CostPrice, TaxRate: a.TaxRate, Quantity: 3, Subtotal: decimal.NewFromInt(300), Tax: decimal.NewFromInt(45)},
		},
		Subtotal: decimal.NewFromInt(300), Tax: decimal.NewFromInt(45), Total: decimal.NewFromInt(345),
		AmountPaid: decimal.NewFromInt(400), Change: decimal.NewFromInt(55), PaymentMethod: domain.PaymentCash,
		BranchID: "br-x", SoldBy: "owner", SoldAt: now, Date: now.Format(domain.DateLayout),
	}
	commit := store.SaleCommit{
		Sale:         sale,
		StockChanges: []domain.StockChange{{ProductID: a.ID, Quantity: 3}},
		History: []domain.StockHistoryEntry{{
			ID: sale.ID + "-h", BusinessID: businessID, ProductID: a.ID, Action: domain.StockSold,
			Actor: "owner", OldValue: "5 pcs", NewValue: "2 pcs", Note: "Sale #" + sale.ReceiptNumber, Timestamp: now,
		}},
	}
	_, err := s.CommitSale(ctx, commit)
	require.NoError(t, err)

	got, err := s.GetProduct(ctx, businessID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentStock)

	stored, err := s.GetSale(ctx, businessID, sale.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.True(t, stored.Total.Equal(decimal.NewFromInt(345)))
	assert.Equal(t, sale.Date, stored.Date)

	over := commit
	over.Sale.ID = businessID + "-sale-2"
	over.StockChanges = []domain.StockChange{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 2}}
	over.History = nil
	_, err = s.CommitSale(ctx, over)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	got, err = s.GetProduct(ctx, businessID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentStock)

	sales, err := s.ListSales(ctx, businessID)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestAdjustStockRejectsStaleExpectation(t *testing.T) {
	s, businessID := newIntegrationStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, businessID, businessID+"-c", 4)
	entry := domain.StockHistoryEntry{
		ID: businessID + "-adj", BusinessID: businessID, ProductID: p.ID, Action: domain.StockRestock,
		Actor: "owner", OldValue: "4 pcs", NewValue: "10 pcs", Timestamp: time.Now().UTC(),
	}

	updated, err := s.AdjustStock(ctx, store.StockAdjustment{BusinessID: businessID, ProductID: p.ID, ExpectedStock: 4, NewStock: 10, Entry: entry})
	require.NoError(t, err)
	assert.Equal(t, 10, updated.CurrentStock)

	entry.ID += "-2"
	_, err = s.AdjustStock(ctx, store.StockAdjustment{BusinessID: businessID, ProductID: p.ID, ExpectedStock: 4, NewStock: 1, Entry: entry})
	assert.ErrorIs(t, err, store.ErrConflict)

	history, err := s.ListStockHistory(ctx, businessID, p.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
