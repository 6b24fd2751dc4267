package mongodb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("KEDAIPOS_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("set KEDAIPOS_TEST_MONGO_URI to run mongo integration test")
	}
	ctx := context.Background()
	database := fmt.Sprintf("kedaipos_it_%d", time.Now().UnixNano())
	s, err := New(ctx, uri, database, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.EnsureIndexes(ctx))
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func TestMongoCommitSaleIsAllOrNothing(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for id, stock := range map[string]int{"p-a": 5, "p-b": 1} {
		_, err := s.CreateProduct(ctx, domain.Product{
			ID: id, BusinessID: "biz", BranchID: "br", Name: id, SKU: id, Unit: "pcs",
			SellPrice: decimal.NewFromInt(10), TaxRate: decimal.NewFromInt(15), CurrentStock: stock,
			Active: true, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
	}

	sale := sampleSale()
	sale.BusinessID = "biz"
	sale.Items[0].ProductID = "p-a"
	commit := store.SaleCommit{
		Sale:         sale,
		StockChanges: []domain.StockChange{{ProductID: "p-a", Quantity: 3}},
		History: []domain.StockHistoryEntry{{
			ID: "h-1", BusinessID: "biz", ProductID: "p-a", Action: domain.StockSold,
			OldValue: "5 pcs", NewValue: "2 pcs", Timestamp: now,
		}},
	}
	_, err := s.CommitSale(ctx, commit)
	require.NoError(t, err)

	failing := commit
	failing.Sale.ID = "sale-2"
	failing.StockChanges = []domain.StockChange{{ProductID: "p-a", Quantity: 1}, {ProductID: "p-b", Quantity: 2}}
	failing.History = nil
	_, err = s.CommitSale(ctx, failing)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	a, err := s.GetProduct(ctx, "biz", "p-a")
	require.NoError(t, err)
	assert.Equal(t, 2, a.CurrentStock)

	sales, err := s.ListSales(ctx, "biz")
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	history, err := s.ListStockHistory(ctx, "biz", "p-a", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
