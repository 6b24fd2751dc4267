package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
)

func newSeeded(t *testing.T) *Store {
	t.Helper()
	return NewSeeded(nil)
}

func saleCommit(id string, soldAt time.Time, lines map[string]int) store.SaleCommit {
	sale := domain.Sale{
		ID:            id,
		BusinessID:    SeedBusinessID,
		ReceiptNumber: "20240515100000001",
		PaymentMethod: domain.PaymentCash,
		BranchID:      SeedMainBranchID,
		BranchName:    "Main",
		SoldBy:        "owner",
		SoldAt:        soldAt,
		Date:          soldAt.Format(domain.DateLayout),
		Total:         decimal.Zero,
		AmountPaid:    decimal.NewFromInt(1),
	}
	commit := store.SaleCommit{Sale: sale}
	for productID, qty := range lines {
		commit.Sale.Items = append(commit.Sale.Items, domain.SaleItem{ProductID: productID, Quantity: qty, SellPrice: decimal.NewFromInt(1), TaxRate: decimal.Zero})
		commit.StockChanges = append(commit.StockChanges, domain.StockChange{ProductID: productID, Quantity: qty})
		commit.History = append(commit.History, domain.StockHistoryEntry{
			ID:         id + "-" + productID,
			BusinessID: SeedBusinessID,
			ProductID:  productID,
			Action:     domain.StockSold,
			Actor:      "owner",
			Timestamp:  soldAt,
		})
	}
	return commit
}

func TestCommitSaleDecrementsStockAndAppendsHistory(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

	_, err := s.CommitSale(ctx, saleCommit("sale-1", now, map[string]int{"prd-egg-10": 3, "prd-coffee": 10}))
	require.NoError(t, err)

	egg, err := s.GetProduct(ctx, SeedBusinessID, "prd-egg-10")
	require.NoError(t, err)
	assert.Equal(t, 57, egg.CurrentStock)

	coffee, err := s.GetProduct(ctx, SeedBusinessID, "prd-coffee")
	require.NoError(t, err)
	assert.Equal(t, 190, coffee.CurrentStock)

	history, err := s.ListStockHistory(ctx, SeedBusinessID, "prd-egg-10", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StockSold, history[0].Action)
	assert.Equal(t, domain.StockLabel(60, egg.Unit), history[0].OldValue)
	assert.Equal(t, domain.StockLabel(57, egg.Unit), history[0].NewValue)

	sale, err := s.GetSale(ctx, SeedBusinessID, "sale-1")
	require.NoError(t, err)
	assert.Len(t, sale.Items, 2)
}

func TestCommitSaleIsAllOrNothing(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

	_, err := s.CommitSale(ctx, saleCommit("sale-1", now, map[string]int{"prd-egg-10": 3, "prd-sugar-1kg": 4}))
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	egg, err := s.GetProduct(ctx, SeedBusinessID, "prd-egg-10")
	require.NoError(t, err)
	assert.Equal(t, 60, egg.CurrentStock)

	sales, err := s.ListSales(ctx, SeedBusinessID)
	require.NoError(t, err)
	assert.Empty(t, sales)

	history, err := s.ListStockHistory(ctx, SeedBusinessID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCommitSaleRejectsDuplicatesAndMalformed(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

	_, err := s.CommitSale(ctx, saleCommit("sale-1", now, map[string]int{"prd-egg-10": 1}))
	require.NoError(t, err)
	_, err = s.CommitSale(ctx, saleCommit("sale-1", now, map[string]int{"prd-egg-10": 1}))
	assert.ErrorIs(t, err, store.ErrConflict)

	bad := saleCommit("sale-2", now, map[string]int{"prd-egg-10": 1})
	bad.Sale.PaymentMethod = "barter"
	_, err = s.CommitSale(ctx, bad)
	assert.ErrorIs(t, err, store.ErrValidation)

	missing := saleCommit("sale-3", now, map[string]int{"prd-ghost": 1})
	_, err = s.CommitSale(ctx, missing)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdjustStockCompareAndSet(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()
	entry := domain.StockHistoryEntry{
		ID:         "hist-1",
		BusinessID: SeedBusinessID,
		ProductID:  "prd-sugar-1kg",
		Action:     domain.StockRestock,
		Timestamp:  time.Now().UTC(),
	}

	updated, err := s.AdjustStock(ctx, store.StockAdjustment{BusinessID: SeedBusinessID, ProductID: "prd-sugar-1kg", ExpectedStock: 3, NewStock: 13, Entry: entry})
	require.NoError(t, err)
	assert.Equal(t, 13, updated.CurrentStock)

	_, err = s.AdjustStock(ctx, store.StockAdjustment{BusinessID: SeedBusinessID, ProductID: "prd-sugar-1kg", ExpectedStock: 3, NewStock: 20, Entry: entry})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.AdjustStock(ctx, store.StockAdjustment{BusinessID: SeedBusinessID, ProductID: "prd-sugar-1kg", ExpectedStock: 13, NewStock: -1, Entry: entry})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestUpdateProductKeepsStock(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	p, err := s.GetProduct(ctx, SeedBusinessID, "prd-milk-1l")
	require.NoError(t, err)
	p.CurrentStock = 9999
	p.Name = "UHT Milk 1 Litre"

	updated, err := s.UpdateProduct(ctx, *p)
	require.NoError(t, err)
	assert.Equal(t, 80, updated.CurrentStock)
	assert.Equal(t, "UHT Milk 1 Litre", updated.Name)

	p.Barcode = "1234567890123"
	_, err = s.UpdateProduct(ctx, *p)
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestProductsAreScopedToBusinessAndBranch(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	all, err := s.ListProducts(ctx, SeedBusinessID, "")
	require.NoError(t, err)
	assert.Len(t, all, 7)

	east, err := s.ListProducts(ctx, SeedBusinessID, SeedEastBranchID)
	require.NoError(t, err)
	assert.Len(t, east, 2)

	_, err = s.GetProduct(ctx, "other-biz", "prd-egg-10")
	assert.ErrorIs(t, err, store.ErrNotFound)

	found, err := s.FindProductByBarcode(ctx, SeedBusinessID, "6001009100139")
	require.NoError(t, err)
	assert.Equal(t, "prd-rice-5kg", found.ID)
}

func TestUsersAndBusinesses(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.CreateBusiness(ctx,
		domain.Business{ID: "biz-1", Name: "Toko", OwnerID: "ana", CreatedAt: now},
		domain.Branch{ID: "br-1", BusinessID: "biz-1", Name: "Main", Active: true, CreatedAt: now},
		domain.UserAccount{ID: "ana", Email: "Ana@Example.com", PasswordHash: "x", Role: domain.RoleOwner, BusinessID: "biz-1", BranchID: "br-1", Active: true},
	)
	require.NoError(t, err)

	user, err := s.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ana", user.ID)

	err = s.CreateUser(ctx, domain.UserAccount{ID: "ana", Email: "ANA@example.com", PasswordHash: "y"})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.GetBusiness(ctx, "biz-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	branches, err := s.ListBranches(ctx, "biz-1")
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "Main", branches[0].Name)
}
