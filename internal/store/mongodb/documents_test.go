package mongodb

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
)

func sampleSale() domain.Sale {
	at := time.Date(2024, 5, 15, 9, 30, 0, 0, time.UTC)
	return domain.Sale{
		ID: "sale-1", BusinessID: "biz", ReceiptNumber: "20240515093000001",
		Items: []domain.SaleItem{{
			ProductID: "p1", ProductName: "Rice", SKU: "RICE", SellPrice: decimal.RequireFromString("12.50"),
			CostPrice: decimal.NewFromInt(9), TaxRate: decimal.NewFromInt(15), Quantity: 2,
			Subtotal: decimal.NewFromInt(25), Tax: decimal.RequireFromString("3.75"),
		}},
		Subtotal: decimal.NewFromInt(25), Tax: decimal.RequireFromString("3.75"), Total: decimal.RequireFromString("28.75"),
		AmountPaid: decimal.NewFromInt(30), Change: decimal.RequireFromString("1.25"), PaymentMethod: domain.PaymentCash,
		BranchID: "br", SoldBy: "ana", SoldAt: at, Date: "2024-05-15",
	}
}

func TestSaleDocumentKeepsDecimalPrecision(t *testing.T) {
	doc := toSaleDoc(sampleSale())
	assert.Equal(t, "28.75", doc.Total)
	assert.Equal(t, "12.5", doc.Items[0].SellPrice)

	back, err := doc.toDomain()
	require.NoError(t, err)
	assert.True(t, back.Total.Equal(decimal.RequireFromString("28.75")))
	assert.True(t, back.Items[0].Tax.Equal(decimal.RequireFromString("3.75")))
}

func TestMalformedSaleDocumentIsRejected(t *testing.T) {
	doc := toSaleDoc(sampleSale())
	doc.Total = "twenty"
	_, err := doc.toDomain()
	assert.ErrorIs(t, err, store.ErrMalformedDocument)

	doc = toSaleDoc(sampleSale())
	doc.PaymentMethod = "barter"
	_, err = doc.toDomain()
	assert.ErrorIs(t, err, store.ErrMalformedDocument)

	doc = toSaleDoc(sampleSale())
	doc.Date = "15/05/2024"
	_, err = doc.toDomain()
	assert.ErrorIs(t, err, store.ErrMalformedDocument)
}

func TestMalformedProductDocumentIsRejected(t *testing.T) {
	now := time.Now().UTC()
	p := domain.Product{
		ID: "p1", BusinessID: "biz", BranchID: "br", Name: "Rice", SKU: "RICE", Unit: "pcs",
		SellPrice: decimal.NewFromInt(10), TaxRate: decimal.NewFromInt(15), CurrentStock: 4,
		Active: true, CreatedAt: now, UpdatedAt: now,
	}
	doc := toProductDoc(p)
	back, err := doc.toDomain()
	require.NoError(t, err)
	assert.Equal(t, 4, back.CurrentStock)

	doc.CurrentStock = -2
	_, err = doc.toDomain()
	assert.ErrorIs(t, err, store.ErrMalformedDocument)

	doc = toProductDoc(p)
	doc.TaxRate = ""
	_, err = doc.toDomain()
	assert.ErrorIs(t, err, store.ErrMalformedDocument)
}

func TestHistoryDocumentValidation(t *testing.T) {
	entry := domain.StockHistoryEntry{ID: "h1", BusinessID: "biz", ProductID: "p1", Action: domain.StockSold, Timestamp: time.Now()}
	_, err := toHistoryDoc(entry).toDomain()
	require.NoError(t, err)

	doc := toHistoryDoc(entry)
	doc.Action = "teleported"
	_, err = doc.toDomain()
	assert.ErrorIs(t, err, store.ErrMalformedDocument)
}
