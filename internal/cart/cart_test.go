package cart

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kedaipos/backend/internal/domain"
)

func product(id string, price int64, rate int64, stock int) domain.Product {
	return domain.Product{
		ID:           id,
		Name:         "Product " + id,
		SKU:          "SKU-" + id,
		Unit:         "pcs",
		SellPrice:    decimal.NewFromInt(price),
		TaxRate:      decimal.NewFromInt(rate),
		CurrentStock: stock,
		Active:       true,
	}
}

func TestTotalsMixedTaxRates(t *testing.T) {
	c := New()
	a := product("a", 100, 15, 10)
	b := product("b", 50, 0, 10)

	require.NoError(t, c.AddItem(a))
	require.NoError(t, c.AddItem(a))
	require.NoError(t, c.AddItem(b))

	totals := c.Totals()
	assert.True(t, decimal.NewFromInt(250).Equal(totals.Subtotal), "subtotal %s", totals.Subtotal)
	assert.True(t, decimal.NewFromInt(30).Equal(totals.Tax), "tax %s", totals.Tax)
	assert.True(t, decimal.NewFromInt(280).Equal(totals.Total), "total %s", totals.Total)

	// totals are pure
	again := c.Totals()
	assert.True(t, totals.Total.Equal(again.Total))
}

func TestFractionalTaxIsExact(t *testing.T) {
	c := New()
	p := product("a", 0, 15, 10)
	p.SellPrice = decimal.RequireFromString("19.99")
	require.NoError(t, c.AddItem(p))
	require.NoError(t, c.UpdateQuantity(0, 2))

	totals := c.Totals()
	assert.Equal(t, "59.97", totals.Subtotal.String())
	assert.Equal(t, "8.9955", totals.Tax.String())
	assert.Equal(t, "68.9655", totals.Total.String())
}

func TestAddItemRejectsOutOfStock(t *testing.T) {
	c := New()
	err := c.AddItem(product("a", 10, 15, 0))
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, uint64(0), c.Version())
}

func TestAddItemRejectsInactive(t *testing.T) {
	c := New()
	p := product("a", 10, 15, 3)
	p.Active = false
	assert.ErrorIs(t, c.AddItem(p), ErrInactiveProduct)
	assert.True(t, c.IsEmpty())
}

func TestAddItemRespectsSnapshotCeiling(t *testing.T) {
	c := New()
	p := product("a", 10, 15, 2)
	require.NoError(t, c.AddItem(p))
	require.NoError(t, c.AddItem(p))

	err := c.AddItem(p)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 2, lines[0].MaxStock)
}

func TestAddItemSnapshotsProductFields(t *testing.T) {
	c := New()
	p := product("a", 10, 11, 7)
	require.NoError(t, c.AddItem(p))

	p.SellPrice = decimal.NewFromInt(99)
	require.NoError(t, c.AddItem(p))

	line := c.Lines()[0]
	assert.Equal(t, 2, line.Quantity)
	assert.True(t, decimal.NewFromInt(10).Equal(line.SellPrice))
	assert.True(t, decimal.NewFromInt(11).Equal(line.TaxRate))
	assert.Equal(t, "pcs", line.Unit)
	assert.Equal(t, 7, line.MaxStock)
}

func TestUpdateQuantity(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("a", 10, 15, 5)))
	require.NoError(t, c.AddItem(product("b", 20, 15, 5)))

	require.NoError(t, c.UpdateQuantity(0, 3))
	assert.Equal(t, 4, c.Lines()[0].Quantity)

	before := c.Version()
	err := c.UpdateQuantity(0, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 4, c.Lines()[0].Quantity)
	assert.Equal(t, before, c.Version())

	require.NoError(t, c.UpdateQuantity(0, -4))
	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "b", lines[0].ProductID)

	assert.ErrorIs(t, c.UpdateQuantity(3, 1), ErrLineNotFound)
	assert.ErrorIs(t, c.UpdateQuantity(-1, 1), ErrLineNotFound)
}

func TestUpdateQuantityRejectsHugeDelta(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("a", 10, 15, 5)))

	err := c.UpdateQuantity(0, math.MaxInt)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	require.Len(t, c.Lines(), 1)
	assert.Equal(t, 1, c.Lines()[0].Quantity)

	require.NoError(t, c.UpdateQuantity(0, math.MinInt))
	assert.True(t, c.IsEmpty())
}

func TestRemoveAndClear(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("a", 10, 15, 5)))
	require.NoError(t, c.AddItem(product("b", 20, 15, 5)))
	require.NoError(t, c.AddItem(product("c", 30, 15, 5)))

	require.NoError(t, c.RemoveItem(1))
	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].ProductID)
	assert.Equal(t, "c", lines[1].ProductID)
	assert.ErrorIs(t, c.RemoveItem(2), ErrLineNotFound)

	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.True(t, c.Totals().Total.IsZero())
}

func TestLinesReturnsCopy(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("a", 10, 15, 5)))
	lines := c.Lines()
	lines[0].Quantity = 99
	assert.Equal(t, 1, c.Lines()[0].Quantity)
}
