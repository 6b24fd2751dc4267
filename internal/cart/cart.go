// Package cart holds the line items of an in-progress sale and enforces the
// stock ceiling captured when each product was first added.
package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"kedaipos/backend/internal/domain"
)

var (
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInactiveProduct   = errors.New("product is inactive")
	ErrLineNotFound      = errors.New("cart line not found")
)

// Cart is not safe for concurrent use; callers serialise access per session.
type Cart struct {
	lines   []domain.CartLine
	version uint64
}

func New() *Cart {
	return &Cart{}
}

func (c *Cart) AddItem(product domain.Product) error {
	if !product.Active {
		return fmt.Errorf("%w: %s", ErrInactiveProduct, product.Name)
	}
	if product.CurrentStock <= 0 {
		return fmt.Errorf("%w: %s", ErrOutOfStock, product.Name)
	}

	for i := range c.lines {
		line := &c.lines[i]
		if line.ProductID != product.ID {
			continue
		}
		if line.Quantity+1 > line.MaxStock {
			return fmt.Errorf("%w: only %d %s of %s available", ErrInsufficientStock, line.MaxStock, line.Unit, line.Name)
		}
		line.Quantity++
		c.version++
		return nil
	}

	c.lines = append(c.lines, domain.CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		SKU:       product.SKU,
		Unit:      product.Unit,
		SellPrice: product.SellPrice,
		CostPrice: product.CostPrice,
		TaxRate:   product.TaxRate,
		Quantity:  1,
		MaxStock:  product.CurrentStock,
	})
	c.version++
	return nil
}

// UpdateQuantity applies delta to the line at index. A result below one
// removes the line; a result above the line's stock ceiling is rejected and
// the cart is left unchanged.
func (c *Cart) UpdateQuantity(index int, delta int) error {
	if index < 0 || index >= len(c.lines) {
		return fmt.Errorf("%w: index %d", ErrLineNotFound, index)
	}
	line := &c.lines[index]
	// Compared before adding so a huge delta cannot wrap around.
	if delta > line.MaxStock-line.Quantity {
		return fmt.Errorf("%w: only %d %s of %s available", ErrInsufficientStock, line.MaxStock, line.Unit, line.Name)
	}
	next := line.Quantity + delta
	if next < 1 {
		return c.RemoveItem(index)
	}
	line.Quantity = next
	c.version++
	return nil
}

func (c *Cart) RemoveItem(index int) error {
	if index < 0 || index >= len(c.lines) {
		return fmt.Errorf("%w: index %d", ErrLineNotFound, index)
	}
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
	c.version++
	return nil
}

func (c *Cart) Clear() {
	if len(c.lines) == 0 {
		return
	}
	c.lines = nil
	c.version++
}

func (c *Cart) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Version changes on every mutation.
func (c *Cart) Version() uint64 {
	return c.version
}

func (c *Cart) Totals() domain.Totals {
	return ComputeTotals(c.lines)
}

func ComputeTotals(lines []domain.CartLine) domain.Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Subtotal())
		tax = tax.Add(line.Tax())
	}
	return domain.Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}
