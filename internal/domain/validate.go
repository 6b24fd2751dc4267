package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"kedaipos/backend/internal/barcode"
)

var ErrInvalidRecord = errors.New("invalid record")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.BusinessID) == "" {
		return invalid("product id and business are required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return invalid("product name is required")
	}
	if p.SellPrice.IsNegative() || p.CostPrice.IsNegative() {
		return invalid("product %s has a negative price", p.ID)
	}
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThan(Hundred) {
		return invalid("product %s tax rate must be within 0..100", p.ID)
	}
	if p.CurrentStock < 0 || p.MinStock < 0 {
		return invalid("product %s has negative stock", p.ID)
	}
	if p.Barcode != "" && !barcode.ValidEAN13(p.Barcode) {
		return invalid("product %s barcode %q is not a valid EAN-13", p.ID, p.Barcode)
	}
	return nil
}

func (s Sale) Validate() error {
	if s.ID == "" || s.BusinessID == "" || s.BranchID == "" {
		return invalid("sale id, business and branch are required")
	}
	if s.ReceiptNumber == "" {
		return invalid("sale %s has no receipt number", s.ID)
	}
	if len(s.Items) == 0 {
		return invalid("sale %s has no items", s.ID)
	}
	if !s.PaymentMethod.Valid() {
		return invalid("sale %s has unsupported payment method %q", s.ID, s.PaymentMethod)
	}
	if s.SoldAt.IsZero() {
		return invalid("sale %s has no timestamp", s.ID)
	}
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return invalid("sale %s date %q is not YYYY-MM-DD", s.ID, s.Date)
	}
	for _, item := range s.Items {
		if item.ProductID == "" || item.Quantity < 1 {
			return invalid("sale %s has a malformed item", s.ID)
		}
		if item.SellPrice.IsNegative() || item.TaxRate.IsNegative() {
			return invalid("sale %s item %s has negative amounts", s.ID, item.ProductID)
		}
	}
	if s.AmountPaid.LessThan(s.Total) {
		return invalid("sale %s is underpaid", s.ID)
	}
	return nil
}

func (e StockHistoryEntry) Validate() error {
	if e.ID == "" || e.BusinessID == "" || e.ProductID == "" {
		return invalid("history entry id, business and product are required")
	}
	switch e.Action {
	case StockSold, StockRestock, StockAdjustment:
	default:
		return invalid("history entry %s has unknown action %q", e.ID, e.Action)
	}
	if e.Timestamp.IsZero() {
		return invalid("history entry %s has no timestamp", e.ID)
	}
	return nil
}

// ActorIDFromEmail derives the stable actor key used for sale and history
// attribution: the lower-cased local part with every non-alphanumeric
// character replaced by an underscore.
func ActorIDFromEmail(email string) string {
	local := strings.TrimSpace(email)
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	local = strings.ToLower(local)

	var b strings.Builder
	b.Grow(len(local))
	for _, r := range local {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}
