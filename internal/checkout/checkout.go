// Package checkout drives a cart through review, tender and completion.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"kedaipos/backend/internal/cart"
	"kedaipos/backend/internal/domain"
)

type State string

const (
	StateIdle            State = "idle"
	StateReviewing       State = "reviewing"
	StateAwaitingPayment State = "awaiting_payment"
	StateCompleted       State = "completed"
)

var (
	ErrEmptyCart                = errors.New("cart is empty")
	ErrInvalidState             = errors.New("invalid checkout state")
	ErrInsufficientPayment      = errors.New("amount paid is less than total")
	ErrCartChanged              = errors.New("cart changed during payment")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
)

// Tender is everything the recorder needs to persist a sale.
type Tender struct {
	Lines         []domain.CartLine
	Totals        domain.Totals
	PaymentMethod domain.PaymentMethod
	AmountPaid    decimal.Decimal
	Change        decimal.Decimal
}

// Recorder persists a completed sale. It must either commit everything or
// nothing.
type Recorder interface {
	RecordSale(ctx context.Context, tender Tender) (*domain.Sale, error)
}

type RecorderFunc func(ctx context.Context, tender Tender) (*domain.Sale, error)

func (f RecorderFunc) RecordSale(ctx context.Context, tender Tender) (*domain.Sale, error) {
	return f(ctx, tender)
}

type ChangeResult struct {
	AmountPaid  decimal.Decimal
	Change      decimal.Decimal
	ShowChange  bool
	CanComplete bool
}

type Checkout struct {
	cart *cart.Cart

	state       State
	cartVersion uint64
	totals      domain.Totals
	method      domain.PaymentMethod
	amountPaid  decimal.Decimal
	change      decimal.Decimal
	canComplete bool
	lastSale    *domain.Sale
}

func New(c *cart.Cart) *Checkout {
	return &Checkout{cart: c, state: StateIdle}
}

func (c *Checkout) Cart() *cart.Cart {
	return c.cart
}

func (c *Checkout) State() State {
	if c.state == StateAwaitingPayment && c.cart.Version() != c.cartVersion {
		c.reset()
	}
	if c.state == StateIdle && !c.cart.IsEmpty() {
		return StateReviewing
	}
	return c.state
}

func (c *Checkout) BeginPayment() (domain.Totals, error) {
	if c.cart.IsEmpty() {
		return domain.Totals{}, ErrEmptyCart
	}
	c.totals = c.cart.Totals()
	c.cartVersion = c.cart.Version()
	c.state = StateAwaitingPayment
	c.method = domain.PaymentCash
	c.amountPaid = decimal.Zero
	c.change = decimal.Zero
	c.canComplete = false
	return c.totals, nil
}

// SelectPaymentMethod switches the tender type. Card and e-wallet payments
// are tendered for the exact total.
func (c *Checkout) SelectPaymentMethod(method domain.PaymentMethod) error {
	if err := c.requireAwaitingPayment(); err != nil {
		return err
	}
	if !method.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedPaymentMethod, method)
	}
	c.method = method
	if method == domain.PaymentCash {
		c.amountPaid = decimal.Zero
		c.change = decimal.Zero
		c.canComplete = false
		return nil
	}
	c.amountPaid = c.totals.Total
	c.change = decimal.Zero
	c.canComplete = true
	return nil
}

// CalculateChange records the amount handed over. Underpayment disables
// completion and hides the change rather than failing.
func (c *Checkout) CalculateChange(amountPaid decimal.Decimal) (ChangeResult, error) {
	if err := c.requireAwaitingPayment(); err != nil {
		return ChangeResult{}, err
	}
	c.amountPaid = amountPaid
	if amountPaid.LessThan(c.totals.Total) {
		c.change = decimal.Zero
		c.canComplete = false
		return ChangeResult{AmountPaid: amountPaid}, nil
	}
	c.change = amountPaid.Sub(c.totals.Total)
	c.canComplete = true
	return ChangeResult{AmountPaid: amountPaid, Change: c.change, ShowChange: true, CanComplete: true}, nil
}

// QuickAmounts suggests tender buttons: the exact total followed by the
// distinct round-ups to common note sizes.
func (c *Checkout) QuickAmounts() []decimal.Decimal {
	if c.State() != StateAwaitingPayment {
		return nil
	}
	total := c.totals.Total
	amounts := []decimal.Decimal{total}
	for _, step := range []int64{10, 50, 100, 500, 1000} {
		s := decimal.NewFromInt(step)
		rounded := total.Div(s).Ceil().Mul(s)
		if rounded.IsZero() {
			rounded = s
		}
		if rounded.Equal(amounts[len(amounts)-1]) {
			continue
		}
		duplicate := false
		for _, a := range amounts {
			if a.Equal(rounded) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			amounts = append(amounts, rounded)
		}
	}
	return amounts
}

func (c *Checkout) CanComplete() bool {
	return c.State() == StateAwaitingPayment && c.canComplete
}

func (c *Checkout) Totals() domain.Totals {
	if c.State() == StateAwaitingPayment {
		return c.totals
	}
	return c.cart.Totals()
}

func (c *Checkout) PaymentMethod() domain.PaymentMethod {
	return c.method
}

func (c *Checkout) AmountPaid() decimal.Decimal {
	return c.amountPaid
}

// Change returns the change due and whether it should be shown.
func (c *Checkout) Change() (decimal.Decimal, bool) {
	return c.change, c.CanComplete()
}

func (c *Checkout) LastSale() *domain.Sale {
	return c.lastSale
}

// Complete hands the tender to recorder exactly once. On success the cart
// is cleared and the machine returns to idle; on failure nothing changes.
func (c *Checkout) Complete(ctx context.Context, recorder Recorder) (*domain.Sale, error) {
	if c.state == StateAwaitingPayment && c.cart.Version() != c.cartVersion {
		c.reset()
		return nil, ErrCartChanged
	}
	if c.state != StateAwaitingPayment {
		return nil, fmt.Errorf("%w: cannot complete from %s", ErrInvalidState, c.State())
	}
	if !c.canComplete {
		return nil, ErrInsufficientPayment
	}

	sale, err := recorder.RecordSale(ctx, Tender{
		Lines:         c.cart.Lines(),
		Totals:        c.totals,
		PaymentMethod: c.method,
		AmountPaid:    c.amountPaid,
		Change:        c.change,
	})
	if err != nil {
		return nil, err
	}

	c.state = StateCompleted
	c.lastSale = sale
	c.cart.Clear()
	c.reset()
	return sale, nil
}

// Cancel abandons the tender and returns to review.
func (c *Checkout) Cancel() {
	c.reset()
}

func (c *Checkout) reset() {
	c.state = StateIdle
	c.cartVersion = 0
	c.totals = domain.Totals{}
	c.method = ""
	c.amountPaid = decimal.Zero
	c.change = decimal.Zero
	c.canComplete = false
}

func (c *Checkout) requireAwaitingPayment() error {
	if c.state == StateAwaitingPayment && c.cart.Version() != c.cartVersion {
		c.reset()
		return ErrCartChanged
	}
	if c.state != StateAwaitingPayment {
		return fmt.Errorf("%w: payment has not started", ErrInvalidState)
	}
	return nil
}
