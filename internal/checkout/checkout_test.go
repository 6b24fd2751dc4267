package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kedaipos/backend/internal/cart"
	"kedaipos/backend/internal/domain"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func filledCheckout(t *testing.T) *Checkout {
	t.Helper()
	c := cart.New()
	a := domain.Product{ID: "a", Name: "A", Unit: "pcs", SellPrice: dec(100), TaxRate: dec(15), CurrentStock: 10, Active: true}
	b := domain.Product{ID: "b", Name: "B", Unit: "pcs", SellPrice: dec(50), TaxRate: dec(0), CurrentStock: 10, Active: true}
	require.NoError(t, c.AddItem(a))
	require.NoError(t, c.AddItem(a))
	require.NoError(t, c.AddItem(b))
	return New(c)
}

type recorderStub struct {
	calls int
	got   Tender
	err   error
}

func (r *recorderStub) RecordSale(_ context.Context, tender Tender) (*domain.Sale, error) {
	r.calls++
	r.got = tender
	if r.err != nil {
		return nil, r.err
	}
	return &domain.Sale{ID: "sale-1", ReceiptNumber: "20240515143000001", Total: tender.Totals.Total}, nil
}

func TestStateFollowsCart(t *testing.T) {
	co := New(cart.New())
	assert.Equal(t, StateIdle, co.State())

	_, err := co.BeginPayment()
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, StateIdle, co.State())

	co = filledCheckout(t)
	assert.Equal(t, StateReviewing, co.State())

	totals, err := co.BeginPayment()
	require.NoError(t, err)
	assert.True(t, dec(280).Equal(totals.Total))
	assert.Equal(t, StateAwaitingPayment, co.State())
	assert.Equal(t, domain.PaymentCash, co.PaymentMethod())
}

func TestCalculateChange(t *testing.T) {
	co := filledCheckout(t)
	_, err := co.BeginPayment()
	require.NoError(t, err)

	res, err := co.CalculateChange(dec(300))
	require.NoError(t, err)
	assert.True(t, res.CanComplete)
	assert.True(t, res.ShowChange)
	assert.True(t, dec(20).Equal(res.Change))
	assert.True(t, co.CanComplete())

	res, err = co.CalculateChange(dec(250))
	require.NoError(t, err)
	assert.False(t, res.CanComplete)
	assert.False(t, res.ShowChange)
	assert.True(t, res.Change.IsZero())
	assert.False(t, co.CanComplete())

	res, err = co.CalculateChange(dec(280))
	require.NoError(t, err)
	assert.True(t, res.CanComplete)
	assert.True(t, res.Change.IsZero())
}

func TestCalculateChangeRequiresPaymentState(t *testing.T) {
	co := filledCheckout(t)
	_, err := co.CalculateChange(dec(300))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestNonCashTendersExactTotal(t *testing.T) {
	co := filledCheckout(t)
	_, err := co.BeginPayment()
	require.NoError(t, err)

	require.NoError(t, co.SelectPaymentMethod(domain.PaymentCard))
	assert.True(t, co.CanComplete())
	assert.True(t, dec(280).Equal(co.AmountPaid()))

	require.NoError(t, co.SelectPaymentMethod(domain.PaymentCash))
	assert.False(t, co.CanComplete())

	err = co.SelectPaymentMethod("cheque")
	assert.ErrorIs(t, err, ErrUnsupportedPaymentMethod)
	assert.Equal(t, domain.PaymentCash, co.PaymentMethod())
}

func TestCompleteSuccessClearsCartAndResets(t *testing.T) {
	co := filledCheckout(t)
	_, err := co.BeginPayment()
	require.NoError(t, err)
	_, err = co.CalculateChange(dec(300))
	require.NoError(t, err)

	rec := &recorderStub{}
	sale, err := co.Complete(context.Background(), rec)
	require.NoError(t, err)
	require.NotNil(t, sale)

	assert.Equal(t, 1, rec.calls)
	assert.Len(t, rec.got.Lines, 2)
	assert.True(t, dec(20).Equal(rec.got.Change))
	assert.True(t, dec(300).Equal(rec.got.AmountPaid))
	assert.Equal(t, domain.PaymentCash, rec.got.PaymentMethod)

	assert.True(t, co.Cart().IsEmpty())
	assert.Equal(t, StateIdle, co.State())
	assert.Equal(t, sale, co.LastSale())
}

func TestCompleteGatedOnPayment(t *testing.T) {
	co := filledCheckout(t)
	rec := &recorderStub{}

	_, err := co.Complete(context.Background(), rec)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = co.BeginPayment()
	require.NoError(t, err)
	_, err = co.CalculateChange(dec(250))
	require.NoError(t, err)

	_, err = co.Complete(context.Background(), rec)
	assert.ErrorIs(t, err, ErrInsufficientPayment)
	assert.Equal(t, 0, rec.calls)
}

func TestCompleteFailureKeepsCart(t *testing.T) {
	co := filledCheckout(t)
	_, err := co.BeginPayment()
	require.NoError(t, err)
	_, err = co.CalculateChange(dec(300))
	require.NoError(t, err)

	backendErr := errors.New("backend down")
	_, err = co.Complete(context.Background(), &recorderStub{err: backendErr})
	assert.ErrorIs(t, err, backendErr)
	assert.Equal(t, StateAwaitingPayment, co.State())
	assert.Equal(t, 2, co.Cart().Len())
	assert.True(t, co.CanComplete())
}

func TestCartEditDuringPaymentInvalidatesTender(t *testing.T) {
	co := filledCheckout(t)
	_, err := co.BeginPayment()
	require.NoError(t, err)
	_, err = co.CalculateChange(dec(300))
	require.NoError(t, err)

	require.NoError(t, co.Cart().UpdateQuantity(1, 1))

	rec := &recorderStub{}
	_, err = co.Complete(context.Background(), rec)
	assert.ErrorIs(t, err, ErrCartChanged)
	assert.Equal(t, 0, rec.calls)
	assert.Equal(t, StateReviewing, co.State())
}

func TestCancelReturnsToReview(t *testing.T) {
	co := filledCheckout(t)
	_, err := co.BeginPayment()
	require.NoError(t, err)
	co.Cancel()
	assert.Equal(t, StateReviewing, co.State())
	assert.False(t, co.CanComplete())
}

func TestQuickAmounts(t *testing.T) {
	co := filledCheckout(t)
	assert.Nil(t, co.QuickAmounts())

	_, err := co.BeginPayment()
	require.NoError(t, err)

	got := co.QuickAmounts()
	want := []decimal.Decimal{dec(280), dec(300), dec(500), dec(1000)}
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "slot %d: %s", i, got[i])
	}
}
