package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kedaipos/backend/internal/barcode"
	"kedaipos/backend/internal/cart"
	"kedaipos/backend/internal/checkout"
	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/xid"
)

// Session is one open sale: a cart plus its payment state, owned by the
// actor who opened it.
type Session struct {
	ID         string
	Actor      domain.Actor
	BranchID   string
	BranchName string

	mu       sync.Mutex
	checkout *checkout.Checkout
	lastUsed time.Time
}

type sessionRegistry struct {
	mu       sync.Mutex
	idle     time.Duration
	sessions map[string]*Session
}

func newSessionRegistry(idle time.Duration) *sessionRegistry {
	return &sessionRegistry{idle: idle, sessions: make(map[string]*Session)}
}

func (r *sessionRegistry) put(sess *Session) {
	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
}

func (r *sessionRegistry) get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *sessionRegistry) reap(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	reaped := make([]string, 0)
	for id, sess := range r.sessions {
		sess.mu.Lock()
		stale := now.Sub(sess.lastUsed) > r.idle
		sess.mu.Unlock()
		if stale {
			delete(r.sessions, id)
			reaped = append(reaped, id)
		}
	}
	return reaped
}

func (sess *Session) view() domain.SessionView {
	co := sess.checkout
	state := co.State()
	v := domain.SessionView{
		ID:         sess.ID,
		BranchID:   sess.BranchID,
		State:      string(state),
		Lines:      co.Cart().Lines(),
		Totals:     co.Cart().Totals(),
		AmountPaid: decimal.Zero,
		LastSale:   co.LastSale(),
	}
	if state == checkout.StateAwaitingPayment {
		v.Totals = co.Totals()
		v.PaymentMethod = co.PaymentMethod()
		v.AmountPaid = co.AmountPaid()
		if change, ok := co.Change(); ok {
			v.Change = &change
		}
		v.CanComplete = co.CanComplete()
		v.QuickAmounts = co.QuickAmounts()
	}
	return v
}

// OpenSession starts a new sale for the calling actor. Employees always
// sell from their own branch.
func (s *Service) OpenSession(ctx context.Context, req domain.OpenSessionRequest) (domain.SessionView, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SessionView{}, err
	}
	if _, err := s.business(ctx, actor); err != nil {
		return domain.SessionView{}, err
	}
	branchID := scopeBranch(actor, strings.TrimSpace(req.BranchID))
	if branchID == "" {
		branchID = actor.BranchID
	}
	branch, err := s.branch(ctx, actor.BusinessID, branchID)
	if err != nil {
		return domain.SessionView{}, err
	}

	sess := &Session{
		ID:         xid.New("ses"),
		Actor:      actor,
		BranchID:   branch.ID,
		BranchName: branch.Name,
		checkout:   checkout.New(cart.New()),
		lastUsed:   s.now(),
	}
	s.sessions.put(sess)
	s.logger.Debug("sale session opened", zap.String("sessionId", sess.ID), zap.String("actor", actor.ID), zap.String("branchId", branch.ID))
	return sess.view(), nil
}

// withSession runs fn with the session locked. Sessions of other actors are
// reported as missing.
func (s *Service) withSession(ctx context.Context, id string, fn func(sess *Session) error) (domain.SessionView, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SessionView{}, err
	}
	sess, ok := s.sessions.get(id)
	if !ok || sess.Actor.ID != actor.ID || sess.Actor.BusinessID != actor.BusinessID {
		return domain.SessionView{}, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastUsed = s.now()
	if err := fn(sess); err != nil {
		return domain.SessionView{}, err
	}
	return sess.view(), nil
}

func (s *Service) GetSession(ctx context.Context, id string) (domain.SessionView, error) {
	return s.withSession(ctx, id, func(*Session) error { return nil })
}

// AddItem adds one unit of a product, looked up by ID or by EAN-13 barcode.
func (s *Service) AddItem(ctx context.Context, id string, req domain.AddItemRequest) (domain.SessionView, error) {
	return s.withSession(ctx, id, func(sess *Session) error {
		product, err := s.sessionProduct(ctx, sess, req)
		if err != nil {
			return err
		}
		if err := sess.checkout.Cart().AddItem(product); err != nil {
			s.metrics.CartRejected(rejectionReason(err))
			return err
		}
		return nil
	})
}

func (s *Service) sessionProduct(ctx context.Context, sess *Session, req domain.AddItemRequest) (domain.Product, error) {
	var (
		product *domain.Product
		err     error
	)
	switch {
	case strings.TrimSpace(req.ProductID) != "":
		product, err = s.repo.GetProduct(ctx, sess.Actor.BusinessID, strings.TrimSpace(req.ProductID))
	case strings.TrimSpace(req.Barcode) != "":
		code := strings.TrimSpace(req.Barcode)
		if err := barcode.Validate(code); err != nil {
			return domain.Product{}, invalidf("%v", err)
		}
		product, err = s.repo.FindProductByBarcode(ctx, sess.Actor.BusinessID, code)
	default:
		return domain.Product{}, invalidf("productId or barcode is required")
	}
	if err != nil {
		return domain.Product{}, err
	}
	if product.BranchID != sess.BranchID {
		return domain.Product{}, store.ErrNotFound
	}
	return *product, nil
}

func (s *Service) UpdateQuantity(ctx context.Context, id string, index int, delta int) (domain.SessionView, error) {
	return s.withSession(ctx, id, func(sess *Session) error {
		if err := sess.checkout.Cart().UpdateQuantity(index, delta); err != nil {
			s.metrics.CartRejected(rejectionReason(err))
			return err
		}
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, id string, index int) (domain.SessionView, error) {
	return s.withSession(ctx, id, func(sess *Session) error {
		return sess.checkout.Cart().RemoveItem(index)
	})
}

// ClearCart empties the cart. It needs explicit confirmation.
func (s *Service) ClearCart(ctx context.Context, id string, confirm bool) (domain.SessionView, error) {
	return s.withSession(ctx, id, func(sess *Session) error {
		if !confirm {
			return ErrConfirmationFirst
		}
		sess.checkout.Cart().Clear()
		sess.checkout.Cancel()
		return nil
	})
}

func (s *Service) BeginPayment(ctx context.Context, id string) (domain.SessionView, error) {
	return s.withSession(ctx, id, func(sess *Session) error {
		_, err := sess.checkout.BeginPayment()
		return err
	})
}

func (s *Service) SelectPaymentMethod(ctx context.Context, id string, method domain.PaymentMethod) (domain.SessionView, error) {
	return s.withSession(ctx, id, func(sess *Session) error {
		return sess.checkout.SelectPaymentMethod(method)
	})
}

// Tender records the amount handed over. An underpayment is not an error;
// the view simply reports CanComplete=false.
func (s *Service) Tender(ctx context.Context, id string, amountPaid decimal.Decimal) (domain.SessionView, error) {
	return s.withSession(ctx, id, func(sess *Session) error {
		_, err := sess.checkout.CalculateChange(amountPaid)
		return err
	})
}

func (s *Service) CancelPayment(ctx context.Context, id string) (domain.SessionView, error) {
	return s.withSession(ctx, id, func(sess *Session) error {
		sess.checkout.Cancel()
		return nil
	})
}

// CompleteSale commits the tendered sale. On success the cart is cleared
// and the receipt is available as LastSale on the returned view.
func (s *Service) CompleteSale(ctx context.Context, id string, req domain.CompleteSaleRequest) (domain.SessionView, error) {
	return s.withSession(ctx, id, func(sess *Session) error {
		_, err := sess.checkout.Complete(ctx, s.saleRecorder(sess, strings.TrimSpace(req.CustomerName)))
		return err
	})
}

func (s *Service) DiscardSession(ctx context.Context, id string) error {
	_, err := s.withSession(ctx, id, func(*Session) error { return nil })
	if err != nil {
		return err
	}
	s.sessions.remove(id)
	return nil
}

// ReapIdleSessions drops sessions untouched for longer than the idle limit.
func (s *Service) ReapIdleSessions() int {
	reaped := s.sessions.reap(s.now())
	for _, id := range reaped {
		s.logger.Info("sale session expired", zap.String("sessionId", id))
	}
	return len(reaped)
}

// RunSessionReaper reaps idle sessions every interval until ctx is done.
func (s *Service) RunSessionReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ReapIdleSessions()
		}
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, cart.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, cart.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, cart.ErrInactiveProduct):
		return "inactive"
	case errors.Is(err, cart.ErrLineNotFound):
		return "line_not_found"
	}
	return "other"
}
