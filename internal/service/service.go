package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kedaipos/backend/internal/counter"
	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/metrics"
	"kedaipos/backend/internal/store"
)

var (
	ErrUnauthenticated   = errors.New("authentication required")
	ErrForbidden         = errors.New("forbidden")
	ErrSetupRequired     = errors.New("business setup required")
	ErrSessionNotFound   = errors.New("sale session not found")
	ErrConfirmationFirst = errors.New("confirmation required")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Counter        counter.Counter
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Location       *time.Location
	// DefaultTaxRate applies to products created without one; nil means
	// domain.DefaultTaxRate.
	DefaultTaxRate *decimal.Decimal
	TopProducts    int
	SessionIdle    time.Duration
	Now            func() time.Time
}

type Service struct {
	repo           store.Repository
	counter        counter.Counter
	logger         *zap.Logger
	metrics        *metrics.Metrics
	loc            *time.Location
	defaultTaxRate decimal.Decimal
	topN           int
	now            func() time.Time
	sessions       *sessionRegistry
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Counter == nil {
		opts.Counter = counter.NewMemoryCounter()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	taxRate := domain.DefaultTaxRate
	if opts.DefaultTaxRate != nil {
		taxRate = *opts.DefaultTaxRate
	}
	if opts.TopProducts < 1 {
		opts.TopProducts = 5
	}
	if opts.SessionIdle <= 0 {
		opts.SessionIdle = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:           repo,
		counter:        opts.Counter,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		loc:            opts.Location,
		defaultTaxRate: taxRate,
		topN:           opts.TopProducts,
		now:            opts.Now,
		sessions:       newSessionRegistry(opts.SessionIdle),
	}
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" || actor.BusinessID == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

func requireOwner(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleOwner {
		return domain.Actor{}, fmt.Errorf("%w: owner role required", ErrForbidden)
	}
	return actor, nil
}

// business resolves the actor's business. A valid token whose business no
// longer exists must go through setup again.
func (s *Service) business(ctx context.Context, actor domain.Actor) (*domain.Business, error) {
	business, err := s.repo.GetBusiness(ctx, actor.BusinessID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSetupRequired
	}
	if err != nil {
		s.logger.Error("load business", zap.String("businessId", actor.BusinessID), zap.Error(err))
		return nil, err
	}
	return business, nil
}

// scopeBranch pins employees to their own branch. Owners may pass any
// branch, or none for the whole business.
func scopeBranch(actor domain.Actor, requested string) string {
	if actor.Role == domain.RoleOwner {
		return requested
	}
	return actor.BranchID
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, fields ...zap.Field) {
	actor, _ := ActorFromContext(ctx)
	base := []zap.Field{
		zap.String("action", action),
		zap.String("entityType", entityType),
		zap.String("entityId", entityID),
		zap.String("actor", actor.ID),
		zap.String("businessId", actor.BusinessID),
	}
	s.logger.Info("audit", append(base, fields...)...)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrValidation, fmt.Sprintf(format, args...))
}
