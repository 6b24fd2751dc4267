package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/period"
	"kedaipos/backend/internal/sales"
	"kedaipos/backend/internal/store"
)

// salesInPeriod fetches the business's sales once and narrows them to the
// query's period, branch and search term.
func (s *Service) salesInPeriod(ctx context.Context, q domain.ReportQuery) (domain.Actor, period.Range, []domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, period.Range{}, nil, err
	}
	if _, err := s.business(ctx, actor); err != nil {
		return domain.Actor{}, period.Range{}, nil, err
	}

	rng, err := period.Resolve(q.Period, s.now().In(s.loc), period.CustomDates{Start: q.Start, End: q.End})
	if err != nil {
		return domain.Actor{}, period.Range{}, nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	all, err := s.repo.ListSales(ctx, actor.BusinessID)
	if err != nil {
		s.logger.Error("list sales", zap.String("businessId", actor.BusinessID), zap.Error(err))
		return domain.Actor{}, period.Range{}, nil, err
	}
	list, err := sales.InRange(all, rng, scopeBranch(actor, q.BranchID), s.loc)
	if err != nil {
		return domain.Actor{}, period.Range{}, nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if q.Search != "" {
		list = sales.Search(list, q.Search)
	}
	return actor, rng, list, nil
}

// ListSales returns the sales of a period, newest first.
func (s *Service) ListSales(ctx context.Context, q domain.ReportQuery) ([]domain.Sale, error) {
	_, _, list, err := s.salesInPeriod(ctx, q)
	return list, err
}

func (s *Service) Report(ctx context.Context, q domain.ReportQuery) (domain.Report, error) {
	actor, rng, list, err := s.salesInPeriod(ctx, q)
	if err != nil {
		return domain.Report{}, err
	}

	costs, err := s.productCosts(ctx, actor.BusinessID)
	if err != nil {
		return domain.Report{}, err
	}
	names, err := s.branchNames(ctx, actor.BusinessID)
	if err != nil {
		return domain.Report{}, err
	}

	topN := q.TopN
	if topN < 1 {
		topN = s.topN
	}
	if q.Period == "" {
		q.Period = period.Today
	}
	return domain.Report{
		Period:    q.Period,
		StartDate: rng.StartDate,
		EndDate:   rng.EndDate,
		BranchID:  scopeBranch(actor, q.BranchID),
		Summary: sales.Summarize(list, sales.SummaryOptions{
			TopN:       topN,
			Location:   s.loc,
			CostPrices: costs,
		}),
		Hourly:    sales.HourlyDistribution(list, s.loc),
		PeakHours: sales.PeakHours(list, sales.DefaultPeakHours, s.loc),
		Branches:  sales.ByBranch(list, names),
		Velocity:  sales.ProductVelocity(list, rng.Days()),
	}, nil
}
