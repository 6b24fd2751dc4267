// Package sales filters and aggregates sale records that were fetched in
// bulk from the store. Every function here is pure.
package sales

import (
	"sort"
	"strings"
	"time"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/period"
)

// ForDate keeps the sales whose calendar date equals date, optionally
// restricted to one branch, newest first.
func ForDate(all []domain.Sale, date string, branchID string) []domain.Sale {
	out := make([]domain.Sale, 0, len(all))
	for _, s := range all {
		if s.Date != date {
			continue
		}
		if branchID != "" && s.BranchID != branchID {
			continue
		}
		out = append(out, s)
	}
	sortNewestFirst(out)
	return out
}

// ForDateRange keeps the sales sold between the start of start and the end
// of end, both interpreted in loc.
func ForDateRange(all []domain.Sale, start time.Time, end time.Time, branchID string, loc *time.Location) []domain.Sale {
	if loc == nil {
		loc = time.Local
	}
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	to := period.EndOfDay(time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc))

	out := make([]domain.Sale, 0, len(all))
	for _, s := range all {
		if s.SoldAt.Before(from) || s.SoldAt.After(to) {
			continue
		}
		if branchID != "" && s.BranchID != branchID {
			continue
		}
		out = append(out, s)
	}
	sortNewestFirst(out)
	return out
}

// InRange is ForDateRange over a resolved period. A single-day period is
// matched on the recorded sale date instead.
func InRange(all []domain.Sale, r period.Range, branchID string, loc *time.Location) ([]domain.Sale, error) {
	start, end, err := r.Bounds(loc)
	if err != nil {
		return nil, err
	}
	if r.StartDate == r.EndDate {
		return ForDate(all, r.StartDate, branchID), nil
	}
	return ForDateRange(all, start, end, branchID, loc), nil
}

// Search matches term case-insensitively against the receipt number and
// customer name. An empty term matches everything.
func Search(all []domain.Sale, term string) []domain.Sale {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		out := make([]domain.Sale, len(all))
		copy(out, all)
		return out
	}
	out := make([]domain.Sale, 0, len(all))
	for _, s := range all {
		if strings.Contains(strings.ToLower(s.ReceiptNumber), needle) ||
			strings.Contains(strings.ToLower(s.CustomerName), needle) {
			out = append(out, s)
		}
	}
	return out
}

func sortNewestFirst(list []domain.Sale) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].SoldAt.After(list[j].SoldAt)
	})
}
