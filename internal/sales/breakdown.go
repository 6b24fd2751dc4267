package sales

import (
	"sort"

	"github.com/shopspring/decimal"

	"kedaipos/backend/internal/domain"
)

const UnknownBranch = "Unknown"

// ByBranch totals sales per branch. The branch name comes from the sale
// itself, then from registry, then falls back to "Unknown".
func ByBranch(list []domain.Sale, registry map[string]string) []domain.BranchSales {
	index := map[string]*domain.BranchSales{}
	order := make([]string, 0)
	for _, sale := range list {
		entry, ok := index[sale.BranchID]
		if !ok {
			entry = &domain.BranchSales{
				BranchID:   sale.BranchID,
				BranchName: branchName(sale, registry),
				Revenue:    decimal.Zero,
			}
			index[sale.BranchID] = entry
			order = append(order, sale.BranchID)
		}
		entry.Count++
		entry.Revenue = entry.Revenue.Add(sale.Total)
	}

	out := make([]domain.BranchSales, 0, len(order))
	for _, id := range order {
		out = append(out, *index[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Revenue.GreaterThan(out[j].Revenue)
	})
	return out
}

func branchName(sale domain.Sale, registry map[string]string) string {
	if sale.BranchName != "" {
		return sale.BranchName
	}
	if name := registry[sale.BranchID]; name != "" {
		return name
	}
	return UnknownBranch
}

// ProductVelocity reports units sold per day for every product in list,
// fastest movers first.
func ProductVelocity(list []domain.Sale, days int) []domain.ProductVelocity {
	if days < 1 {
		days = 1
	}
	perDay := decimal.NewFromInt(int64(days))

	index := map[string]*domain.ProductVelocity{}
	for _, sale := range list {
		for _, item := range sale.Items {
			v, ok := index[item.ProductID]
			if !ok {
				v = &domain.ProductVelocity{ProductID: item.ProductID, ProductName: item.ProductName, Revenue: decimal.Zero}
				index[item.ProductID] = v
			}
			v.UnitsSold += item.Quantity
			v.Revenue = v.Revenue.Add(item.SellPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	out := make([]domain.ProductVelocity, 0, len(index))
	for _, v := range index {
		v.UnitsPerDay = decimal.NewFromInt(int64(v.UnitsSold)).Div(perDay).Round(2)
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitsSold != out[j].UnitsSold {
			return out[i].UnitsSold > out[j].UnitsSold
		}
		return out[i].ProductName < out[j].ProductName
	})
	return out
}
