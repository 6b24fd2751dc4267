package sales

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"kedaipos/backend/internal/domain"
)

const (
	DefaultTopN      = 5
	DefaultPeakHours = 3
)

type SummaryOptions struct {
	TopN     int
	Location *time.Location
	// CostPrices overrides the cost snapshot stored on each sale item, keyed
	// by product ID.
	CostPrices map[string]decimal.Decimal
}

// Summarize aggregates a filtered sale list. Tax is recomputed per item from
// the stored rate instead of trusting the stored per-sale tax.
func Summarize(list []domain.Sale, opts SummaryOptions) domain.SalesSummary {
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	summary := domain.SalesSummary{
		TotalRevenue:  decimal.Zero,
		TotalSubtotal: decimal.Zero,
		TotalTax:      decimal.Zero,
		AverageSale:   decimal.Zero,
		TotalCost:     decimal.Zero,
		GrossProfit:   decimal.Zero,
		RevenueByHour: zeroHours(),
		TopProducts:   []domain.ProductSales{},
	}
	byMethod := make(map[domain.PaymentMethod]*domain.PaymentMethodTotal, len(domain.PaymentMethods))
	for _, m := range domain.PaymentMethods {
		byMethod[m] = &domain.PaymentMethodTotal{Method: m, Total: decimal.Zero}
	}
	products := map[string]*domain.ProductSales{}

	for _, sale := range list {
		summary.TotalSales++
		summary.TotalRevenue = summary.TotalRevenue.Add(sale.Total)

		if entry, ok := byMethod[sale.PaymentMethod]; ok {
			entry.Count++
			entry.Total = entry.Total.Add(sale.Total)
		}

		hour := sale.SoldAt.In(loc).Hour()
		summary.RevenueByHour[hour] = summary.RevenueByHour[hour].Add(sale.Total)

		for _, item := range sale.Items {
			qty := decimal.NewFromInt(int64(item.Quantity))
			lineSubtotal := item.SellPrice.Mul(qty)

			summary.ItemsSold += item.Quantity
			summary.TotalSubtotal = summary.TotalSubtotal.Add(lineSubtotal)
			summary.TotalTax = summary.TotalTax.Add(domain.LineTax(item.SellPrice, item.TaxRate, item.Quantity))

			cost := item.CostPrice
			if override, ok := opts.CostPrices[item.ProductID]; ok {
				cost = override
			}
			summary.TotalCost = summary.TotalCost.Add(cost.Mul(qty))

			ps, ok := products[item.ProductID]
			if !ok {
				ps = &domain.ProductSales{ProductID: item.ProductID, ProductName: item.ProductName, Revenue: decimal.Zero}
				products[item.ProductID] = ps
			}
			ps.Quantity += item.Quantity
			ps.Revenue = ps.Revenue.Add(lineSubtotal)
		}
	}

	for _, m := range domain.PaymentMethods {
		summary.ByPayment = append(summary.ByPayment, *byMethod[m])
	}

	summary.UniqueProducts = len(products)
	if summary.TotalSales > 0 {
		summary.AverageSale = summary.TotalRevenue.Div(decimal.NewFromInt(int64(summary.TotalSales))).Round(2)
	}
	summary.GrossProfit = summary.TotalSubtotal.Sub(summary.TotalCost)

	ranked := make([]domain.ProductSales, 0, len(products))
	for _, ps := range products {
		ranked = append(ranked, *ps)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if c := ranked[i].Revenue.Cmp(ranked[j].Revenue); c != 0 {
			return c > 0
		}
		if ranked[i].ProductName != ranked[j].ProductName {
			return ranked[i].ProductName < ranked[j].ProductName
		}
		return ranked[i].ProductID < ranked[j].ProductID
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	summary.TopProducts = ranked

	return summary
}

// HourlyDistribution buckets sales into 24 slots by local hour of sale.
func HourlyDistribution(list []domain.Sale, loc *time.Location) []domain.HourSlot {
	if loc == nil {
		loc = time.Local
	}
	slots := make([]domain.HourSlot, 24)
	for h := range slots {
		slots[h] = domain.HourSlot{Hour: h, Label: HourLabel(h), Revenue: decimal.Zero}
	}
	for _, sale := range list {
		h := sale.SoldAt.In(loc).Hour()
		slots[h].Count++
		slots[h].Revenue = slots[h].Revenue.Add(sale.Total)
	}
	return slots
}

// PeakHours ranks the hourly histogram by revenue, keeping hour order among
// equal revenues, and returns the first topN slots.
func PeakHours(list []domain.Sale, topN int, loc *time.Location) []domain.HourSlot {
	slots := HourlyDistribution(list, loc)
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Revenue.GreaterThan(slots[j].Revenue)
	})
	if topN <= 0 {
		topN = DefaultPeakHours
	}
	if topN > len(slots) {
		topN = len(slots)
	}
	return slots[:topN]
}

func HourLabel(hour int) string {
	return fmt.Sprintf("%02d:00 - %02d:00", hour, (hour+1)%24)
}

func zeroHours() []decimal.Decimal {
	hours := make([]decimal.Decimal, 24)
	for i := range hours {
		hours[i] = decimal.Zero
	}
	return hours
}
