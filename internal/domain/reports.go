package domain

import (
	"github.com/shopspring/decimal"
)

type PaymentMethodTotal struct {
	Method PaymentMethod   `json:"method"`
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

type ProductSales struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type SalesSummary struct {
	TotalSales      int                  `json:"totalSales"`
	TotalRevenue    decimal.Decimal      `json:"totalRevenue"`
	TotalSubtotal   decimal.Decimal      `json:"totalSubtotal"`
	TotalTax        decimal.Decimal      `json:"totalTax"`
	AverageSale     decimal.Decimal      `json:"averageSale"`
	ItemsSold       int                  `json:"itemsSold"`
	UniqueProducts  int                  `json:"uniqueProducts"`
	ByPayment       []PaymentMethodTotal `json:"byPayment"`
	RevenueByHour   []decimal.Decimal    `json:"revenueByHour"`
	TopProducts     []ProductSales       `json:"topProducts"`
	TotalCost       decimal.Decimal      `json:"totalCost"`
	GrossProfit     decimal.Decimal      `json:"grossProfit"`
}

type HourSlot struct {
	Hour    int             `json:"hour"`
	Label   string          `json:"label"`
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

type BranchSales struct {
	BranchID   string          `json:"branchId"`
	BranchName string          `json:"branchName"`
	Count      int             `json:"count"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type ProductVelocity struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	UnitsSold   int             `json:"unitsSold"`
	Revenue     decimal.Decimal `json:"revenue"`
	UnitsPerDay decimal.Decimal `json:"unitsPerDay"`
}

type ReportQuery struct {
	Period   string `json:"period"`
	Start    string `json:"start"`
	End      string `json:"end"`
	BranchID string `json:"branchId"`
	Search   string `json:"search"`
	TopN     int    `json:"topN"`
}

type Report struct {
	Period    string            `json:"period"`
	StartDate string            `json:"startDate"`
	EndDate   string            `json:"endDate"`
	BranchID  string            `json:"branchId,omitempty"`
	Summary   SalesSummary      `json:"summary"`
	Hourly    []HourSlot        `json:"hourly"`
	PeakHours []HourSlot        `json:"peakHours"`
	Branches  []BranchSales     `json:"branches"`
	Velocity  []ProductVelocity `json:"velocity"`
	Sales     []Sale            `json:"sales,omitempty"`
}
