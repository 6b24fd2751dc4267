package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	RoleOwner    = "owner"
	RoleEmployee = "employee"
)

const DateLayout = "2006-01-02"

var (
	Hundred        = decimal.NewFromInt(100)
	DefaultTaxRate = decimal.NewFromInt(15)
)

type Actor struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	BusinessID string `json:"businessId"`
	BranchID   string `json:"branchId"`
}

type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentCard    PaymentMethod = "card"
	PaymentEwallet PaymentMethod = "ewallet"
)

var PaymentMethods = []PaymentMethod{PaymentCash, PaymentCard, PaymentEwallet}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentEwallet:
		return true
	}
	return false
}

type Product struct {
	ID           string          `json:"id"`
	BusinessID   string          `json:"businessId"`
	BranchID     string          `json:"branchId"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	Barcode      string          `json:"barcode,omitempty"`
	Unit         string          `json:"unit"`
	SellPrice    decimal.Decimal `json:"sellPrice"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	TaxRate      decimal.Decimal `json:"taxRate"`
	CurrentStock int             `json:"currentStock"`
	MinStock     int             `json:"minStock"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (p Product) IsLowStock() bool {
	return p.CurrentStock <= p.MinStock
}

type CartLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Unit      string          `json:"unit"`
	SellPrice decimal.Decimal `json:"sellPrice"`
	CostPrice decimal.Decimal `json:"costPrice"`
	TaxRate   decimal.Decimal `json:"taxRate"`
	Quantity  int             `json:"quantity"`
	MaxStock  int             `json:"maxStock"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.SellPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l CartLine) Tax() decimal.Decimal {
	return LineTax(l.SellPrice, l.TaxRate, l.Quantity)
}

// LineTax is price x qty x rate / 100, unrounded.
func LineTax(price decimal.Decimal, rate decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty))).Mul(rate).Div(Hundred)
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

type SaleItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	SKU         string          `json:"sku"`
	Unit        string          `json:"unit,omitempty"`
	SellPrice   decimal.Decimal `json:"sellPrice"`
	CostPrice   decimal.Decimal `json:"costPrice"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
}

type Sale struct {
	ID            string          `json:"id"`
	BusinessID    string          `json:"businessId"`
	ReceiptNumber string          `json:"receiptNumber"`
	Items         []SaleItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	Change        decimal.Decimal `json:"change"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	BranchID      string          `json:"branchId"`
	BranchName    string          `json:"branchName"`
	SoldBy        string          `json:"soldBy"`
	SoldByName    string          `json:"soldByName"`
	CustomerName  string          `json:"customerName,omitempty"`
	SoldAt        time.Time       `json:"soldAt"`
	Date          string          `json:"date"`
}

type StockAction string

const (
	StockSold       StockAction = "sold"
	StockRestock    StockAction = "restock"
	StockAdjustment StockAction = "adjustment"
)

type StockHistoryEntry struct {
	ID         string      `json:"id"`
	BusinessID string      `json:"businessId"`
	ProductID  string      `json:"productId"`
	Action     StockAction `json:"action"`
	Actor      string      `json:"actor"`
	OldValue   string      `json:"oldValue"`
	NewValue   string      `json:"newValue"`
	Note       string      `json:"note"`
	Timestamp  time.Time   `json:"timestamp"`
}

// StockLabel formats a stock level for history entries, e.g. "12 pcs".
func StockLabel(qty int, unit string) string {
	if unit == "" {
		unit = "pcs"
	}
	return fmt.Sprintf("%d %s", qty, unit)
}

// StockChange decrements a product's stock by Quantity inside a sale commit.
type StockChange struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Branch struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId"`
	Name       string    `json:"name"`
	Address    string    `json:"address,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
}

type UserAccount struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	BusinessID   string    `json:"businessId"`
	BranchID     string    `json:"branchId"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}
