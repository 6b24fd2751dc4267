package domain

import (
	"github.com/shopspring/decimal"
)

type RegisterRequest struct {
	BusinessName    string `json:"businessName"`
	DisplayName     string `json:"displayName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	ActorID     string `json:"actorId"`
	Role        string `json:"role"`
	BusinessID  string `json:"businessId"`
	BranchID    string `json:"branchId"`
	ExpiresAt   string `json:"expiresAt"`
}

type EmployeeCreateRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
	BranchID    string `json:"branchId"`
}

type BranchCreateRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type ProductCreateRequest struct {
	BranchID     string           `json:"branchId"`
	Name         string           `json:"name"`
	SKU          string           `json:"sku"`
	Barcode      string           `json:"barcode"`
	Unit         string           `json:"unit"`
	SellPrice    decimal.Decimal  `json:"sellPrice"`
	CostPrice    decimal.Decimal  `json:"costPrice"`
	TaxRate      *decimal.Decimal `json:"taxRate"`
	InitialStock int              `json:"initialStock"`
	MinStock     int              `json:"minStock"`
}

type ProductUpdateRequest struct {
	Name      *string          `json:"name"`
	Barcode   *string          `json:"barcode"`
	Unit      *string          `json:"unit"`
	SellPrice *decimal.Decimal `json:"sellPrice"`
	CostPrice *decimal.Decimal `json:"costPrice"`
	TaxRate   *decimal.Decimal `json:"taxRate"`
	MinStock  *int             `json:"minStock"`
	Active    *bool            `json:"active"`
}

// StockAdjustRequest either adds Quantity (restock) or sets the stock to
// NewStock (adjustment).
type StockAdjustRequest struct {
	Action   StockAction `json:"action"`
	Quantity int         `json:"quantity"`
	NewStock int         `json:"newStock"`
	Note     string      `json:"note"`
}

type BarcodeLookupResponse struct {
	Barcode string   `json:"barcode"`
	Valid   bool     `json:"valid"`
	Product *Product `json:"product,omitempty"`
}

type OpenSessionRequest struct {
	BranchID string `json:"branchId"`
}

type AddItemRequest struct {
	ProductID string `json:"productId"`
	Barcode   string `json:"barcode"`
}

type UpdateQuantityRequest struct {
	Delta int `json:"delta"`
}

type ClearCartRequest struct {
	Confirm bool `json:"confirm"`
}

type PaymentMethodRequest struct {
	Method PaymentMethod `json:"method"`
}

type TenderRequest struct {
	AmountPaid decimal.Decimal `json:"amountPaid"`
}

type CompleteSaleRequest struct {
	CustomerName string `json:"customerName"`
}

type SessionView struct {
	ID            string            `json:"id"`
	BranchID      string            `json:"branchId"`
	State         string            `json:"state"`
	Lines         []CartLine        `json:"lines"`
	Totals        Totals            `json:"totals"`
	PaymentMethod PaymentMethod     `json:"paymentMethod,omitempty"`
	AmountPaid    decimal.Decimal   `json:"amountPaid"`
	Change        *decimal.Decimal  `json:"change,omitempty"`
	CanComplete   bool              `json:"canComplete"`
	QuickAmounts  []decimal.Decimal `json:"quickAmounts,omitempty"`
	LastSale      *Sale             `json:"lastSale,omitempty"`
}
