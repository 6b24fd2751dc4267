package store

import (
	"context"
	"errors"
	"fmt"

	"kedaipos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrMalformedDocument = errors.New("malformed document")
	ErrConflict          = errors.New("conflict")
)

// SaleCommit is applied atomically: the sale is written, every stock change
// is decremented and every history entry appended, or none of it is.
type SaleCommit struct {
	Sale         domain.Sale
	StockChanges []domain.StockChange
	History      []domain.StockHistoryEntry
}

// StockAdjustment sets a product's stock to NewStock provided it still
// equals ExpectedStock, and appends Entry.
type StockAdjustment struct {
	BusinessID    string
	ProductID     string
	ExpectedStock int
	NewStock      int
	Entry         domain.StockHistoryEntry
}

type Repository interface {
	CreateBusiness(ctx context.Context, business domain.Business, mainBranch domain.Branch, owner domain.UserAccount) error
	GetBusiness(ctx context.Context, businessID string) (*domain.Business, error)
	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	ListBranches(ctx context.Context, businessID string) ([]domain.Branch, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context, businessID string) ([]domain.UserAccount, error)

	ListProducts(ctx context.Context, businessID string, branchID string) ([]domain.Product, error)
	GetProduct(ctx context.Context, businessID string, productID string) (*domain.Product, error)
	FindProductByBarcode(ctx context.Context, businessID string, code string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, adj StockAdjustment) (*domain.Product, error)
	ListStockHistory(ctx context.Context, businessID string, productID string, limit int) ([]domain.StockHistoryEntry, error)

	CommitSale(ctx context.Context, commit SaleCommit) (*domain.Sale, error)
	ListSales(ctx context.Context, businessID string) ([]domain.Sale, error)
	GetSale(ctx context.Context, businessID string, saleID string) (*domain.Sale, error)
}

// ValidateCommit checks a commit before any backend touches storage.
func ValidateCommit(commit SaleCommit) error {
	if err := commit.Sale.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(commit.StockChanges) == 0 {
		return fmt.Errorf("%w: sale %s has no stock changes", ErrValidation, commit.Sale.ID)
	}
	for _, change := range commit.StockChanges {
		if change.ProductID == "" || change.Quantity < 1 {
			return fmt.Errorf("%w: malformed stock change for sale %s", ErrValidation, commit.Sale.ID)
		}
	}
	for _, entry := range commit.History {
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	return nil
}

// ValidateProduct wraps domain validation for writes.
func ValidateProduct(product domain.Product) error {
	if err := product.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// CheckRead rejects records that fail their schema on the way out of a
// backend.
func CheckRead(kind string, id string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s %s: %v", ErrMalformedDocument, kind, id, err)
}

// StockLevel is a product's stock as read inside a sale commit, before the
// decrement.
type StockLevel struct {
	Stock int
	Unit  string
}

// LabelSoldHistory returns commit.History with every "sold" entry stamped
// with the transition its stock change made, starting from the levels the
// backend read under its lock. Entries are paired with StockChanges of the
// same product in order; lines sold twice chain from one to the next.
func LabelSoldHistory(commit SaleCommit, before map[string]StockLevel) []domain.StockHistoryEntry {
	pending := make(map[string][]int, len(commit.StockChanges))
	for _, change := range commit.StockChanges {
		pending[change.ProductID] = append(pending[change.ProductID], change.Quantity)
	}
	running := make(map[string]int, len(before))
	for id, level := range before {
		running[id] = level.Stock
	}

	out := make([]domain.StockHistoryEntry, len(commit.History))
	copy(out, commit.History)
	for i := range out {
		entry := &out[i]
		if entry.Action != domain.StockSold {
			continue
		}
		queue := pending[entry.ProductID]
		level, ok := before[entry.ProductID]
		if len(queue) == 0 || !ok {
			continue
		}
		qty := queue[0]
		pending[entry.ProductID] = queue[1:]

		old := running[entry.ProductID]
		entry.OldValue = domain.StockLabel(old, level.Unit)
		entry.NewValue = domain.StockLabel(old-qty, level.Unit)
		running[entry.ProductID] = old - qty
	}
	return out
}
