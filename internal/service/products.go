package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kedaipos/backend/internal/barcode"
	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/xid"
)

const stockRetries = 3

// ListProducts returns the catalogue of a branch, optionally filtered by a
// case-insensitive substring of name, SKU or barcode.
func (s *Service) ListProducts(ctx context.Context, branchID string, search string) ([]domain.Product, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.business(ctx, actor); err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, actor.BusinessID, scopeBranch(actor, branchID))
	if err != nil {
		return nil, err
	}

	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return products, nil
	}
	filtered := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.SKU), term) ||
			strings.Contains(p.Barcode, term) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func (s *Service) LowStock(ctx context.Context, branchID string) ([]domain.Product, error) {
	products, err := s.ListProducts(ctx, branchID, "")
	if err != nil {
		return nil, err
	}
	low := make([]domain.Product, 0, 8)
	for _, p := range products {
		if p.Active && p.IsLowStock() {
			low = append(low, p)
		}
	}
	sort.SliceStable(low, func(i, j int) bool {
		return low[i].CurrentStock < low[j].CurrentStock
	})
	return low, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, actor.BusinessID, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if actor.Role != domain.RoleOwner && product.BranchID != actor.BranchID {
		return domain.Product{}, store.ErrNotFound
	}
	return *product, nil
}

// ScanBarcode validates the EAN-13 check digit before looking the code up.
// An invalid code is reported inline with Valid=false rather than as an
// error so scanners can keep going.
func (s *Service) ScanBarcode(ctx context.Context, code string) (domain.BarcodeLookupResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.BarcodeLookupResponse{}, err
	}
	code = strings.TrimSpace(code)
	resp := domain.BarcodeLookupResponse{Barcode: code, Valid: barcode.ValidEAN13(code)}
	if !resp.Valid {
		return resp, nil
	}
	product, err := s.repo.FindProductByBarcode(ctx, actor.BusinessID, code)
	if errors.Is(err, store.ErrNotFound) {
		return resp, nil
	}
	if err != nil {
		return domain.BarcodeLookupResponse{}, err
	}
	resp.Product = product
	return resp, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireOwner(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if _, err := s.business(ctx, actor); err != nil {
		return domain.Product{}, err
	}

	branchID := strings.TrimSpace(req.BranchID)
	if branchID == "" {
		branchID = actor.BranchID
	}
	if _, err := s.branch(ctx, actor.BusinessID, branchID); err != nil {
		return domain.Product{}, invalidf("unknown branch %q", branchID)
	}

	name := strings.TrimSpace(req.Name)
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if name == "" || sku == "" {
		return domain.Product{}, invalidf("product name and SKU are required")
	}
	if req.InitialStock < 0 || req.MinStock < 0 {
		return domain.Product{}, invalidf("stock values cannot be negative")
	}
	taxRate := s.defaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		unit = "pcs"
	}

	now := s.now().UTC()
	product := domain.Product{
		ID:           xid.New("prd"),
		BusinessID:   actor.BusinessID,
		BranchID:     branchID,
		Name:         name,
		SKU:          sku,
		Barcode:      strings.TrimSpace(req.Barcode),
		Unit:         unit,
		SellPrice:    req.SellPrice,
		CostPrice:    req.CostPrice,
		TaxRate:      taxRate,
		CurrentStock: req.InitialStock,
		MinStock:     req.MinStock,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_create", "product", created.ID,
		zap.String("sku", created.SKU), zap.String("price", created.SellPrice.String()), zap.Int("stock", created.CurrentStock))
	return *created, nil
}

// UpdateProduct edits catalogue fields. Stock is never changed here; use
// AdjustStock. Setting Active=false deactivates the product, which is never
// deleted.
func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := requireOwner(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	existing, err := s.repo.GetProduct(ctx, actor.BusinessID, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, invalidf("product name is required")
		}
		updated.Name = name
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Unit != nil && strings.TrimSpace(*req.Unit) != "" {
		updated.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.SellPrice != nil {
		updated.SellPrice = *req.SellPrice
	}
	if req.CostPrice != nil {
		updated.CostPrice = *req.CostPrice
	}
	if req.TaxRate != nil {
		updated.TaxRate = *req.TaxRate
	}
	if req.MinStock != nil {
		updated.MinStock = *req.MinStock
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	updated.UpdatedAt = s.now().UTC()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", "product", saved.ID,
		zap.String("price", saved.SellPrice.String()), zap.Bool("active", saved.Active))
	return *saved, nil
}

// AdjustStock restocks (adds Quantity) or adjusts (sets NewStock) a
// product and appends a history entry. Employees may restock products of
// their own branch; only owners may set an absolute value.
func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.StockAdjustRequest) (domain.Product, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	switch req.Action {
	case domain.StockRestock:
		if req.Quantity < 1 {
			return domain.Product{}, invalidf("restock quantity must be at least 1")
		}
	case domain.StockAdjustment:
		if actor.Role != domain.RoleOwner {
			return domain.Product{}, fmt.Errorf("%w: owner role required", ErrForbidden)
		}
		if req.NewStock < 0 {
			return domain.Product{}, invalidf("stock cannot be negative")
		}
	default:
		return domain.Product{}, invalidf("unknown stock action %q", req.Action)
	}

	for attempt := 1; ; attempt++ {
		current, err := s.GetProduct(ctx, productID)
		if err != nil {
			return domain.Product{}, err
		}
		next := req.NewStock
		if req.Action == domain.StockRestock {
			next = current.CurrentStock + req.Quantity
		}

		now := s.now().UTC()
		updated, err := s.repo.AdjustStock(ctx, store.StockAdjustment{
			BusinessID:    actor.BusinessID,
			ProductID:     current.ID,
			ExpectedStock: current.CurrentStock,
			NewStock:      next,
			Entry: domain.StockHistoryEntry{
				ID:         xid.New("hist"),
				BusinessID: actor.BusinessID,
				ProductID:  current.ID,
				Action:     req.Action,
				Actor:      actor.ID,
				OldValue:   domain.StockLabel(current.CurrentStock, current.Unit),
				NewValue:   domain.StockLabel(next, current.Unit),
				Note:       strings.TrimSpace(req.Note),
				Timestamp:  now,
			},
		})
		if errors.Is(err, store.ErrConflict) && attempt < stockRetries {
			continue
		}
		if err != nil {
			return domain.Product{}, err
		}
		s.logAudit(ctx, "stock_"+string(req.Action), "product", updated.ID,
			zap.Int("from", current.CurrentStock), zap.Int("to", updated.CurrentStock))
		return *updated, nil
	}
}

func (s *Service) StockHistory(ctx context.Context, productID string, limit int) ([]domain.StockHistoryEntry, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if productID != "" {
		if _, err := s.GetProduct(ctx, productID); err != nil {
			return nil, err
		}
	} else if actor.Role != domain.RoleOwner {
		return nil, fmt.Errorf("%w: owner role required", ErrForbidden)
	}
	return s.repo.ListStockHistory(ctx, actor.BusinessID, productID, limit)
}

// productCosts maps product IDs to their current catalogue cost.
func (s *Service) productCosts(ctx context.Context, businessID string) (map[string]decimal.Decimal, error) {
	products, err := s.repo.ListProducts(ctx, businessID, "")
	if err != nil {
		return nil, err
	}
	costs := make(map[string]decimal.Decimal, len(products))
	for _, p := range products {
		costs[p.ID] = p.CostPrice
	}
	return costs, nil
}
