package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	businesses   map[string]domain.Business
	branches     map[string]domain.Branch
	usersByEmail map[string]domain.UserAccount
	products     map[string]domain.Product
	history      []domain.StockHistoryEntry
	sales        map[string]domain.Sale
}

func New() *Store {
	return &Store{
		businesses:   make(map[string]domain.Business),
		branches:     make(map[string]domain.Branch),
		usersByEmail: make(map[string]domain.UserAccount),
		products:     make(map[string]domain.Product),
		history:      make([]domain.StockHistoryEntry, 0, 128),
		sales:        make(map[string]domain.Sale),
	}
}

const (
	SeedBusinessID   = "biz-demo"
	SeedMainBranchID = "br-main"
	SeedEastBranchID = "br-east"
	SeedOwnerEmail   = "owner@kedai.test"
	SeedCashierEmail = "kasir@kedai.test"
)

// NewSeeded builds a demo business with two branches, an owner, a cashier
// and a small catalogue. Passwords come from SEED_OWNER_PASSWORD and
// SEED_CASHIER_PASSWORD, falling back to dev defaults.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	now := time.Now().UTC()

	s.businesses[SeedBusinessID] = domain.Business{ID: SeedBusinessID, Name: "Kedai Demo", OwnerID: domain.ActorIDFromEmail(SeedOwnerEmail), CreatedAt: now}
	s.branches[SeedMainBranchID] = domain.Branch{ID: SeedMainBranchID, BusinessID: SeedBusinessID, Name: "Main", Active: true, CreatedAt: now}
	s.branches[SeedEastBranchID] = domain.Branch{ID: SeedEastBranchID, BusinessID: SeedBusinessID, Name: "East Market", Active: true, CreatedAt: now}

	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "kasir123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("memory store using default dev credentials; set SEED_OWNER_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}
	for _, u := range []struct {
		email    string
		name     string
		password string
		role     string
	}{
		{SeedOwnerEmail, "Demo Owner", ownerPwd, domain.RoleOwner},
		{SeedCashierEmail, "Demo Cashier", cashierPwd, domain.RoleEmployee},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("hash seed password", zap.String("email", u.email), zap.Error(err))
		}
		s.usersByEmail[u.email] = domain.UserAccount{
			ID:           domain.ActorIDFromEmail(u.email),
			Email:        u.email,
			DisplayName:  u.name,
			PasswordHash: string(hash),
			Role:         u.role,
			BusinessID:   SeedBusinessID,
			BranchID:     SeedMainBranchID,
			Active:       true,
			CreatedAt:    now,
		}
	}

	for _, p := range []struct {
		id, name, sku, barcode, unit, price, cost string
		rate                                      int64
		stock, min                                int
		branch                                    string
	}{
		{"prd-rice-5kg", "Rice 5kg", "RICE-5KG", "6001009100139", "bag", "78000", "65000", 15, 40, 5, SeedMainBranchID},
		{"prd-egg-10", "Eggs (10)", "EGG-10", "8999991000019", "tray", "26500", "22000", 0, 60, 10, SeedMainBranchID},
		{"prd-milk-1l", "UHT Milk 1L", "MILK-1L", "8999991000026", "box", "18900", "14000", 15, 80, 12, SeedMainBranchID},
		{"prd-coffee", "Coffee Sachet", "COFFEE-SCH", "8999991000033", "pcs", "2600", "1700", 15, 200, 30, SeedMainBranchID},
		{"prd-sugar-1kg", "Sugar 1kg", "SUGAR-1KG", "8999991000040", "pack", "17400", "15200", 0, 3, 5, SeedMainBranchID},
		{"prd-water-600", "Mineral Water 600ml", "WATER-600", "8999991000057", "bottle", "3900", "2500", 15, 120, 24, SeedEastBranchID},
		{"prd-soap", "Bath Soap", "SOAP-01", "8999991000064", "pcs", "7400", "5000", 15, 0, 6, SeedEastBranchID},
	} {
		s.products[p.id] = domain.Product{
			ID:           p.id,
			BusinessID:   SeedBusinessID,
			BranchID:     p.branch,
			Name:         p.name,
			SKU:          p.sku,
			Barcode:      p.barcode,
			Unit:         p.unit,
			SellPrice:    decimal.RequireFromString(p.price),
			CostPrice:    decimal.RequireFromString(p.cost),
			TaxRate:      decimal.NewFromInt(p.rate),
			CurrentStock: p.stock,
			MinStock:     p.min,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateBusiness(_ context.Context, business domain.Business, mainBranch domain.Branch, owner domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(owner.Email)
	if business.ID == "" || mainBranch.ID == "" || email == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByEmail[email]; exists {
		return fmt.Errorf("%w: email already registered", store.ErrConflict)
	}
	if _, exists := s.businesses[business.ID]; exists {
		return store.ErrConflict
	}

	owner.Email = email
	s.businesses[business.ID] = business
	s.branches[mainBranch.ID] = mainBranch
	s.usersByEmail[email] = owner
	return nil
}

func (s *Store) GetBusiness(_ context.Context, businessID string) (*domain.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	business, ok := s.businesses[businessID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &business, nil
}

func (s *Store) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if branch.ID == "" || strings.TrimSpace(branch.Name) == "" {
		return nil, store.ErrValidation
	}
	if _, ok := s.businesses[branch.BusinessID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, exists := s.branches[branch.ID]; exists {
		return nil, store.ErrConflict
	}
	s.branches[branch.ID] = branch
	created := branch
	return &created, nil
}

func (s *Store) ListBranches(_ context.Context, businessID string) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, 4)
	for _, b := range s.branches {
		if b.BusinessID == businessID {
			branches = append(branches, b)
		}
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return cmpString(a.Name, b.Name)
	})
	return branches, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(user.Email)
	if email == "" || user.ID == "" || user.PasswordHash == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByEmail[email]; exists {
		return fmt.Errorf("%w: email already registered", store.ErrConflict)
	}
	user.Email = email
	s.usersByEmail[email] = user
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByEmail[normalizeEmail(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context, businessID string) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, 8)
	for _, u := range s.usersByEmail {
		if u.BusinessID == businessID {
			users = append(users, u)
		}
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Email, b.Email)
	})
	return users, nil
}

func (s *Store) ListProducts(_ context.Context, businessID string, branchID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.BusinessID != businessID {
			continue
		}
		if branchID != "" && p.BranchID != branchID {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, businessID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok || p.BusinessID != businessID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) FindProductByBarcode(_ context.Context, businessID string, code string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match *domain.Product
	for _, p := range s.products {
		if p.BusinessID != businessID || p.Barcode != code {
			continue
		}
		candidate := p
		if match == nil || (candidate.Active && !match.Active) {
			match = &candidate
		}
	}
	if match == nil {
		return nil, store.ErrNotFound
	}
	return match, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	for _, p := range s.products {
		if p.BusinessID == product.BusinessID && p.BranchID == product.BranchID && strings.EqualFold(p.SKU, product.SKU) {
			return nil, fmt.Errorf("%w: sku %s already exists in branch", store.ErrConflict, product.SKU)
		}
	}

	s.products[product.ID] = product
	created := product
	return &created, nil
}

// UpdateProduct replaces catalogue fields. Stock is left untouched; it only
// moves through AdjustStock and CommitSale.
func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok || existing.BusinessID != product.BusinessID {
		return nil, store.ErrNotFound
	}
	product.CurrentStock = existing.CurrentStock
	product.CreatedAt = existing.CreatedAt
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, adj store.StockAdjustment) (*domain.Product, error) {
	if adj.NewStock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", store.ErrValidation)
	}
	if err := adj.Entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[adj.ProductID]
	if !ok || p.BusinessID != adj.BusinessID {
		return nil, store.ErrNotFound
	}
	if p.CurrentStock != adj.ExpectedStock {
		return nil, fmt.Errorf("%w: stock changed from %d to %d", store.ErrConflict, adj.ExpectedStock, p.CurrentStock)
	}

	p.CurrentStock = adj.NewStock
	p.UpdatedAt = adj.Entry.Timestamp
	s.products[p.ID] = p
	s.history = append(s.history, adj.Entry)

	updated := p
	return &updated, nil
}

func (s *Store) ListStockHistory(_ context.Context, businessID string, productID string, limit int) ([]domain.StockHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}
	out := make([]domain.StockHistoryEntry, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		entry := s.history[i]
		if entry.BusinessID != businessID {
			continue
		}
		if productID != "" && entry.ProductID != productID {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// CommitSale applies the whole commit under one lock: either every stock
// row is decremented and the sale and history are stored, or nothing is.
func (s *Store) CommitSale(_ context.Context, commit store.SaleCommit) (*domain.Sale, error) {
	if err := store.ValidateCommit(commit); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale := commit.Sale
	if _, exists := s.sales[sale.ID]; exists {
		return nil, fmt.Errorf("%w: sale %s already exists", store.ErrConflict, sale.ID)
	}

	required := make(map[string]int, len(commit.StockChanges))
	order := make([]string, 0, len(commit.StockChanges))
	for _, change := range commit.StockChanges {
		if _, seen := required[change.ProductID]; !seen {
			order = append(order, change.ProductID)
		}
		required[change.ProductID] += change.Quantity
	}

	next := make(map[string]domain.Product, len(required))
	before := make(map[string]store.StockLevel, len(required))
	for _, productID := range order {
		p, ok := s.products[productID]
		if !ok || p.BusinessID != sale.BusinessID {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
		}
		if p.CurrentStock < required[productID] {
			return nil, fmt.Errorf("%w: %s has %d left", store.ErrInsufficientStock, p.Name, p.CurrentStock)
		}
		before[productID] = store.StockLevel{Stock: p.CurrentStock, Unit: p.Unit}
		p.CurrentStock -= required[productID]
		p.UpdatedAt = sale.SoldAt
		next[productID] = p
	}

	for id, p := range next {
		s.products[id] = p
	}
	s.history = append(s.history, store.LabelSoldHistory(commit, before)...)
	s.sales[sale.ID] = cloneSale(sale)

	committed := cloneSale(sale)
	return &committed, nil
}

func (s *Store) ListSales(_ context.Context, businessID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if sale.BusinessID == businessID {
			out = append(out, cloneSale(sale))
		}
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		return b.SoldAt.Compare(a.SoldAt)
	})
	return out, nil
}

func (s *Store) GetSale(_ context.Context, businessID string, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[saleID]
	if !ok || sale.BusinessID != businessID {
		return nil, store.ErrNotFound
	}
	out := cloneSale(sale)
	return &out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cmpString(a string, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = append([]domain.SaleItem(nil), src.Items...)
	return dst
}
