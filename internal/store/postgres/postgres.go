package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates any missing tables. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateBusiness(ctx context.Context, business domain.Business, mainBranch domain.Branch, owner domain.UserAccount) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO businesses (id, name, owner_id, created_at)
		VALUES ($1,$2,$3,$4)
	`, business.ID, business.Name, business.OwnerID, business.CreatedAt); err != nil {
		return mapWriteErr(err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO branches (id, business_id, name, address, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, mainBranch.ID, mainBranch.BusinessID, mainBranch.Name, nullIfEmpty(mainBranch.Address), mainBranch.Active, mainBranch.CreatedAt); err != nil {
		return mapWriteErr(err)
	}
	if err := insertUser(ctx, tx, owner); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetBusiness(ctx context.Context, businessID string) (*domain.Business, error) {
	var b domain.Business
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, created_at
		FROM businesses
		WHERE id = $1
	`, businessID).Scan(&b.ID, &b.Name, &b.OwnerID, &b.CreatedAt)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &b, nil
}

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, business_id, name, address, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, branch.ID, branch.BusinessID, branch.Name, nullIfEmpty(branch.Address), branch.Active, branch.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	created := branch
	return &created, nil
}

func (s *Store) ListBranches(ctx context.Context, businessID string) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, name, COALESCE(address, ''), active, created_at
		FROM branches
		WHERE business_id = $1
		ORDER BY name
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 4)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.BusinessID, &b.Name, &b.Address, &b.Active, &b.CreatedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	return insertUser(ctx, s.db, user)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertUser(ctx context.Context, db execer, user domain.UserAccount) error {
	if user.Email == "" || user.ID == "" || user.PasswordHash == "" {
		return store.ErrValidation
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (email, id, display_name, password_hash, role, business_id, branch_id, active, created_at)
		VALUES (lower($1),$2,$3,$4,$5,$6,$7,$8,$9)
	`, user.Email, user.ID, user.DisplayName, user.PasswordHash, user.Role, user.BusinessID, user.BranchID, user.Active, user.CreatedAt)
	return mapWriteErr(err)
}

const userColumns = `email, id, display_name, password_hash, role, business_id, branch_id, active, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (domain.UserAccount, error) {
	var u domain.UserAccount
	err := row.Scan(&u.Email, &u.ID, &u.DisplayName, &u.PasswordHash, &u.Role, &u.BusinessID, &u.BranchID, &u.Active, &u.CreatedAt)
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, businessID string) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE business_id = $1 ORDER BY email`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const productColumns = `id, business_id, branch_id, name, sku, COALESCE(barcode, ''), unit, sell_price, cost_price, tax_rate, current_stock, min_stock, active, created_at, updated_at`

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.BusinessID, &p.BranchID, &p.Name, &p.SKU, &p.Barcode, &p.Unit,
		&p.SellPrice, &p.CostPrice, &p.TaxRate, &p.CurrentStock, &p.MinStock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	if err := store.CheckRead("product", p.ID, p.Validate()); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, businessID string, branchID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE business_id = $1 AND ($2::text = '' OR branch_id = $2)
		ORDER BY name, id
	`, businessID, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, businessID string, productID string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE business_id = $1 AND id = $2
	`, businessID, productID))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &p, nil
}

func (s *Store) FindProductByBarcode(ctx context.Context, businessID string, code string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE business_id = $1 AND barcode = $2
		ORDER BY active DESC, updated_at DESC
		LIMIT 1
	`, businessID, code))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, business_id, branch_id, name, sku, barcode, unit, sell_price, cost_price,
			tax_rate, current_stock, min_stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, product.ID, product.BusinessID, product.BranchID, product.Name, product.SKU, nullIfEmpty(product.Barcode),
		product.Unit, product.SellPrice, product.CostPrice, product.TaxRate, product.CurrentStock, product.MinStock,
		product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	existing, err := s.GetProduct(ctx, product.BusinessID, product.ID)
	if err != nil {
		return nil, err
	}
	product.CurrentStock = existing.CurrentStock
	product.CreatedAt = existing.CreatedAt
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $3, barcode = $4, unit = $5, sell_price = $6, cost_price = $7, tax_rate = $8,
			min_stock = $9, active = $10, updated_at = $11
		WHERE business_id = $1 AND id = $2
	`, product.BusinessID, product.ID, product.Name, nullIfEmpty(product.Barcode), product.Unit, product.SellPrice,
		product.CostPrice, product.TaxRate, product.MinStock, product.Active, product.UpdatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) AdjustStock(ctx context.Context, adj store.StockAdjustment) (*domain.Product, error) {
	if adj.NewStock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", store.ErrValidation)
	}
	if err := adj.Entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT current_stock FROM products
		WHERE business_id = $1 AND id = $2
		FOR UPDATE
	`, adj.BusinessID, adj.ProductID).Scan(&current)
	if err != nil {
		return nil, mapReadErr(err)
	}
	if current != adj.ExpectedStock {
		return nil, fmt.Errorf("%w: stock changed from %d to %d", store.ErrConflict, adj.ExpectedStock, current)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET current_stock = $3, updated_at = $4
		WHERE business_id = $1 AND id = $2
	`, adj.BusinessID, adj.ProductID, adj.NewStock, adj.Entry.Timestamp); err != nil {
		return nil, mapWriteErr(err)
	}
	if err := insertHistory(ctx, tx, adj.Entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteErr(err)
	}
	return s.GetProduct(ctx, adj.BusinessID, adj.ProductID)
}

func insertHistory(ctx context.Context, db execer, entry domain.StockHistoryEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO stock_history (id, business_id, product_id, action, actor, old_value, new_value, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.BusinessID, entry.ProductID, string(entry.Action), entry.Actor, entry.OldValue, entry.NewValue, entry.Note, entry.Timestamp)
	return mapWriteErr(err)
}

func (s *Store) ListStockHistory(ctx context.Context, businessID string, productID string, limit int) ([]domain.StockHistoryEntry, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, product_id, action, actor, old_value, new_value, note, created_at
		FROM stock_history
		WHERE business_id = $1 AND ($2::text = '' OR product_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, businessID, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockHistoryEntry, 0, limit)
	for rows.Next() {
		var e domain.StockHistoryEntry
		var action string
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.ProductID, &action, &e.Actor, &e.OldValue, &e.NewValue, &e.Note, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Action = domain.StockAction(action)
		if err := store.CheckRead("history", e.ID, e.Validate()); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CommitSale locks every affected product row, verifies stock, then writes
// the sale, its items, the decrements and the history in one serializable
// transaction.
func (s *Store) CommitSale(ctx context.Context, commit store.SaleCommit) (*domain.Sale, error) {
	if err := store.ValidateCommit(commit); err != nil {
		return nil, err
	}
	sale := commit.Sale

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	required := make(map[string]int, len(commit.StockChanges))
	ids := make([]string, 0, len(commit.StockChanges))
	for _, change := range commit.StockChanges {
		if _, seen := required[change.ProductID]; !seen {
			ids = append(ids, change.ProductID)
		}
		required[change.ProductID] += change.Quantity
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, unit, current_stock
		FROM products
		WHERE business_id = $1 AND id = ANY($2)
		FOR UPDATE
	`, sale.BusinessID, ids)
	if err != nil {
		return nil, err
	}
	type stockRow struct {
		name  string
		unit  string
		stock int
	}
	stock := make(map[string]stockRow, len(ids))
	for rows.Next() {
		var id string
		var row stockRow
		if err := rows.Scan(&id, &row.name, &row.unit, &row.stock); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stock[id] = row
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	before := make(map[string]store.StockLevel, len(ids))
	for _, id := range ids {
		row, ok := stock[id]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		if row.stock < required[id] {
			return nil, fmt.Errorf("%w: %s has %d left", store.ErrInsufficientStock, row.name, row.stock)
		}
		before[id] = store.StockLevel{Stock: row.stock, Unit: row.unit}
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET current_stock = current_stock - $3, updated_at = $4
			WHERE business_id = $1 AND id = $2
		`, sale.BusinessID, id, required[id], sale.SoldAt); err != nil {
			return nil, mapWriteErr(err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, business_id, receipt_number, subtotal, tax, total, amount_paid, change_due,
			payment_method, branch_id, branch_name, sold_by, sold_by_name, customer_name, sold_at, sale_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, sale.ID, sale.BusinessID, sale.ReceiptNumber, sale.Subtotal, sale.Tax, sale.Total, sale.AmountPaid, sale.Change,
		string(sale.PaymentMethod), sale.BranchID, sale.BranchName, sale.SoldBy, sale.SoldByName,
		nullIfEmpty(sale.CustomerName), sale.SoldAt, sale.Date); err != nil {
		return nil, mapWriteErr(err)
	}
	for i, item := range sale.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, product_name, sku, unit, sell_price, cost_price,
				tax_rate, quantity, subtotal, tax)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, sale.ID, i, item.ProductID, item.ProductName, item.SKU, item.Unit, item.SellPrice, item.CostPrice,
			item.TaxRate, item.Quantity, item.Subtotal, item.Tax); err != nil {
			return nil, mapWriteErr(err)
		}
	}
	for _, entry := range store.LabelSoldHistory(commit, before) {
		if err := insertHistory(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapWriteErr(err)
	}
	return &sale, nil
}

const saleColumns = `id, business_id, receipt_number, subtotal, tax, total, amount_paid, change_due, payment_method,
	branch_id, branch_name, sold_by, sold_by_name, COALESCE(customer_name, ''), sold_at, sale_date::text`

func scanSale(row scanner) (domain.Sale, error) {
	var sale domain.Sale
	var method string
	err := row.Scan(&sale.ID, &sale.BusinessID, &sale.ReceiptNumber, &sale.Subtotal, &sale.Tax, &sale.Total,
		&sale.AmountPaid, &sale.Change, &method, &sale.BranchID, &sale.BranchName, &sale.SoldBy, &sale.SoldByName,
		&sale.CustomerName, &sale.SoldAt, &sale.Date)
	sale.PaymentMethod = domain.PaymentMethod(method)
	return sale, err
}

func (s *Store) ListSales(ctx context.Context, businessID string) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE business_id = $1
		ORDER BY sold_at DESC
	`, businessID)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, 256)
	index := map[string]int{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT i.sale_id, i.product_id, i.product_name, i.sku, i.unit, i.sell_price, i.cost_price, i.tax_rate,
			i.quantity, i.subtotal, i.tax
		FROM sale_items i
		JOIN sales s ON s.id = i.sale_id
		WHERE s.business_id = $1
		ORDER BY i.sale_id, i.line_no
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var saleID string
		item, err := scanItem(itemRows, &saleID)
		if err != nil {
			return nil, err
		}
		if pos, ok := index[saleID]; ok {
			sales[pos].Items = append(sales[pos].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for _, sale := range sales {
		if err := store.CheckRead("sale", sale.ID, sale.Validate()); err != nil {
			return nil, err
		}
	}
	return sales, nil
}

func scanItem(row scanner, saleID *string) (domain.SaleItem, error) {
	var item domain.SaleItem
	err := row.Scan(saleID, &item.ProductID, &item.ProductName, &item.SKU, &item.Unit, &item.SellPrice, &item.CostPrice,
		&item.TaxRate, &item.Quantity, &item.Subtotal, &item.Tax)
	return item, err
}

func (s *Store) GetSale(ctx context.Context, businessID string, saleID string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE business_id = $1 AND id = $2
	`, businessID, saleID))
	if err != nil {
		return nil, mapReadErr(err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, sku, unit, sell_price, cost_price, tax_rate, quantity, subtotal, tax
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY line_no
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		item, err := scanItem(rows, &id)
		if err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := store.CheckRead("sale", sale.ID, sale.Validate()); err != nil {
		return nil, err
	}
	return &sale, nil
}

func mapReadErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: concurrent update, retry: %v", store.ErrConflict, err)
	}
	if isCheckViolation(err) {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isSerializationFailure(err error) bool {
	return pgCode(err) == "40001"
}

func isCheckViolation(err error) bool {
	return pgCode(err) == "23514"
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
