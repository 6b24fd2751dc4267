package mongodb

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
)

// Money is persisted as decimal strings so no precision is lost to BSON
// doubles. Every document is validated when it is read back.

type businessDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	OwnerID   string    `bson:"ownerId"`
	CreatedAt time.Time `bson:"createdAt"`
}

type branchDoc struct {
	ID         string    `bson:"_id"`
	BusinessID string    `bson:"businessId"`
	Name       string    `bson:"name"`
	Address    string    `bson:"address,omitempty"`
	Active     bool      `bson:"active"`
	CreatedAt  time.Time `bson:"createdAt"`
}

type userDoc struct {
	Email        string    `bson:"_id"`
	ID           string    `bson:"actorId"`
	DisplayName  string    `bson:"displayName"`
	PasswordHash string    `bson:"passwordHash"`
	Role         string    `bson:"role"`
	BusinessID   string    `bson:"businessId"`
	BranchID     string    `bson:"branchId"`
	Active       bool      `bson:"active"`
	CreatedAt    time.Time `bson:"createdAt"`
}

// stockDoc is the part of a product document a sale decrement reads back.
type stockDoc struct {
	Unit         string `bson:"unit"`
	CurrentStock int    `bson:"currentStock"`
}

type productDoc struct {
	ID           string    `bson:"_id"`
	BusinessID   string    `bson:"businessId"`
	BranchID     string    `bson:"branchId"`
	Name         string    `bson:"name"`
	SKU          string    `bson:"sku"`
	Barcode      string    `bson:"barcode,omitempty"`
	Unit         string    `bson:"unit"`
	SellPrice    string    `bson:"sellPrice"`
	CostPrice    string    `bson:"costPrice"`
	TaxRate      string    `bson:"taxRate"`
	CurrentStock int       `bson:"currentStock"`
	MinStock     int       `bson:"minStock"`
	Active       bool      `bson:"active"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

type historyDoc struct {
	ID         string    `bson:"_id"`
	BusinessID string    `bson:"businessId"`
	ProductID  string    `bson:"productId"`
	Action     string    `bson:"action"`
	Actor      string    `bson:"actor"`
	OldValue   string    `bson:"oldValue"`
	NewValue   string    `bson:"newValue"`
	Note       string    `bson:"note"`
	Timestamp  time.Time `bson:"timestamp"`
}

type saleItemDoc struct {
	ProductID   string `bson:"productId"`
	ProductName string `bson:"productName"`
	SKU         string `bson:"sku"`
	Unit        string `bson:"unit,omitempty"`
	SellPrice   string `bson:"sellPrice"`
	CostPrice   string `bson:"costPrice"`
	TaxRate     string `bson:"taxRate"`
	Quantity    int    `bson:"quantity"`
	Subtotal    string `bson:"subtotal"`
	Tax         string `bson:"tax"`
}

type saleDoc struct {
	ID            string        `bson:"_id"`
	BusinessID    string        `bson:"businessId"`
	ReceiptNumber string        `bson:"receiptNumber"`
	Items         []saleItemDoc `bson:"items"`
	Subtotal      string        `bson:"subtotal"`
	Tax           string        `bson:"tax"`
	Total         string        `bson:"total"`
	AmountPaid    string        `bson:"amountPaid"`
	Change        string        `bson:"change"`
	PaymentMethod string        `bson:"paymentMethod"`
	BranchID      string        `bson:"branchId"`
	BranchName    string        `bson:"branchName"`
	SoldBy        string        `bson:"soldBy"`
	SoldByName    string        `bson:"soldByName"`
	CustomerName  string        `bson:"customerName,omitempty"`
	SoldAt        time.Time     `bson:"soldAt"`
	Date          string        `bson:"date"`
}

// moneyReader collects the first parse failure so a document can be
// converted field by field and rejected once.
type moneyReader struct {
	err error
}

func (r *moneyReader) read(field string, raw string) decimal.Decimal {
	if r.err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		r.err = fmt.Errorf("field %s: %q is not a decimal", field, raw)
		return decimal.Zero
	}
	return d
}

func toProductDoc(p domain.Product) productDoc {
	return productDoc{
		ID: p.ID, BusinessID: p.BusinessID, BranchID: p.BranchID, Name: p.Name, SKU: p.SKU,
		Barcode: p.Barcode, Unit: p.Unit,
		SellPrice: p.SellPrice.String(), CostPrice: p.CostPrice.String(), TaxRate: p.TaxRate.String(),
		CurrentStock: p.CurrentStock, MinStock: p.MinStock, Active: p.Active,
		CreatedAt: p.CreatedAt.UTC(), UpdatedAt: p.UpdatedAt.UTC(),
	}
}

func (d productDoc) toDomain() (domain.Product, error) {
	var r moneyReader
	p := domain.Product{
		ID: d.ID, BusinessID: d.BusinessID, BranchID: d.BranchID, Name: d.Name, SKU: d.SKU,
		Barcode: d.Barcode, Unit: d.Unit,
		SellPrice:    r.read("sellPrice", d.SellPrice),
		CostPrice:    r.read("costPrice", d.CostPrice),
		TaxRate:      r.read("taxRate", d.TaxRate),
		CurrentStock: d.CurrentStock, MinStock: d.MinStock, Active: d.Active,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	if r.err != nil {
		return p, store.CheckRead("product", d.ID, r.err)
	}
	return p, store.CheckRead("product", d.ID, p.Validate())
}

func toHistoryDoc(e domain.StockHistoryEntry) historyDoc {
	return historyDoc{
		ID: e.ID, BusinessID: e.BusinessID, ProductID: e.ProductID, Action: string(e.Action),
		Actor: e.Actor, OldValue: e.OldValue, NewValue: e.NewValue, Note: e.Note, Timestamp: e.Timestamp.UTC(),
	}
}

func (d historyDoc) toDomain() (domain.StockHistoryEntry, error) {
	e := domain.StockHistoryEntry{
		ID: d.ID, BusinessID: d.BusinessID, ProductID: d.ProductID, Action: domain.StockAction(d.Action),
		Actor: d.Actor, OldValue: d.OldValue, NewValue: d.NewValue, Note: d.Note, Timestamp: d.Timestamp,
	}
	return e, store.CheckRead("history", d.ID, e.Validate())
}

func toSaleDoc(s domain.Sale) saleDoc {
	items := make([]saleItemDoc, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, saleItemDoc{
			ProductID: item.ProductID, ProductName: item.ProductName, SKU: item.SKU, Unit: item.Unit,
			SellPrice: item.SellPrice.String(), CostPrice: item.CostPrice.String(), TaxRate: item.TaxRate.String(),
			Quantity: item.Quantity, Subtotal: item.Subtotal.String(), Tax: item.Tax.String(),
		})
	}
	return saleDoc{
		ID: s.ID, BusinessID: s.BusinessID, ReceiptNumber: s.ReceiptNumber, Items: items,
		Subtotal: s.Subtotal.String(), Tax: s.Tax.String(), Total: s.Total.String(),
		AmountPaid: s.AmountPaid.String(), Change: s.Change.String(), PaymentMethod: string(s.PaymentMethod),
		BranchID: s.BranchID, BranchName: s.BranchName, SoldBy: s.SoldBy, SoldByName: s.SoldByName,
		CustomerName: s.CustomerName, SoldAt: s.SoldAt.UTC(), Date: s.Date,
	}
}

func (d saleDoc) toDomain() (domain.Sale, error) {
	var r moneyReader
	items := make([]domain.SaleItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.SaleItem{
			ProductID: item.ProductID, ProductName: item.ProductName, SKU: item.SKU, Unit: item.Unit,
			SellPrice: r.read("items.sellPrice", item.SellPrice),
			CostPrice: r.read("items.costPrice", item.CostPrice),
			TaxRate:   r.read("items.taxRate", item.TaxRate),
			Quantity:  item.Quantity,
			Subtotal:  r.read("items.subtotal", item.Subtotal),
			Tax:       r.read("items.tax", item.Tax),
		})
	}
	s := domain.Sale{
		ID: d.ID, BusinessID: d.BusinessID, ReceiptNumber: d.ReceiptNumber, Items: items,
		Subtotal:      r.read("subtotal", d.Subtotal),
		Tax:           r.read("tax", d.Tax),
		Total:         r.read("total", d.Total),
		AmountPaid:    r.read("amountPaid", d.AmountPaid),
		Change:        r.read("change", d.Change),
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		BranchID:      d.BranchID, BranchName: d.BranchName, SoldBy: d.SoldBy, SoldByName: d.SoldByName,
		CustomerName: d.CustomerName, SoldAt: d.SoldAt, Date: d.Date,
	}
	if r.err != nil {
		return s, store.CheckRead("sale", d.ID, r.err)
	}
	return s, store.CheckRead("sale", d.ID, s.Validate())
}
