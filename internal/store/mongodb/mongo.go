package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
)

const (
	collBusinesses = "businesses"
	collBranches   = "branches"
	collUsers      = "users"
	collProducts   = "products"
	collHistory    = "stock_history"
	collSales      = "sales"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger

	// transactions is false on standalone servers, where CommitSale falls
	// back to conditional updates with compensation.
	transactions bool
}

func New(ctx context.Context, uri string, database string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	connectCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &Store{client: client, db: client.Database(database), logger: logger}
	s.transactions = supportsTransactions(connectCtx, s.db)
	if !s.transactions {
		logger.Warn("mongo deployment has no transaction support, sale commits use compensation")
	}
	return s, nil
}

func supportsTransactions(ctx context.Context, db *mongo.Database) bool {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid"
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collProducts: {
			{Keys: bson.D{{Key: "businessId", Value: 1}, {Key: "branchId", Value: 1}, {Key: "sku", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "businessId", Value: 1}, {Key: "barcode", Value: 1}}},
		},
		collHistory: {
			{Keys: bson.D{{Key: "businessId", Value: 1}, {Key: "productId", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		collSales: {
			{Keys: bson.D{{Key: "businessId", Value: 1}, {Key: "soldAt", Value: -1}}},
		},
		collUsers: {
			{Keys: bson.D{{Key: "businessId", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func (s *Store) CreateBusiness(ctx context.Context, business domain.Business, mainBranch domain.Branch, owner domain.UserAccount) error {
	if err := validateUser(owner); err != nil {
		return err
	}
	return s.withTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.coll(collBusinesses).InsertOne(ctx, businessDoc{
			ID: business.ID, Name: business.Name, OwnerID: business.OwnerID, CreatedAt: business.CreatedAt.UTC(),
		}); err != nil {
			return mapWriteErr(err)
		}
		if _, err := s.CreateBranch(ctx, mainBranch); err != nil {
			if !s.transactions {
				_, _ = s.coll(collBusinesses).DeleteOne(context.Background(), bson.M{"_id": business.ID})
			}
			return err
		}
		if err := s.CreateUser(ctx, owner); err != nil {
			if !s.transactions {
				_, _ = s.coll(collBranches).DeleteOne(context.Background(), bson.M{"_id": mainBranch.ID})
				_, _ = s.coll(collBusinesses).DeleteOne(context.Background(), bson.M{"_id": business.ID})
			}
			return err
		}
		return nil
	})
}

func (s *Store) GetBusiness(ctx context.Context, businessID string) (*domain.Business, error) {
	var doc businessDoc
	if err := s.coll(collBusinesses).FindOne(ctx, bson.M{"_id": businessID}).Decode(&doc); err != nil {
		return nil, mapReadErr(err)
	}
	return &domain.Business{ID: doc.ID, Name: doc.Name, OwnerID: doc.OwnerID, CreatedAt: doc.CreatedAt}, nil
}

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	if branch.ID == "" || branch.BusinessID == "" || strings.TrimSpace(branch.Name) == "" {
		return nil, fmt.Errorf("%w: branch id, business and name are required", store.ErrValidation)
	}
	_, err := s.coll(collBranches).InsertOne(ctx, branchDoc{
		ID: branch.ID, BusinessID: branch.BusinessID, Name: branch.Name, Address: branch.Address,
		Active: branch.Active, CreatedAt: branch.CreatedAt.UTC(),
	})
	if err != nil {
		return nil, mapWriteErr(err)
	}
	created := branch
	return &created, nil
}

func (s *Store) ListBranches(ctx context.Context, businessID string) ([]domain.Branch, error) {
	docs, err := findAll[branchDoc](ctx, s, collBranches, bson.M{"businessId": businessID}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	branches := make([]domain.Branch, 0, len(docs))
	for _, d := range docs {
		branches = append(branches, domain.Branch{
			ID: d.ID, BusinessID: d.BusinessID, Name: d.Name, Address: d.Address, Active: d.Active, CreatedAt: d.CreatedAt,
		})
	}
	return branches, nil
}

func validateUser(user domain.UserAccount) error {
	if user.Email == "" || user.ID == "" || user.PasswordHash == "" {
		return store.ErrValidation
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if err := validateUser(user); err != nil {
		return err
	}
	_, err := s.coll(collUsers).InsertOne(ctx, userDoc{
		Email: strings.ToLower(strings.TrimSpace(user.Email)), ID: user.ID, DisplayName: user.DisplayName,
		PasswordHash: user.PasswordHash, Role: user.Role, BusinessID: user.BusinessID, BranchID: user.BranchID,
		Active: user.Active, CreatedAt: user.CreatedAt.UTC(),
	})
	return mapWriteErr(err)
}

func (d userDoc) toDomain() domain.UserAccount {
	return domain.UserAccount{
		ID: d.ID, Email: d.Email, DisplayName: d.DisplayName, PasswordHash: d.PasswordHash, Role: d.Role,
		BusinessID: d.BusinessID, BranchID: d.BranchID, Active: d.Active, CreatedAt: d.CreatedAt,
	}
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var doc userDoc
	if err := s.coll(collUsers).FindOne(ctx, bson.M{"_id": strings.ToLower(strings.TrimSpace(email))}).Decode(&doc); err != nil {
		return nil, mapReadErr(err)
	}
	u := doc.toDomain()
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, businessID string) ([]domain.UserAccount, error) {
	docs, err := findAll[userDoc](ctx, s, collUsers, bson.M{"businessId": businessID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	users := make([]domain.UserAccount, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.toDomain())
	}
	return users, nil
}

func (s *Store) ListProducts(ctx context.Context, businessID string, branchID string) ([]domain.Product, error) {
	filter := bson.M{"businessId": businessID}
	if branchID != "" {
		filter["branchId"] = branchID
	}
	docs, err := findAll[productDoc](ctx, s, collProducts, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *Store) findProduct(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*domain.Product, error) {
	var doc productDoc
	if err := s.coll(collProducts).FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		return nil, mapReadErr(err)
	}
	p, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, businessID string, productID string) (*domain.Product, error) {
	return s.findProduct(ctx, bson.M{"_id": productID, "businessId": businessID})
}

func (s *Store) FindProductByBarcode(ctx context.Context, businessID string, code string) (*domain.Product, error) {
	return s.findProduct(ctx, bson.M{"businessId": businessID, "barcode": code},
		options.FindOne().SetSort(bson.D{{Key: "active", Value: -1}, {Key: "updatedAt", Value: -1}}))
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}
	if _, err := s.coll(collProducts).InsertOne(ctx, toProductDoc(product)); err != nil {
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

	doc := toProductDoc(product)
	res, err := s.coll(collProducts).UpdateOne(ctx,
		bson.M{"_id": product.ID, "businessId": product.BusinessID},
		bson.M{"$set": bson.M{
			"name": doc.Name, "barcode": doc.Barcode, "unit": doc.Unit,
			"sellPrice": doc.SellPrice, "costPrice": doc.CostPrice, "taxRate": doc.TaxRate,
			"minStock": doc.MinStock, "active": doc.Active, "updatedAt": doc.UpdatedAt,
		}},
	)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	if res.MatchedCount == 0 {
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

	filter := bson.M{"_id": adj.ProductID, "businessId": adj.BusinessID}
	err := s.withTransaction(ctx, func(ctx context.Context) error {
		casFilter := bson.M{"_id": adj.ProductID, "businessId": adj.BusinessID, "currentStock": adj.ExpectedStock}
		res, err := s.coll(collProducts).UpdateOne(ctx, casFilter, bson.M{"$set": bson.M{
			"currentStock": adj.NewStock, "updatedAt": adj.Entry.Timestamp.UTC(),
		}})
		if err != nil {
			return mapWriteErr(err)
		}
		if res.MatchedCount == 0 {
			if _, err := s.GetProduct(ctx, adj.BusinessID, adj.ProductID); err != nil {
				return err
			}
			return fmt.Errorf("%w: stock is no longer %d", store.ErrConflict, adj.ExpectedStock)
		}
		if _, err := s.coll(collHistory).InsertOne(ctx, toHistoryDoc(adj.Entry)); err != nil {
			if !s.transactions {
				_, _ = s.coll(collProducts).UpdateOne(context.Background(),
					bson.M{"_id": adj.ProductID, "businessId": adj.BusinessID, "currentStock": adj.NewStock},
					bson.M{"$set": bson.M{"currentStock": adj.ExpectedStock}})
			}
			return mapWriteErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.findProduct(ctx, filter)
}

func (s *Store) ListStockHistory(ctx context.Context, businessID string, productID string, limit int) ([]domain.StockHistoryEntry, error) {
	if limit < 1 {
		limit = 50
	}
	filter := bson.M{"businessId": businessID}
	if productID != "" {
		filter["productId"] = productID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	docs, err := findAll[historyDoc](ctx, s, collHistory, filter, opts)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.StockHistoryEntry, 0, len(docs))
	for _, d := range docs {
		e, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CommitSale decrements stock with guarded $inc updates, then writes the
// sale and its history. Inside a transaction any failure aborts everything;
// without one, completed steps are undone before the error is returned.
func (s *Store) CommitSale(ctx context.Context, commit store.SaleCommit) (*domain.Sale, error) {
	if err := store.ValidateCommit(commit); err != nil {
		return nil, err
	}
	err := s.withTransaction(ctx, func(ctx context.Context) error {
		return s.applySale(ctx, commit)
	})
	if err != nil {
		return nil, err
	}
	sale := commit.Sale
	return &sale, nil
}

func (s *Store) applySale(ctx context.Context, commit store.SaleCommit) error {
	sale := commit.Sale
	required := make(map[string]int, len(commit.StockChanges))
	order := make([]string, 0, len(commit.StockChanges))
	for _, change := range commit.StockChanges {
		if _, seen := required[change.ProductID]; !seen {
			order = append(order, change.ProductID)
		}
		required[change.ProductID] += change.Quantity
	}

	applied := make([]string, 0, len(order))
	before := make(map[string]store.StockLevel, len(order))
	undo := func() {
		if s.transactions {
			return
		}
		bg := context.Background()
		for _, id := range applied {
			if _, err := s.coll(collProducts).UpdateOne(bg,
				bson.M{"_id": id, "businessId": sale.BusinessID},
				bson.M{"$inc": bson.M{"currentStock": required[id]}}); err != nil {
				s.logger.Error("restore stock after failed sale", zap.String("saleId", sale.ID), zap.String("productId", id), zap.Error(err))
			}
		}
	}

	for _, id := range order {
		qty := required[id]
		var prior stockDoc
		err := s.coll(collProducts).FindOneAndUpdate(ctx,
			bson.M{"_id": id, "businessId": sale.BusinessID, "currentStock": bson.M{"$gte": qty}},
			bson.M{
				"$inc": bson.M{"currentStock": -qty},
				"$set": bson.M{"updatedAt": sale.SoldAt.UTC()},
			},
			options.FindOneAndUpdate().SetReturnDocument(options.Before),
		).Decode(&prior)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			undo()
			return mapWriteErr(err)
		}
		if err != nil {
			undo()
			product, err := s.GetProduct(ctx, sale.BusinessID, id)
			if err != nil {
				return fmt.Errorf("%w: product %s", err, id)
			}
			return fmt.Errorf("%w: %s has %d left", store.ErrInsufficientStock, product.Name, product.CurrentStock)
		}
		applied = append(applied, id)
		before[id] = store.StockLevel{Stock: prior.CurrentStock, Unit: prior.Unit}
	}

	if _, err := s.coll(collSales).InsertOne(ctx, toSaleDoc(sale)); err != nil {
		undo()
		return mapWriteErr(err)
	}

	if len(commit.History) > 0 {
		history := store.LabelSoldHistory(commit, before)
		docs := make([]interface{}, 0, len(history))
		for _, entry := range history {
			docs = append(docs, toHistoryDoc(entry))
		}
		if _, err := s.coll(collHistory).InsertMany(ctx, docs); err != nil {
			if !s.transactions {
				ids := make([]string, 0, len(history))
				for _, entry := range history {
					ids = append(ids, entry.ID)
				}
				s.discardSale(context.Background(), sale.ID, ids)
			}
			undo()
			return mapWriteErr(err)
		}
	}
	return nil
}

// discardSale removes a partially written sale and its history. Failures
// are logged since the caller is already returning the original error.
func (s *Store) discardSale(ctx context.Context, saleID string, historyIDs []string) {
	if _, err := s.coll(collSales).DeleteOne(ctx, bson.M{"_id": saleID}); err != nil {
		s.logger.Error("remove sale after failed history write", zap.String("saleId", saleID), zap.Error(err))
	}
	if _, err := s.coll(collHistory).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": historyIDs}}); err != nil {
		s.logger.Error("remove history after failed sale", zap.String("saleId", saleID), zap.Strings("historyIds", historyIDs), zap.Error(err))
	}
}

func (s *Store) ListSales(ctx context.Context, businessID string) ([]domain.Sale, error) {
	docs, err := findAll[saleDoc](ctx, s, collSales, bson.M{"businessId": businessID}, options.Find().SetSort(bson.D{{Key: "soldAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, len(docs))
	for _, d := range docs {
		sale, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, businessID string, saleID string) (*domain.Sale, error) {
	var doc saleDoc
	if err := s.coll(collSales).FindOne(ctx, bson.M{"_id": saleID, "businessId": businessID}).Decode(&doc); err != nil {
		return nil, mapReadErr(err)
	}
	sale, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func findAll[T any](ctx context.Context, s *Store, coll string, filter bson.M, opts *options.FindOptions) ([]T, error) {
	cursor, err := s.coll(coll).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	return decodeAll[T](ctx, cursor, coll)
}

type docCursor interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
}

// decodeAll reports documents that fail to decode as malformed; cursor
// failures are returned as they are.
func decodeAll[T any](ctx context.Context, cursor docCursor, coll string) ([]T, error) {
	var docs []T
	for cursor.Next(ctx) {
		var doc T
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", store.ErrMalformedDocument, coll, err)
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// withTransaction runs fn in a session transaction when the deployment
// supports one, and directly otherwise.
func (s *Store) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions {
		return fn(ctx)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}

func mapReadErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}
