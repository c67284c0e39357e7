// Package mongostore implements the order store on MongoDB multi-document
// transactions.
//
// Stock reservation is a conditional $inc guarded by stock >= quantity. The
// write takes the document lock for the rest of the transaction; a concurrent
// transaction writing the same product hits a write conflict, which the
// driver's WithTransaction retries by re-running the whole callback against
// the now committed stock.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"orderengine/internal/models"
	"orderengine/internal/orders"
)

const (
	productsCollection = "products"
	ordersCollection   = "orders"
	cartsCollection    = "carts"
)

type Store struct {
	db *mongo.Database
}

var _ orders.Store = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return s.db.Client().Ping(checkCtx, readpref.Primary())
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(context.Background())

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx, &mongoTx{db: s.db})
	}, txOpts)
	return err
}

func (s *Store) ClearCart(ctx context.Context, userID string) (int, error) {
	var before struct {
		Items []bson.Raw `bson:"items"`
	}
	err := s.db.Collection(cartsCollection).FindOneAndUpdate(
		ctx,
		bson.M{"userId": userKey(userID)},
		bson.M{"$set": bson.M{"items": bson.A{}, "updatedAt": time.Now()}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.Before).
			SetProjection(bson.M{"items": 1}),
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(before.Items), nil
}

func (s *Store) FindOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	var doc orderDocument
	err := s.db.Collection(ordersCollection).FindOne(ctx, bson.M{"orderNumber": orderNumber}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	order, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, userID string, page, limit int64) ([]models.Order, int64, error) {
	filter := bson.M{"userId": userKey(userID)}

	total, err := s.db.Collection(ordersCollection).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	findOptions := options.Find().
		SetSkip((page - 1) * limit).
		SetLimit(limit).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := s.db.Collection(ordersCollection).Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}

	result := make([]models.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := doc.toModel()
		if err != nil {
			return nil, 0, err
		}
		result = append(result, order)
	}
	return result, total, nil
}

type mongoTx struct {
	db *mongo.Database
}

func (t *mongoTx) Reserve(ctx context.Context, productID string, quantity int) (models.Product, error) {
	id, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return models.Product{}, &orders.ProductNotFoundError{ProductID: productID}
	}

	filter := bson.M{
		"_id":       id,
		"isDeleted": bson.M{"$ne": true},
		"stock":     bson.M{"$gte": quantity},
	}
	update := bson.M{"$inc": bson.M{"stock": -quantity}}

	var raw bson.M
	err = t.db.Collection(productsCollection).FindOneAndUpdate(
		ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&raw)
	if err == nil {
		return normalizeProductDocument(raw)
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, err
	}

	// Nothing matched: either the product is gone or stock is short.
	var current bson.M
	err = t.db.Collection(productsCollection).FindOne(ctx, bson.M{
		"_id":       id,
		"isDeleted": bson.M{"$ne": true},
	}).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, &orders.ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return models.Product{}, err
	}

	product, err := normalizeProductDocument(current)
	if err != nil {
		return models.Product{}, err
	}
	return models.Product{}, &orders.InsufficientStockError{Items: []orders.StockShortage{{
		ProductID: productID,
		Available: product.Stock,
		Requested: quantity,
	}}}
}

func (t *mongoTx) OrderNumberTaken(ctx context.Context, number string) (bool, error) {
	count, err := t.db.Collection(ordersCollection).CountDocuments(
		ctx,
		bson.M{"orderNumber": number},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (t *mongoTx) InsertOrder(ctx context.Context, order *models.Order) error {
	doc, err := newOrderDocument(order)
	if err != nil {
		return err
	}

	res, err := t.db.Collection(ordersCollection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return orders.ErrDuplicateOrderNumber
	}
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		order.ID = id.Hex()
	}
	return nil
}
