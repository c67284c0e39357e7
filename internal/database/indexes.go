package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates every index the mongo store relies on. Without the
// orderNumber index duplicate order numbers could commit, so that failure is
// returned; the cart index is best effort.
func EnsureIndexes(db *mongo.Database) error {
	return ensureIndexes(
		func() error { return EnsureOrderIndexes(db) },
		func() error { return EnsureCartIndexes(db) },
	)
}

func ensureIndexes(orderIndexes, cartIndexes func() error) error {
	if err := orderIndexes(); err != nil {
		return fmt.Errorf("order indexes: %w", err)
	}
	if err := cartIndexes(); err != nil {
		log.Printf("cart index warning: %v", err)
	}
	return nil
}

// EnsureOrderIndexes creates the orderNumber unique index, the final
// backstop against order number collisions.
func EnsureOrderIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection("orders").Indexes()

	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "orderNumber", Value: 1}},
			Options: options.Index().
				SetName("orderNumber_unique").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("userId_createdAt_index"),
		},
	}

	log.Println("EnsureOrderIndexes: creating orderNumber_unique, userId_createdAt_index indexes")
	_, err := indexes.CreateMany(ctx, models)
	if err != nil {
		log.Println("EnsureOrderIndexes: index error:", err)
		return err
	}
	log.Println("EnsureOrderIndexes: order indexes created")
	return nil
}

func EnsureCartIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection("carts").Indexes()

	userIDIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().
			SetName("userId_unique").
			SetUnique(true),
	}

	log.Println("EnsureCartIndexes: creating userId_unique index")
	_, err := indexes.CreateOne(ctx, userIDIndex)
	if err != nil {
		log.Println("EnsureCartIndexes: userId index error:", err)
		return err
	}
	log.Println("EnsureCartIndexes: userId_unique index created")
	return nil
}
