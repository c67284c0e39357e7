package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func ConnectPostgres(databaseURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS products (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	price          NUMERIC(12,2) NOT NULL,
	discount_price NUMERIC(12,2),
	promo_expiry   TIMESTAMPTZ,
	stock          INTEGER NOT NULL CHECK (stock >= 0),
	is_deleted     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS orders (
	id                 UUID PRIMARY KEY,
	order_number       TEXT NOT NULL UNIQUE,
	user_id            TEXT NOT NULL,
	customer_name      TEXT NOT NULL,
	customer_email     TEXT NOT NULL,
	customer_phone     TEXT NOT NULL,
	shipping_address   TEXT NOT NULL,
	postal_code        TEXT NOT NULL,
	note               TEXT NOT NULL DEFAULT '',
	subtotal           NUMERIC(12,2) NOT NULL,
	shipping_fee       NUMERIC(12,2) NOT NULL,
	tax                NUMERIC(12,2) NOT NULL,
	discount           NUMERIC(12,2) NOT NULL,
	total_amount       NUMERIC(12,2) NOT NULL,
	payment_method     TEXT NOT NULL,
	status             TEXT NOT NULL,
	payment_status     TEXT NOT NULL,
	estimated_delivery TIMESTAMPTZ NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL,
	CHECK (total_amount = subtotal + shipping_fee + tax - discount)
);

CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS order_items (
	id           UUID PRIMARY KEY,
	order_id     UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	product_id   TEXT NOT NULL REFERENCES products(id),
	product_name TEXT NOT NULL,
	unit_price   NUMERIC(12,2) NOT NULL,
	quantity     INTEGER NOT NULL CHECK (quantity > 0),
	position     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items (order_id);

CREATE TABLE IF NOT EXISTS cart_items (
	user_id    TEXT NOT NULL,
	product_id TEXT NOT NULL,
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	PRIMARY KEY (user_id, product_id)
);
`

// EnsurePostgresSchema creates the tables the order engine reads and writes.
func EnsurePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
