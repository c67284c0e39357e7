// Package pgstore implements the order store on PostgreSQL. Stock is read
// with SELECT ... FOR UPDATE so concurrent checkouts of the same product
// serialize on the row lock and the second one sees the decremented value.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"orderengine/internal/models"
	"orderengine/internal/orders"
)

const (
	uniqueViolation       = "23505"
	orderNumberConstraint = "orders_order_number_key"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ orders.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ClearCart(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// AddCartItem upserts a cart line. Used by seeding and tests; the cart UI
// collaborator owns cart writes otherwise.
func (s *Store) AddCartItem(ctx context.Context, userID string, item models.CartItem) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		userID, item.ProductID, item.Quantity,
	)
	return err
}

const orderColumns = `id, order_number, user_id, customer_name, customer_email, customer_phone,
	shipping_address, postal_code, note, subtotal, shipping_fee, tax, discount, total_amount,
	payment_method, status, payment_status, estimated_delivery, created_at, updated_at`

func (s *Store) FindOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	byID := map[string]*models.Order{order.ID: &order}
	if err := s.loadItems(ctx, byID); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, userID string, page, limit int64) ([]models.Order, int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := make([]models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	byID := make(map[string]*models.Order, len(result))
	for i := range result {
		byID[result[i].ID] = &result[i]
	}
	if err := s.loadItems(ctx, byID); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (s *Store) loadItems(ctx context.Context, byID map[string]*models.Order) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, order_id::text, product_id, product_name, unit_price, quantity
		FROM order_items WHERE order_id::text = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    models.OrderItem
			orderID string
		)
		if err := rows.Scan(&item.ID, &orderID, &item.ProductID, &item.ProductName, &item.UnitPrice, &item.Quantity); err != nil {
			return err
		}
		if order, ok := byID[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (models.Order, error) {
	var (
		order         models.Order
		id            uuid.UUID
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&id, &order.OrderNumber, &order.UserID,
		&order.Customer.Name, &order.Customer.Email, &order.Customer.Phone,
		&order.Customer.Address, &order.Customer.PostalCode, &order.Customer.Note,
		&order.Subtotal, &order.ShippingFee, &order.Tax, &order.Discount, &order.TotalAmount,
		&order.PaymentMethod, &status, &paymentStatus,
		&order.EstimatedDelivery, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return models.Order{}, err
	}
	order.ID = id.String()
	order.Status = models.OrderStatus(status)
	order.PaymentStatus = models.PaymentStatus(paymentStatus)
	order.Items = []models.OrderItem{}
	return order, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Reserve(ctx context.Context, productID string, quantity int) (models.Product, error) {
	var (
		product  = models.Product{ID: productID}
		discount decimal.NullDecimal
	)
	err := t.tx.QueryRow(ctx, `
		SELECT name, price, discount_price, promo_expiry, stock
		FROM products
		WHERE id = $1 AND NOT is_deleted
		FOR UPDATE`, productID,
	).Scan(&product.Name, &product.Price, &discount, &product.PromoExpiry, &product.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Product{}, &orders.ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return models.Product{}, err
	}
	if discount.Valid {
		product.DiscountPrice = &discount.Decimal
	}

	if quantity > product.Stock {
		return models.Product{}, &orders.InsufficientStockError{Items: []orders.StockShortage{{
			ProductID: productID,
			Available: product.Stock,
			Requested: quantity,
		}}}
	}

	if _, err := t.tx.Exec(ctx, `UPDATE products SET stock = stock - $2 WHERE id = $1`, productID, quantity); err != nil {
		return models.Product{}, err
	}
	product.Stock -= quantity
	return product, nil
}

func (t *pgTx) OrderNumberTaken(ctx context.Context, number string) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, number).Scan(&taken)
	return taken, err
}

func (t *pgTx) InsertOrder(ctx context.Context, order *models.Order) error {
	id, err := uuid.Parse(order.ID)
	if err != nil {
		id = uuid.New()
		order.ID = id.String()
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		id, order.OrderNumber, order.UserID,
		order.Customer.Name, order.Customer.Email, order.Customer.Phone,
		order.Customer.Address, order.Customer.PostalCode, order.Customer.Note,
		order.Subtotal, order.ShippingFee, order.Tax, order.Discount, order.TotalAmount,
		order.PaymentMethod, string(order.Status), string(order.PaymentStatus),
		order.EstimatedDelivery, order.CreatedAt, order.UpdatedAt,
	)
	if isUniqueViolation(err, orderNumberConstraint) {
		return orders.ErrDuplicateOrderNumber
	}
	if err != nil {
		return err
	}

	for i := range order.Items {
		item := &order.Items[i]
		itemID, err := uuid.Parse(item.ID)
		if err != nil {
			itemID = uuid.New()
			item.ID = itemID.String()
		}
		_, err = t.tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			itemID, id, item.ProductID, item.ProductName, item.UnitPrice, item.Quantity, i,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}
