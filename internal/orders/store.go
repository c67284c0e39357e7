package orders

//go:generate mockgen -source=store.go -destination=mocks/store_mock.go -package=mocks

import (
	"context"

	"orderengine/internal/models"
)

// StockLedger is the only writer of product stock during order placement.
//
// Reserve must re-read the product under a write-intent lock held until the
// enclosing transaction ends, so two transactions touching the same product
// never both observe pre-decrement stock. When quantity exceeds stock it
// returns *InsufficientStockError and leaves stock untouched; an unknown id
// yields *ProductNotFoundError. On success it returns the product as read,
// with Stock already decremented.
type StockLedger interface {
	Reserve(ctx context.Context, productID string, quantity int) (models.Product, error)
}

// Tx is the view of one atomic transaction.
type Tx interface {
	StockLedger
	OrderNumberTaken(ctx context.Context, number string) (bool, error)
	// InsertOrder persists the header and all items. A clash on the order
	// number unique constraint maps to ErrDuplicateOrderNumber.
	InsertOrder(ctx context.Context, order *models.Order) error
}

type CartStore interface {
	// ClearCart removes every item from the user's cart and reports how many
	// were removed. Clearing an empty or missing cart is not an error.
	ClearCart(ctx context.Context, userID string) (int, error)
}

type OrderReader interface {
	FindOrder(ctx context.Context, orderNumber string) (*models.Order, error)
	ListOrders(ctx context.Context, userID string, page, limit int64) ([]models.Order, int64, error)
}

// Store is the storage backend behind the engine. WithinTx commits when fn
// returns nil and rolls back otherwise, including on ctx cancellation. fn may
// be invoked more than once when the backend retries transient conflicts.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	CartStore
	OrderReader
	Ping(ctx context.Context) error
}
