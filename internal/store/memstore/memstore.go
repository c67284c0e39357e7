// Package memstore is a process-local order store. Every product carries its
// own lock which a transaction holds from its first Reserve until commit or
// rollback, mirroring row-level locking in a database.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"orderengine/internal/models"
	"orderengine/internal/orders"
)

type productRow struct {
	lock    chan struct{}
	product models.Product
}

type Store struct {
	mu             sync.Mutex
	products       map[string]*productRow
	orders         map[string]models.Order
	pendingNumbers map[string]struct{}
	carts          map[string][]models.CartItem
}

var _ orders.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		products:       make(map[string]*productRow),
		orders:         make(map[string]models.Order),
		pendingNumbers: make(map[string]struct{}),
		carts:          make(map[string][]models.CartItem),
	}
}

// PutProduct inserts or replaces catalog data. Replacing waits for any
// transaction holding the product.
func (s *Store) PutProduct(p models.Product) {
	s.mu.Lock()
	row, ok := s.products[p.ID]
	if !ok {
		s.products[p.ID] = &productRow{lock: make(chan struct{}, 1), product: p}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	row.lock <- struct{}{}
	s.mu.Lock()
	row.product = p
	s.mu.Unlock()
	<-row.lock
}

func (s *Store) Product(id string) (models.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.products[id]
	if !ok {
		return models.Product{}, false
	}
	return row.product, true
}

// LoadProducts seeds the catalog from a JSON array of products.
func (s *Store) LoadProducts(r io.Reader) (int, error) {
	var products []models.Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return 0, fmt.Errorf("decode products: %w", err)
	}
	for _, p := range products {
		if p.ID == "" || p.Stock < 0 {
			return 0, fmt.Errorf("invalid product %q", p.ID)
		}
		s.PutProduct(p)
	}
	return len(products), nil
}

func (s *Store) AddCartItem(userID string, item models.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = append(s.carts[userID], item)
}

func (s *Store) Cart(userID string) []models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CartItem(nil), s.carts[userID]...)
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) (err error) {
	tx := &memTx{
		store:   s,
		held:    make(map[string]*productRow),
		stock:   make(map[string]int),
		numbers: make(map[string]struct{}),
	}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) ClearCart(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := len(s.carts[userID])
	delete(s.carts, userID)
	return removed, nil
}

func (s *Store) FindOrder(_ context.Context, orderNumber string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderNumber]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	order.Items = append([]models.OrderItem(nil), order.Items...)
	return &order, nil
}

func (s *Store) ListOrders(_ context.Context, userID string, page, limit int64) ([]models.Order, int64, error) {
	s.mu.Lock()
	matched := make([]models.Order, 0)
	for _, order := range s.orders {
		if order.UserID == userID {
			order.Items = append([]models.OrderItem(nil), order.Items...)
			matched = append(matched, order)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	total := int64(len(matched))
	start := (page - 1) * limit
	if start >= total {
		return []models.Order{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

type memTx struct {
	store   *Store
	held    map[string]*productRow
	stock   map[string]int
	numbers map[string]struct{}
	orders  []models.Order
}

func (t *memTx) Reserve(ctx context.Context, productID string, quantity int) (models.Product, error) {
	t.store.mu.Lock()
	row, ok := t.store.products[productID]
	t.store.mu.Unlock()
	if !ok {
		return models.Product{}, &orders.ProductNotFoundError{ProductID: productID}
	}

	if _, held := t.held[productID]; !held {
		select {
		case row.lock <- struct{}{}:
			t.held[productID] = row
		case <-ctx.Done():
			return models.Product{}, ctx.Err()
		}
	}

	t.store.mu.Lock()
	product := row.product
	t.store.mu.Unlock()

	available, staged := t.stock[productID]
	if !staged {
		available = product.Stock
	}
	if quantity > available {
		return models.Product{}, &orders.InsufficientStockError{Items: []orders.StockShortage{{
			ProductID: productID,
			Available: available,
			Requested: quantity,
		}}}
	}

	t.stock[productID] = available - quantity
	product.Stock = available - quantity
	return product, nil
}

func (t *memTx) OrderNumberTaken(_ context.Context, number string) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.numberInUse(number), nil
}

func (t *memTx) InsertOrder(_ context.Context, order *models.Order) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.numberInUse(order.OrderNumber) {
		return orders.ErrDuplicateOrderNumber
	}
	t.store.pendingNumbers[order.OrderNumber] = struct{}{}
	t.numbers[order.OrderNumber] = struct{}{}

	stored := *order
	stored.Items = append([]models.OrderItem(nil), order.Items...)
	t.orders = append(t.orders, stored)
	return nil
}

func (s *Store) numberInUse(number string) bool {
	if _, ok := s.orders[number]; ok {
		return true
	}
	_, ok := s.pendingNumbers[number]
	return ok
}

func (t *memTx) commit() {
	t.store.mu.Lock()
	for id, stock := range t.stock {
		t.held[id].product.Stock = stock
	}
	for _, order := range t.orders {
		t.store.orders[order.OrderNumber] = order
	}
	for number := range t.numbers {
		delete(t.store.pendingNumbers, number)
	}
	t.store.mu.Unlock()
	t.release()
}

func (t *memTx) rollback() {
	t.store.mu.Lock()
	for number := range t.numbers {
		delete(t.store.pendingNumbers, number)
	}
	t.store.mu.Unlock()
	t.release()
}

func (t *memTx) release() {
	for id, row := range t.held {
		<-row.lock
		delete(t.held, id)
	}
}
