package orders_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"orderengine/internal/models"
	"orderengine/internal/orders"
	"orderengine/internal/orders/mocks"
	"orderengine/internal/store/memstore"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newStore(products ...models.Product) *memstore.Store {
	store := memstore.New()
	for _, p := range products {
		store.PutProduct(p)
	}
	return store
}

func request(lines ...orders.OrderLine) orders.CreateOrderRequest {
	return orders.CreateOrderRequest{
		Name:       "Ayse Yilmaz",
		Email:      "ayse@example.com",
		Phone:      "+905551112233",
		Address:    "Bagdat Cd. 10, Istanbul",
		PostalCode: "34710",
		Items:      lines,
	}
}

func line(productID string, qty int) orders.OrderLine {
	return orders.OrderLine{ProductID: productID, Quantity: qty}
}

func stockOf(t *testing.T, store *memstore.Store, id string) int {
	t.Helper()
	p, ok := store.Product(id)
	require.True(t, ok, "product %s missing", id)
	return p.Stock
}

func TestPlaceOrderComputesTotalsServerSide(t *testing.T) {
	store := newStore(
		models.Product{ID: "B", Name: "Bread", Price: dec("10.00"), Stock: 10},
		models.Product{ID: "C", Name: "Cheese", Price: dec("25.00"), Stock: 10},
	)
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	a := orders.NewAssembler(store,
		orders.WithFeePolicy(orders.FeePolicy{ShippingFee: dec("5.00")}),
		orders.WithClock(func() time.Time { return now }),
	)
	defer a.Wait()

	order, err := a.PlaceOrder(context.Background(), "u-1", request(line("B", 2), line("C", 1)))
	require.NoError(t, err)

	assert.True(t, order.Subtotal.Equal(dec("45.00")), "subtotal %s", order.Subtotal)
	assert.True(t, order.TotalAmount.Equal(dec("50.00")), "total %s", order.TotalAmount)
	assert.True(t, order.TotalAmount.Equal(order.Subtotal.Add(order.ShippingFee).Add(order.Tax).Sub(order.Discount)))
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, now.Add(7*24*time.Hour), order.EstimatedDelivery)
	assert.Regexp(t, `^ORD-\d{14}-[0-9A-Z]{6}$`, order.OrderNumber)

	sum := decimal.Zero
	for _, item := range order.Items {
		sum = sum.Add(item.LineTotal())
	}
	assert.True(t, sum.Equal(order.Subtotal))

	assert.Equal(t, 8, stockOf(t, store, "B"))
	assert.Equal(t, 9, stockOf(t, store, "C"))
}

func TestPlaceOrderUsesActiveDiscount(t *testing.T) {
	discount := dec("7.50")
	store := newStore(models.Product{ID: "A", Name: "Apples", Price: dec("10.00"), DiscountPrice: &discount, Stock: 3})
	a := orders.NewAssembler(store)
	defer a.Wait()

	order, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 2)))
	require.NoError(t, err)
	assert.True(t, order.Items[0].UnitPrice.Equal(discount))
	assert.True(t, order.Subtotal.Equal(dec("15.00")))
}

func TestConcurrentCheckoutOfLastUnit(t *testing.T) {
	store := newStore(models.Product{ID: "A", Name: "Last one", Price: dec("9.99"), Stock: 1})
	a := orders.NewAssembler(store)
	defer a.Wait()

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = a.PlaceOrder(context.Background(), "u-1", request(line("A", 1)))
		}(i)
	}
	wg.Wait()

	var succeeded int
	var stockErr *orders.InsufficientStockError
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorAs(t, err, &stockErr)
	}
	require.Equal(t, 1, succeeded)
	assert.Equal(t, []orders.StockShortage{{ProductID: "A", Available: 0, Requested: 1}}, stockErr.Items)
	assert.Equal(t, 0, stockOf(t, store, "A"))
	assert.Equal(t, 1, store.OrderCount())
}

func TestNoOversellUnderContention(t *testing.T) {
	const stock = 10
	store := newStore(
		models.Product{ID: "A", Name: "Alpha", Price: dec("1"), Stock: stock},
		models.Product{ID: "B", Name: "Beta", Price: dec("1"), Stock: 1000},
	)
	a := orders.NewAssembler(store)
	defer a.Wait()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := request(line("A", 1), line("B", 1))
			if i%2 == 0 {
				req = request(line("B", 1), line("A", 1))
			}
			order, err := a.PlaceOrder(context.Background(), "u-1", req)
			if err != nil {
				assert.Equal(t, orders.KindInsufficientStock, orders.Kind(err))
				return
			}
			mu.Lock()
			for _, item := range order.Items {
				if item.ProductID == "A" {
					committed += item.Quantity
				}
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, stock, committed)
	assert.Equal(t, 0, stockOf(t, store, "A"))
	assert.Equal(t, 1000-stock, stockOf(t, store, "B"))
}

func TestFailedOrderIsAllOrNothing(t *testing.T) {
	store := newStore(
		models.Product{ID: "A", Name: "Alpha", Price: dec("3"), Stock: 5},
		models.Product{ID: "B", Name: "Beta", Price: dec("4"), Stock: 1},
		models.Product{ID: "C", Name: "Gamma", Price: dec("5"), Stock: 0},
	)
	a := orders.NewAssembler(store)
	defer a.Wait()

	_, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 2), line("B", 3), line("C", 1)))

	var stockErr *orders.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, []orders.StockShortage{
		{ProductID: "B", Available: 1, Requested: 3},
		{ProductID: "C", Available: 0, Requested: 1},
	}, stockErr.Items)

	assert.Equal(t, 5, stockOf(t, store, "A"))
	assert.Equal(t, 1, stockOf(t, store, "B"))
	assert.Equal(t, 0, stockOf(t, store, "C"))
	assert.Equal(t, 0, store.OrderCount())
}

func TestUnknownProductAbortsOrder(t *testing.T) {
	store := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("3"), Stock: 5})
	a := orders.NewAssembler(store)
	defer a.Wait()

	_, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 1), line("99999", 1)))

	var notFound *orders.ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "99999", notFound.ProductID)
	assert.Equal(t, 5, stockOf(t, store, "A"))
	assert.Equal(t, 0, store.OrderCount())
}

func TestDuplicateLinesAreMerged(t *testing.T) {
	store := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("2"), Stock: 3})
	a := orders.NewAssembler(store)
	defer a.Wait()

	_, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 2), line("A", 2)))
	var stockErr *orders.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 4, stockErr.Items[0].Requested)

	order, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 1), line("A", 2)))
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)
}

func TestOversizedQuantitiesAreRejectedBeforeTransaction(t *testing.T) {
	store := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("10"), Stock: 5})
	a := orders.NewAssembler(store)
	defer a.Wait()

	cases := map[string]orders.CreateOrderRequest{
		"wrapping sum": request(line("A", math.MaxInt), line("A", math.MaxInt), line("A", 3)),
		"negative sum": request(line("A", math.MaxInt), line("A", math.MaxInt)),
		"merged bound": request(line("A", orders.MaxLineQuantity), line("A", 1)),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.PlaceOrder(context.Background(), "u-1", req)

			var validationErr *orders.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, orders.KindValidation, orders.Kind(err))
			assert.Equal(t, 400, orders.HTTPStatus(err))
		})
	}
	assert.Equal(t, 5, stockOf(t, store, "A"))
	assert.Equal(t, 0, store.OrderCount())
}

func TestPriceSnapshotSurvivesCatalogChanges(t *testing.T) {
	store := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("10.00"), Stock: 5})
	a := orders.NewAssembler(store)
	defer a.Wait()

	order, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 1)))
	require.NoError(t, err)

	sale := dec("1.00")
	store.PutProduct(models.Product{ID: "A", Name: "Alpha v2", Price: dec("99.00"), DiscountPrice: &sale, Stock: 4})

	stored, err := a.FindOrder(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	assert.True(t, stored.Items[0].UnitPrice.Equal(dec("10.00")))
	assert.Equal(t, "Alpha", stored.Items[0].ProductName)
	assert.True(t, stored.TotalAmount.Equal(dec("10.00")))
}

func TestConcurrentOrdersGetDistinctNumbers(t *testing.T) {
	const n = 100
	store := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("1"), Stock: n})
	a := orders.NewAssembler(store)
	defer a.Wait()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 1)))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers[order.OrderNumber] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, numbers, n)
	assert.Equal(t, n, store.OrderCount())
}

func TestCartClearsOnlyOnSuccess(t *testing.T) {
	store := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("1"), Stock: 1})
	store.AddCartItem("u-1", models.CartItem{ProductID: "unrelated", Quantity: 4})
	store.AddCartItem("u-1", models.CartItem{ProductID: "A", Quantity: 1})
	a := orders.NewAssembler(store)

	_, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 2)))
	require.Error(t, err)
	a.Wait()
	assert.Len(t, store.Cart("u-1"), 2)

	_, err = a.PlaceOrder(context.Background(), "u-1", request(line("A", 1)))
	require.NoError(t, err)
	a.Wait()
	assert.Empty(t, store.Cart("u-1"))
}

func TestValidationRunsBeforeTransaction(t *testing.T) {
	store := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("1"), Stock: 1})
	a := orders.NewAssembler(store)
	defer a.Wait()

	req := request(line("A", 1))
	req.Email = ""
	_, err := a.PlaceOrder(context.Background(), "", req)

	var validationErr *orders.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Fields, 2)
	assert.Equal(t, 1, stockOf(t, store, "A"))
}

func TestTakenNumberIsRegenerated(t *testing.T) {
	ctrl := gomock.NewController(t)
	numbers := mocks.NewMockOrderNumberSource(ctrl)
	store := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("1"), Stock: 5})
	a := orders.NewAssembler(store, orders.WithOrderNumberSource(numbers))
	defer a.Wait()

	gomock.InOrder(
		numbers.EXPECT().Next().Return("ORD-1", nil),
		numbers.EXPECT().Next().Return("ORD-1", nil),
		numbers.EXPECT().Next().Return("ORD-2", nil),
	)

	first, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 1)))
	require.NoError(t, err)
	second, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 1)))
	require.NoError(t, err)

	assert.Equal(t, "ORD-1", first.OrderNumber)
	assert.Equal(t, "ORD-2", second.OrderNumber)
}

func TestGenerationErrorAfterBudget(t *testing.T) {
	ctrl := gomock.NewController(t)
	numbers := mocks.NewMockOrderNumberSource(ctrl)
	store := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("1"), Stock: 5})
	a := orders.NewAssembler(store, orders.WithOrderNumberSource(numbers), orders.WithNumberAttempts(3))
	defer a.Wait()

	numbers.EXPECT().Next().Return("ORD-1", nil)
	_, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 1)))
	require.NoError(t, err)

	numbers.EXPECT().Next().Return("ORD-1", nil).Times(3)
	_, err = a.PlaceOrder(context.Background(), "u-1", request(line("A", 1)))

	var genErr *orders.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 3, genErr.Attempts)
	assert.Equal(t, 4, stockOf(t, store, "A"))
	assert.Equal(t, 1, store.OrderCount())
}

// collidingStore rejects the first inserts as if a concurrent transaction had
// committed the same order number in between the check and the insert.
type collidingStore struct {
	*memstore.Store
	mu         sync.Mutex
	collisions int
}

func (s *collidingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return fn(ctx, &collidingTx{Tx: tx, store: s})
	})
}

type collidingTx struct {
	orders.Tx
	store *collidingStore
}

func (t *collidingTx) InsertOrder(ctx context.Context, order *models.Order) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.collisions > 0 {
		t.store.collisions--
		return orders.ErrDuplicateOrderNumber
	}
	return t.Tx.InsertOrder(ctx, order)
}

func TestInsertCollisionRetriesWholePlacement(t *testing.T) {
	base := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("1"), Stock: 5})
	store := &collidingStore{Store: base, collisions: 2}
	a := orders.NewAssembler(store)
	defer a.Wait()

	order, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 2)))
	require.NoError(t, err)
	assert.NotEmpty(t, order.OrderNumber)
	assert.Equal(t, 3, stockOf(t, base, "A"))
	assert.Equal(t, 1, base.OrderCount())
}

func TestInsertCollisionExhaustsBudget(t *testing.T) {
	base := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("1"), Stock: 5})
	store := &collidingStore{Store: base, collisions: 10}
	a := orders.NewAssembler(store, orders.WithNumberAttempts(2))
	defer a.Wait()

	_, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 2)))
	assert.Equal(t, orders.KindGeneration, orders.Kind(err))
	assert.ErrorIs(t, err, orders.ErrDuplicateOrderNumber)
	assert.Equal(t, 5, stockOf(t, base, "A"))
}

func TestObserverAndPublisherSeeCommittedOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	observer := mocks.NewMockObserver(ctrl)
	publisher := mocks.NewMockEventPublisher(ctrl)
	store := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("1"), Stock: 1})
	a := orders.NewAssembler(store, orders.WithObserver(observer), orders.WithEventPublisher(publisher))

	var placed *models.Order
	observer.EXPECT().OrderPlaced(gomock.Any(), gomock.Any()).Do(func(order *models.Order, _ time.Duration) {
		placed = order
	})
	publisher.EXPECT().PublishOrderCreated(gomock.Any(), gomock.Any()).Return(errors.New("broker unavailable"))
	observer.EXPECT().OrderFailed(orders.KindInsufficientStock, gomock.Any())

	order, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 1)))
	require.NoError(t, err)
	_, err = a.PlaceOrder(context.Background(), "u-1", request(line("A", 1)))
	require.Error(t, err)
	a.Wait()

	assert.Same(t, order, placed)
	assert.Equal(t, 1, store.OrderCount())
}

func TestCancelledContextLeavesNoTrace(t *testing.T) {
	store := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("1"), Stock: 5})
	a := orders.NewAssembler(store)
	defer a.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.PlaceOrder(ctx, "u-1", request(line("A", 1)))
	assert.Equal(t, orders.KindInternal, orders.Kind(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, stockOf(t, store, "A"))
	assert.Equal(t, 0, store.OrderCount())
}

func TestListOrdersNewestFirst(t *testing.T) {
	store := newStore(models.Product{ID: "A", Name: "Alpha", Price: dec("1"), Stock: 5})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := orders.NewAssembler(store, orders.WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	defer a.Wait()

	var placed []string
	for i := 0; i < 3; i++ {
		order, err := a.PlaceOrder(context.Background(), "u-1", request(line("A", 1)))
		require.NoError(t, err)
		placed = append(placed, order.OrderNumber)
	}

	list, total, err := a.ListOrders(context.Background(), "u-1", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, placed[2], list[0].OrderNumber)
	assert.Equal(t, placed[1], list[1].OrderNumber)

	list, _, err = a.ListOrders(context.Background(), "u-1", 0, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, placed[2], list[0].OrderNumber)

	_, err = a.FindOrder(context.Background(), "ORD-NOPE")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}
