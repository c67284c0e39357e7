package orders

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderengine/internal/models"
)

const (
	defaultNumberAttempts   = 5
	defaultDeliveryLeadTime = 7 * 24 * time.Hour
	defaultCheckoutTimeout  = 10 * time.Second
	sideEffectTimeout       = 10 * time.Second
	defaultListLimit        = 20
)

// Assembler turns a checkout request into a durable order. Validation runs
// before any transaction opens; stock reservation, totals, order number
// allocation and persistence share one transaction; cart clearing and event
// publication run after commit and never affect the result.
type Assembler struct {
	store          Store
	validator      *Validator
	numbers        OrderNumberSource
	fees           FeePolicy
	leadTime       time.Duration
	timeout        time.Duration
	numberAttempts int
	clock          func() time.Time
	newID          func() string
	reconciler     *CartReconciler
	publisher      EventPublisher
	observer       Observer
	tracer         trace.Tracer

	background sync.WaitGroup
}

type Option func(*Assembler)

func WithFeePolicy(fees FeePolicy) Option {
	return func(a *Assembler) { a.fees = fees }
}

func WithDeliveryLeadTime(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.leadTime = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithNumberAttempts(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.numberAttempts = n
		}
	}
}

func WithOrderNumberSource(src OrderNumberSource) Option {
	return func(a *Assembler) { a.numbers = src }
}

func WithClock(clock func() time.Time) Option {
	return func(a *Assembler) { a.clock = clock }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(a *Assembler) { a.publisher = p }
}

func WithObserver(o Observer) Option {
	return func(a *Assembler) {
		if o != nil {
			a.observer = o
		}
	}
}

func NewAssembler(store Store, opts ...Option) *Assembler {
	a := &Assembler{
		store:          store,
		validator:      NewValidator(),
		numbers:        NewOrderNumberGenerator(),
		leadTime:       defaultDeliveryLeadTime,
		timeout:        defaultCheckoutTimeout,
		numberAttempts: defaultNumberAttempts,
		clock:          time.Now,
		newID:          uuid.NewString,
		observer:       noopObserver{},
		tracer:         otel.Tracer("orderengine/internal/orders"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.reconciler = NewCartReconciler(store, a.observer)
	return a
}

// PlaceOrder validates req and creates the order for userID. Any returned
// error guarantees that no stock change and no order row was persisted.
func (a *Assembler) PlaceOrder(ctx context.Context, userID string, req CreateOrderRequest) (*models.Order, error) {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "orders.PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("order.lines", len(req.Items)),
	))
	defer span.End()

	order, err := a.placeOrder(ctx, userID, req)
	if err != nil {
		kind := Kind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		a.observer.OrderFailed(kind, time.Since(start))
		if kind == KindInternal || kind == KindGeneration {
			log.Printf("[ORDER] [ERROR] place order failed user=%s: %v", userID, err)
		} else {
			log.Printf("[ORDER] [WARN] order rejected user=%s kind=%s: %v", userID, kind, err)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("order.number", order.OrderNumber))
	a.observer.OrderPlaced(order, time.Since(start))
	log.Printf("[ORDER] [INFO] order created number=%s user=%s total=%s", order.OrderNumber, userID, order.TotalAmount)

	a.afterCommit(ctx, order)
	return order, nil
}

func (a *Assembler) placeOrder(ctx context.Context, userID string, req CreateOrderRequest) (*models.Order, error) {
	if err := a.validator.Validate(userID, &req); err != nil {
		return nil, err
	}
	lines := mergeLines(req.Items)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	for attempt := 1; attempt <= a.numberAttempts; attempt++ {
		order, err := a.placeOnce(ctx, userID, req, lines)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, ErrDuplicateOrderNumber) {
			return nil, classify("place order", err)
		}
		log.Printf("[ORDER] [WARN] order number collided on insert, retrying attempt=%d", attempt)
	}
	return nil, &GenerationError{Attempts: a.numberAttempts, Err: ErrDuplicateOrderNumber}
}

func (a *Assembler) placeOnce(ctx context.Context, userID string, req CreateOrderRequest, lines []OrderLine) (*models.Order, error) {
	var placed *models.Order

	err := a.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		now := a.clock()
		items := make([]models.OrderItem, 0, len(lines))
		var shortages []StockShortage

		for _, line := range lines {
			product, err := tx.Reserve(ctx, line.ProductID, line.Quantity)
			var stockErr *InsufficientStockError
			if errors.As(err, &stockErr) {
				shortages = append(shortages, stockErr.Items...)
				continue
			}
			if err != nil {
				return err
			}
			items = append(items, models.OrderItem{
				ID:          a.newID(),
				ProductID:   line.ProductID,
				ProductName: product.Name,
				UnitPrice:   product.EffectivePrice(now),
				Quantity:    line.Quantity,
			})
		}
		if len(shortages) > 0 {
			return &InsufficientStockError{Items: shortages}
		}

		totals, err := a.fees.Apply(items)
		if err != nil {
			return err
		}

		number, err := a.allocateNumber(ctx, tx)
		if err != nil {
			return err
		}

		order := &models.Order{
			ID:          a.newID(),
			OrderNumber: number,
			UserID:      userID,
			Customer: models.CustomerSnapshot{
				Name:       req.Name,
				Email:      req.Email,
				Phone:      req.Phone,
				Address:    req.Address,
				PostalCode: req.PostalCode,
				Note:       req.Notes,
			},
			Items:             items,
			Subtotal:          totals.Subtotal,
			ShippingFee:       totals.ShippingFee,
			Tax:               totals.Tax,
			Discount:          totals.Discount,
			TotalAmount:       totals.Total,
			PaymentMethod:     req.PaymentMethod,
			Status:            models.OrderStatusPending,
			PaymentStatus:     models.PaymentStatusPending,
			EstimatedDelivery: now.Add(a.leadTime),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// allocateNumber picks an order number not yet present, checking inside the
// same transaction that performs the insert.
func (a *Assembler) allocateNumber(ctx context.Context, tx Tx) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= a.numberAttempts; attempt++ {
		number, err := a.numbers.Next()
		if err != nil {
			lastErr = err
			continue
		}
		taken, err := tx.OrderNumberTaken(ctx, number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
	}
	return "", &GenerationError{Attempts: a.numberAttempts, Err: lastErr}
}

func (a *Assembler) afterCommit(ctx context.Context, order *models.Order) {
	detached := context.WithoutCancel(ctx)

	a.background.Add(1)
	go func() {
		defer a.background.Done()
		ctx, cancel := context.WithTimeout(detached, sideEffectTimeout)
		defer cancel()
		_ = a.reconciler.Reconcile(ctx, order.UserID)
	}()

	if a.publisher == nil {
		return
	}
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		ctx, cancel := context.WithTimeout(detached, sideEffectTimeout)
		defer cancel()
		if err := a.publisher.PublishOrderCreated(ctx, order); err != nil {
			log.Printf("[ORDER] [ERROR] publish order.created failed number=%s: %v", order.OrderNumber, err)
		}
	}()
}

// Wait blocks until every post-commit side effect started so far finished.
func (a *Assembler) Wait() {
	a.background.Wait()
}

// FindOrder returns the order with the given external number.
func (a *Assembler) FindOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	return a.store.FindOrder(ctx, orderNumber)
}

func (a *Assembler) ListOrders(ctx context.Context, userID string, page, limit int64) ([]models.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultListLimit
	}
	return a.store.ListOrders(ctx, userID, page, limit)
}

// mergeLines folds duplicate product ids into one line and orders lines by
// product id so concurrent transactions acquire row locks in the same order.
func mergeLines(items []OrderLine) []OrderLine {
	index := make(map[string]int, len(items))
	merged := make([]OrderLine, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ProductID < merged[j].ProductID
	})
	return merged
}
