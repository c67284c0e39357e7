package orders

//go:generate mockgen -source=observer.go -destination=mocks/observer_mock.go -package=mocks

import (
	"context"
	"time"

	"orderengine/internal/models"
)

// Observer receives checkout outcomes for metrics.
type Observer interface {
	OrderPlaced(order *models.Order, elapsed time.Duration)
	OrderFailed(kind string, elapsed time.Duration)
	CartClearFailed()
}

type noopObserver struct{}

func (noopObserver) OrderPlaced(*models.Order, time.Duration) {}
func (noopObserver) OrderFailed(string, time.Duration)        {}
func (noopObserver) CartClearFailed()                         {}

// EventPublisher announces committed orders to downstream consumers.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
}
