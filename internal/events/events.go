package events

import (
	"time"

	"orderengine/internal/models"
)

const EventOrderCreated = "order.created"

type Event struct {
	EventID   string         `json:"event_id"`
	Type      string         `json:"type"`
	OrderID   string         `json:"order_id"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload"`
}

type OrderCreatedItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

func orderCreated(eventID string, order *models.Order, now time.Time) Event {
	items := make([]OrderCreatedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderCreatedItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		})
	}
	return Event{
		EventID:   eventID,
		Type:      EventOrderCreated,
		OrderID:   order.ID,
		CreatedAt: now.UTC(),
		Payload: map[string]any{
			"order_number":   order.OrderNumber,
			"user_id":        order.UserID,
			"total_amount":   order.TotalAmount.StringFixed(2),
			"payment_method": order.PaymentMethod,
			"items":          items,
		},
	}
}
