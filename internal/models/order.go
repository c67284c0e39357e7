package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusReturned   OrderStatus = "RETURNED"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusProcessing, OrderStatusCancelled, OrderStatusReturned},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled, OrderStatusReturned},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusReturned},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned},
}

// CanTransition reports whether an order may move from one status to another.
// Orders are only ever created as PENDING; transitions belong to the admin
// workflow.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CustomerSnapshot captures contact and shipping details at order time.
type CustomerSnapshot struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	PostalCode string `json:"postalCode"`
	Note       string `json:"note,omitempty"`
}

// OrderItem represents a single product entry within an order. Name and
// UnitPrice are snapshots and never follow later catalog edits.
type OrderItem struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order defines the persisted order record.
type Order struct {
	ID                string           `json:"id"`
	OrderNumber       string           `json:"orderNumber"`
	UserID            string           `json:"userId"`
	Customer          CustomerSnapshot `json:"customer"`
	Items             []OrderItem      `json:"items"`
	Subtotal          decimal.Decimal  `json:"subtotal"`
	ShippingFee       decimal.Decimal  `json:"shippingFee"`
	Tax               decimal.Decimal  `json:"tax"`
	Discount          decimal.Decimal  `json:"discount"`
	TotalAmount       decimal.Decimal  `json:"totalAmount"`
	PaymentMethod     string           `json:"paymentMethod"`
	Status            OrderStatus      `json:"status"`
	PaymentStatus     PaymentStatus    `json:"paymentStatus"`
	EstimatedDelivery time.Time        `json:"estimatedDelivery"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// NextStatuses lists the statuses an order may move to from s.
func (s OrderStatus) NextStatuses() []OrderStatus {
	return append([]OrderStatus{}, orderTransitions[s]...)
}
