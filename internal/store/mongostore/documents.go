package mongostore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"orderengine/internal/models"
)

type productDocument struct {
	ID            primitive.ObjectID `bson:"_id"`
	Name          string             `bson:"name"`
	Price         float64            `bson:"price"`
	DiscountPrice *float64           `bson:"discountPrice,omitempty"`
	PromoExpiry   *time.Time         `bson:"promoExpiry,omitempty"`
	SaleEnabled   bool               `bson:"saleEnabled"`
	SalePrice     float64            `bson:"salePrice"`
	Stock         int                `bson:"stock"`
}

// normalizeProductDocument tolerates legacy catalog documents: stock stored as
// any BSON number and sale prices kept in saleEnabled/salePrice instead of
// discountPrice.
func normalizeProductDocument(raw bson.M) (models.Product, error) {
	if val, ok := raw["stock"]; ok {
		switch typed := val.(type) {
		case int32:
			raw["stock"] = int(typed)
		case int64:
			raw["stock"] = int(typed)
		case float64:
			raw["stock"] = int(typed)
		case int:
			raw["stock"] = typed
		default:
			raw["stock"] = 0
		}
	} else {
		raw["stock"] = 0
	}

	data, err := bson.Marshal(raw)
	if err != nil {
		return models.Product{}, err
	}

	var doc productDocument
	if err := bson.Unmarshal(data, &doc); err != nil {
		return models.Product{}, err
	}

	product := models.Product{
		ID:          doc.ID.Hex(),
		Name:        doc.Name,
		Price:       decimal.NewFromFloat(doc.Price),
		PromoExpiry: doc.PromoExpiry,
		Stock:       doc.Stock,
	}
	switch {
	case doc.DiscountPrice != nil:
		discount := decimal.NewFromFloat(*doc.DiscountPrice)
		product.DiscountPrice = &discount
	case doc.SaleEnabled && doc.SalePrice > 0:
		discount := decimal.NewFromFloat(doc.SalePrice)
		product.DiscountPrice = &discount
	}
	return product, nil
}

type customerDocument struct {
	Name       string `bson:"name"`
	Email      string `bson:"email"`
	Phone      string `bson:"phone"`
	Address    string `bson:"address"`
	PostalCode string `bson:"postalCode"`
	Note       string `bson:"note,omitempty"`
}

type orderItemDocument struct {
	ID          string               `bson:"id"`
	ProductID   primitive.ObjectID   `bson:"productId"`
	ProductName string               `bson:"productName"`
	UnitPrice   primitive.Decimal128 `bson:"unitPrice"`
	Quantity    int                  `bson:"quantity"`
}

type orderDocument struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty"`
	OrderNumber       string               `bson:"orderNumber"`
	UserID            interface{}          `bson:"userId"`
	Customer          customerDocument     `bson:"customer"`
	Items             []orderItemDocument  `bson:"items"`
	Subtotal          primitive.Decimal128 `bson:"subtotal"`
	ShippingFee       primitive.Decimal128 `bson:"shippingFee"`
	Tax               primitive.Decimal128 `bson:"tax"`
	Discount          primitive.Decimal128 `bson:"discount"`
	TotalAmount       primitive.Decimal128 `bson:"totalAmount"`
	PaymentMethod     string               `bson:"paymentMethod"`
	Status            string               `bson:"status"`
	PaymentStatus     string               `bson:"paymentStatus"`
	EstimatedDelivery time.Time            `bson:"estimatedDelivery"`
	CreatedAt         time.Time            `bson:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt"`
}

// userKey keeps ObjectID user references for ids issued by the auth service
// and falls back to plain strings for anything else.
func userKey(userID string) interface{} {
	if id, err := primitive.ObjectIDFromHex(userID); err == nil {
		return id
	}
	return userID
}

func userString(v interface{}) string {
	switch typed := v.(type) {
	case primitive.ObjectID:
		return typed.Hex()
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}

func newOrderDocument(order *models.Order) (orderDocument, error) {
	doc := orderDocument{
		OrderNumber: order.OrderNumber,
		UserID:      userKey(order.UserID),
		Customer: customerDocument{
			Name:       order.Customer.Name,
			Email:      order.Customer.Email,
			Phone:      order.Customer.Phone,
			Address:    order.Customer.Address,
			PostalCode: order.Customer.PostalCode,
			Note:       order.Customer.Note,
		},
		Items:             make([]orderItemDocument, 0, len(order.Items)),
		PaymentMethod:     order.PaymentMethod,
		Status:            string(order.Status),
		PaymentStatus:     string(order.PaymentStatus),
		EstimatedDelivery: order.EstimatedDelivery,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}

	for _, item := range order.Items {
		productID, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return orderDocument{}, fmt.Errorf("item product id %q: %w", item.ProductID, err)
		}
		unitPrice, err := toDecimal128(item.UnitPrice)
		if err != nil {
			return orderDocument{}, err
		}
		doc.Items = append(doc.Items, orderItemDocument{
			ID:          item.ID,
			ProductID:   productID,
			ProductName: item.ProductName,
			UnitPrice:   unitPrice,
			Quantity:    item.Quantity,
		})
	}

	amounts := []struct {
		dst *primitive.Decimal128
		src decimal.Decimal
	}{
		{&doc.Subtotal, order.Subtotal},
		{&doc.ShippingFee, order.ShippingFee},
		{&doc.Tax, order.Tax},
		{&doc.Discount, order.Discount},
		{&doc.TotalAmount, order.TotalAmount},
	}
	for _, amount := range amounts {
		converted, err := toDecimal128(amount.src)
		if err != nil {
			return orderDocument{}, err
		}
		*amount.dst = converted
	}
	return doc, nil
}

func (d orderDocument) toModel() (models.Order, error) {
	order := models.Order{
		ID:          d.ID.Hex(),
		OrderNumber: d.OrderNumber,
		UserID:      userString(d.UserID),
		Customer: models.CustomerSnapshot{
			Name:       d.Customer.Name,
			Email:      d.Customer.Email,
			Phone:      d.Customer.Phone,
			Address:    d.Customer.Address,
			PostalCode: d.Customer.PostalCode,
			Note:       d.Customer.Note,
		},
		Items:             make([]models.OrderItem, 0, len(d.Items)),
		PaymentMethod:     d.PaymentMethod,
		Status:            models.OrderStatus(d.Status),
		PaymentStatus:     models.PaymentStatus(d.PaymentStatus),
		EstimatedDelivery: d.EstimatedDelivery,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}

	for _, item := range d.Items {
		unitPrice, err := fromDecimal128(item.UnitPrice)
		if err != nil {
			return models.Order{}, err
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:          item.ID,
			ProductID:   item.ProductID.Hex(),
			ProductName: item.ProductName,
			UnitPrice:   unitPrice,
			Quantity:    item.Quantity,
		})
	}

	amounts := []struct {
		dst *decimal.Decimal
		src primitive.Decimal128
	}{
		{&order.Subtotal, d.Subtotal},
		{&order.ShippingFee, d.ShippingFee},
		{&order.Tax, d.Tax},
		{&order.Discount, d.Discount},
		{&order.TotalAmount, d.TotalAmount},
	}
	for _, amount := range amounts {
		converted, err := fromDecimal128(amount.src)
		if err != nil {
			return models.Order{}, err
		}
		*amount.dst = converted
	}
	return order, nil
}
