package orders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"orderengine/internal/models"
)

// Totals holds the authoritative, server computed amounts of an order.
type Totals struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Tax         decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// CalculateTotals sums unitPrice*quantity over items and applies
// total = subtotal + shippingFee + tax - discount.
func CalculateTotals(items []models.OrderItem, shippingFee, tax, discount decimal.Decimal) (Totals, error) {
	for name, amount := range map[string]decimal.Decimal{"shippingFee": shippingFee, "tax": tax, "discount": discount} {
		if amount.IsNegative() {
			return Totals{}, fmt.Errorf("%s: %w", name, ErrNegativeAmount)
		}
	}

	subtotal := decimal.Zero
	for _, item := range items {
		if item.UnitPrice.IsNegative() {
			return Totals{}, fmt.Errorf("unit price of %s: %w", item.ProductID, ErrNegativeAmount)
		}
		if item.Quantity < 0 {
			return Totals{}, fmt.Errorf("quantity of %s: %w", item.ProductID, ErrNegativeAmount)
		}
		subtotal = subtotal.Add(item.LineTotal())
	}

	total := subtotal.Add(shippingFee).Add(tax).Sub(discount)
	if total.IsNegative() {
		return Totals{}, fmt.Errorf("discount exceeds order value: %w", ErrNegativeAmount)
	}

	return Totals{
		Subtotal:    subtotal,
		ShippingFee: shippingFee,
		Tax:         tax,
		Discount:    discount,
		Total:       total,
	}, nil
}

// FeePolicy derives shipping and tax from server configuration.
type FeePolicy struct {
	ShippingFee decimal.Decimal
	TaxRate     decimal.Decimal
}

func (p FeePolicy) Apply(items []models.OrderItem) (Totals, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	tax := subtotal.Mul(p.TaxRate).Round(2)
	return CalculateTotals(items, p.ShippingFee, tax, decimal.Zero)
}
