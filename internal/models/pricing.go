package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IsOnSale reports whether the discount price applies at the given instant.
// A discount is only honoured when it is positive, below the list price and
// the promotion has not expired.
func (p Product) IsOnSale(now time.Time) bool {
	if p.DiscountPrice == nil {
		return false
	}
	if p.PromoExpiry != nil && !now.Before(*p.PromoExpiry) {
		return false
	}
	return p.DiscountPrice.IsPositive() && p.DiscountPrice.LessThan(p.Price)
}

// EffectivePrice is the unit price actually charged at now.
func (p Product) EffectivePrice(now time.Time) decimal.Decimal {
	if p.IsOnSale(now) {
		return *p.DiscountPrice
	}
	return p.Price
}
