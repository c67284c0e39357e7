package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog view the order engine reads. Catalog metadata is
// owned elsewhere; only Stock is written here.
type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discountPrice,omitempty"`
	PromoExpiry   *time.Time       `json:"promoExpiry,omitempty"`
	Stock         int              `json:"stock"`
}
