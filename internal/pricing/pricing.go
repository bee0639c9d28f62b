package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"marketplace-service/internal/discount"
	"marketplace-service/internal/entity"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// CalcAmount computes the charge for the part of a cart belonging to one
// store. Stock is validated for every line before any pricing happens, so a
// failing cart never gets a partial price. Auction wins override the unit
// price with the winning bid; policy discounts are then summed against the
// original prices and the result clamped at zero.
func CalcAmount(
	products map[int]entity.Product,
	cart entity.StoreCart,
	wonPrice func(productID int) (decimal.Decimal, bool),
	policies *discount.Set,
) (decimal.Decimal, error) {
	for productID, qty := range cart {
		product, ok := products[productID]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: product %d", ErrProductNotFound, productID)
		}
		if qty > product.Stock {
			return decimal.Zero, fmt.Errorf("%w: product %d has %d, requested %d",
				ErrInsufficientStock, productID, product.Stock, qty)
		}
	}

	priceOf := func(productID int) (decimal.Decimal, bool) {
		if wonPrice != nil {
			if price, ok := wonPrice(productID); ok {
				return price, true
			}
		}
		product, ok := products[productID]
		if !ok {
			return decimal.Zero, false
		}
		return product.Price, true
	}

	subtotal := decimal.Zero
	for productID, qty := range cart {
		price, _ := priceOf(productID)
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(qty))))
	}

	if policies != nil {
		subtotal = subtotal.Sub(policies.Total(cart, priceOf))
	}
	if subtotal.IsNegative() {
		return decimal.Zero, nil
	}
	return subtotal, nil
}
