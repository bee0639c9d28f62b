package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/discount"
	"marketplace-service/internal/entity"
)

func money(v int) decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}

func catalog() map[int]entity.Product {
	return map[int]entity.Product{
		1: {ID: 1, StoreID: 10, Name: "A", Price: money(100), Stock: 5},
		2: {ID: 2, StoreID: 10, Name: "B", Price: money(50), Stock: 5},
	}
}

func TestSubtotalWithoutDiscounts(t *testing.T) {
	amount, err := CalcAmount(catalog(), entity.StoreCart{1: 2, 2: 1}, nil, nil)
	require.NoError(t, err)
	assert.True(t, amount.Equal(money(250)))
}

func TestProductNotFound(t *testing.T) {
	_, err := CalcAmount(catalog(), entity.StoreCart{99: 1}, nil, nil)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestInsufficientStockCheckedBeforePricing(t *testing.T) {
	_, err := CalcAmount(catalog(), entity.StoreCart{1: 6}, nil, nil)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAuctionWinOverridesUnitPrice(t *testing.T) {
	wonPrice := func(productID int) (decimal.Decimal, bool) {
		if productID == 1 {
			return money(80), true
		}
		return decimal.Zero, false
	}

	amount, err := CalcAmount(catalog(), entity.StoreCart{1: 1, 2: 1}, wonPrice, nil)
	require.NoError(t, err)
	assert.True(t, amount.Equal(money(130)))
}

func TestDiscountStackingScenario(t *testing.T) {
	// 20% on A ($100) plus 10% store-wide on A and B ($50):
	// (100 - 20 - 10) + (50 - 5) = 115.00
	set := discount.NewSet()
	productsOff, err := discount.NewSimple(discount.ProductsScope(1), money(20))
	require.NoError(t, err)
	storeOff, err := discount.NewSimple(discount.StoreScope(), money(10))
	require.NoError(t, err)
	set.Add(productsOff)
	set.Add(storeOff)

	amount, err := CalcAmount(catalog(), entity.StoreCart{1: 1, 2: 1}, nil, set)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("115")))
}

func TestFullDiscountClampsAtZero(t *testing.T) {
	set := discount.NewSet()
	all, err := discount.NewSimple(discount.StoreScope(), money(100))
	require.NoError(t, err)
	extra, err := discount.NewSimple(discount.StoreScope(), money(50))
	require.NoError(t, err)
	set.Add(all)
	set.Add(extra)

	// stacked discounts exceed 100%, the charge still bottoms out at zero
	amount, err := CalcAmount(catalog(), entity.StoreCart{1: 1, 2: 1}, nil, set)
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
	assert.False(t, amount.IsNegative())
}

func TestHundredPercentIsExactlyZero(t *testing.T) {
	set := discount.NewSet()
	all, err := discount.NewSimple(discount.StoreScope(), money(100))
	require.NoError(t, err)
	set.Add(all)

	amount, err := CalcAmount(catalog(), entity.StoreCart{1: 2, 2: 3}, nil, set)
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
}

func TestDiscountAppliesToAuctionPrice(t *testing.T) {
	wonPrice := func(productID int) (decimal.Decimal, bool) {
		if productID == 1 {
			return money(80), true
		}
		return decimal.Zero, false
	}

	set := discount.NewSet()
	storeOff, err := discount.NewSimple(discount.StoreScope(), money(10))
	require.NoError(t, err)
	set.Add(storeOff)

	// 10% off the effective price: 80 - 8 = 72
	amount, err := CalcAmount(catalog(), entity.StoreCart{1: 1}, wonPrice, set)
	require.NoError(t, err)
	assert.True(t, amount.Equal(money(72)))
}
