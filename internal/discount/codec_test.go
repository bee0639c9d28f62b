package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/entity"
)

func TestCodecKeepsSemanticsAndIDs(t *testing.T) {
	prices := fixedPrices(map[int]string{1: "100", 2: "50"})
	cart := entity.StoreCart{1: 2, 2: 1}

	left, err := NewConditional(ProductsScope(1), MinQuantityCondition{ProductID: 1, Min: 2}, pct(20))
	require.NoError(t, err)
	right, err := NewConditional(StoreScope(), MinTotalCondition{Min: decimal.NewFromInt(100)}, pct(10))
	require.NoError(t, err)
	root, err := NewXor(left, right)
	require.NoError(t, err)

	data, err := Encode(root)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, root.ID, decoded.ID)
	assert.Equal(t, left.ID, decoded.Left.ID)
	assert.Equal(t, right.ID, decoded.Right.ID)
	assert.True(t, decoded.Apply(cart, prices).Equal(root.Apply(cart, prices)))
}

func TestCodecRecompilesExpressions(t *testing.T) {
	prices := fixedPrices(map[int]string{1: "100"})

	cond, err := NewExpressionCondition("total >= 200.0")
	require.NoError(t, err)
	p, err := NewConditional(StoreScope(), cond, pct(50))
	require.NoError(t, err)

	data, err := Encode(p)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.True(t, decoded.Apply(entity.StoreCart{1: 2}, prices).Equal(decimal.NewFromInt(100)))
	assert.True(t, decoded.Apply(entity.StoreCart{1: 1}, prices).IsZero())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"what"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"kind":"and","left":null,"right":null}`))
	assert.Error(t, err)
}
