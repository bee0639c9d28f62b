package service

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/discount"
	"marketplace-service/internal/entity"
)

func TestBuildPolicyFromJSON(t *testing.T) {
	payload := `{
		"kind": "xor",
		"left": {
			"kind": "conditional",
			"scope": {"kind": "products", "product_ids": [1]},
			"percentage": 20,
			"condition": {"type": "min_quantity", "product_id": 1, "min": 2}
		},
		"right": {
			"kind": "conditional",
			"scope": {"kind": "store"},
			"percentage": 10,
			"condition": {"type": "min_total", "min_total": 500}
		}
	}`

	var req PolicyRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))

	policy, err := BuildPolicy(&req)
	require.NoError(t, err)
	assert.Equal(t, discount.KindXor, policy.Kind)
	assert.Equal(t, discount.KindConditional, policy.Left.Kind)
	assert.Equal(t, discount.ScopeProducts, policy.Left.Scope.Kind)
	assert.NotEmpty(t, policy.ID)

	prices := func(productID int) (decimal.Decimal, bool) {
		return decimal.NewFromInt(100), true
	}
	// two units of product 1 trips only the left condition: 20% of 200
	amount := policy.Apply(entity.StoreCart{1: 2}, prices)
	assert.True(t, amount.Equal(decimal.NewFromInt(40)))
}

func TestBuildPolicyExpressionCondition(t *testing.T) {
	req := &PolicyRequest{
		Kind:       "conditional",
		Scope:      &ScopeRequest{Kind: "store"},
		Percentage: decimalPtr(15),
		Condition:  &ConditionRequest{Type: "expression", Expression: "quantity >= 3"},
	}

	policy, err := BuildPolicy(req)
	require.NoError(t, err)

	prices := func(productID int) (decimal.Decimal, bool) {
		return decimal.NewFromInt(10), true
	}
	assert.True(t, policy.Apply(entity.StoreCart{1: 3}, prices).Equal(decimal.RequireFromString("4.5")))
	assert.True(t, policy.Apply(entity.StoreCart{1: 2}, prices).IsZero())
}

func TestBuildPolicyValidation(t *testing.T) {
	cases := []struct {
		name string
		req  *PolicyRequest
	}{
		{"nil", nil},
		{"unknown kind", &PolicyRequest{Kind: "half-off"}},
		{"simple without scope", &PolicyRequest{Kind: "simple", Percentage: decimalPtr(10)}},
		{"simple without percentage", &PolicyRequest{Kind: "simple", Scope: &ScopeRequest{Kind: "store"}}},
		{"bad percentage", &PolicyRequest{Kind: "simple", Scope: &ScopeRequest{Kind: "store"}, Percentage: decimalPtr(120)}},
		{"empty products scope", &PolicyRequest{Kind: "simple", Scope: &ScopeRequest{Kind: "products"}, Percentage: decimalPtr(10)}},
		{"conditional without condition", &PolicyRequest{Kind: "conditional", Scope: &ScopeRequest{Kind: "store"}, Percentage: decimalPtr(10)}},
		{"combinator missing leg", &PolicyRequest{Kind: "and", Left: &PolicyRequest{Kind: "simple", Scope: &ScopeRequest{Kind: "store"}, Percentage: decimalPtr(10)}}},
		{"bad expression", &PolicyRequest{Kind: "conditional", Scope: &ScopeRequest{Kind: "store"}, Percentage: decimalPtr(10), Condition: &ConditionRequest{Type: "expression", Expression: "total >"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildPolicy(tc.req)
			assert.Error(t, err)
		})
	}
}

func decimalPtr(v int) *decimal.Decimal {
	d := decimal.NewFromInt(int64(v))
	return &d
}
