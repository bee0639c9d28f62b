package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"marketplace-service/internal/discount"
)

// PolicyRequest is the wire form of a discount policy tree.
type PolicyRequest struct {
	Kind       string            `json:"kind"` // simple, conditional, and, or, xor
	Scope      *ScopeRequest     `json:"scope,omitempty"`
	Percentage *decimal.Decimal  `json:"percentage,omitempty"`
	Condition  *ConditionRequest `json:"condition,omitempty"`
	Left       *PolicyRequest    `json:"left,omitempty"`
	Right      *PolicyRequest    `json:"right,omitempty"`
}

type ScopeRequest struct {
	Kind       string `json:"kind"` // store, products
	ProductIDs []int  `json:"product_ids,omitempty"`
}

type ConditionRequest struct {
	Type       string           `json:"type"` // min_quantity, min_total, expression
	ProductID  int              `json:"product_id,omitempty"`
	Min        int              `json:"min,omitempty"`
	MinTotal   *decimal.Decimal `json:"min_total,omitempty"`
	Expression string           `json:"expression,omitempty"`
}

// BuildPolicy turns a request tree into a policy tree, validating every node.
func BuildPolicy(req *PolicyRequest) (*discount.Policy, error) {
	if req == nil {
		return nil, fmt.Errorf("policy is required")
	}

	switch req.Kind {
	case "simple":
		scope, err := buildScope(req.Scope)
		if err != nil {
			return nil, err
		}
		if req.Percentage == nil {
			return nil, fmt.Errorf("simple policy requires a percentage")
		}
		return discount.NewSimple(scope, *req.Percentage)
	case "conditional":
		scope, err := buildScope(req.Scope)
		if err != nil {
			return nil, err
		}
		if req.Percentage == nil {
			return nil, fmt.Errorf("conditional policy requires a percentage")
		}
		condition, err := buildCondition(req.Condition)
		if err != nil {
			return nil, err
		}
		return discount.NewConditional(scope, condition, *req.Percentage)
	case "and", "or", "xor":
		left, err := BuildPolicy(req.Left)
		if err != nil {
			return nil, err
		}
		right, err := BuildPolicy(req.Right)
		if err != nil {
			return nil, err
		}
		switch req.Kind {
		case "and":
			return discount.NewAnd(left, right)
		case "or":
			return discount.NewOr(left, right)
		default:
			return discount.NewXor(left, right)
		}
	}
	return nil, fmt.Errorf("unknown policy kind %q", req.Kind)
}

func buildScope(req *ScopeRequest) (discount.Scope, error) {
	if req == nil {
		return discount.Scope{}, fmt.Errorf("leaf policy requires a scope")
	}
	switch req.Kind {
	case "store":
		return discount.StoreScope(), nil
	case "products":
		return discount.ProductsScope(req.ProductIDs...), nil
	}
	return discount.Scope{}, fmt.Errorf("unknown scope kind %q", req.Kind)
}

func buildCondition(req *ConditionRequest) (discount.Condition, error) {
	if req == nil {
		return nil, fmt.Errorf("conditional policy requires a condition")
	}
	switch req.Type {
	case "min_quantity":
		return discount.MinQuantityCondition{ProductID: req.ProductID, Min: req.Min}, nil
	case "min_total":
		if req.MinTotal == nil {
			return nil, fmt.Errorf("min_total condition requires a threshold")
		}
		return discount.MinTotalCondition{Min: *req.MinTotal}, nil
	case "expression":
		return discount.NewExpressionCondition(req.Expression)
	}
	return nil, fmt.Errorf("unknown condition type %q", req.Type)
}
