package discount

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// doc is the persisted form of a policy tree. Conditions are stored by type
// tag; expression conditions are recompiled on decode.
type doc struct {
	ID         string           `json:"id"`
	Kind       Kind             `json:"kind"`
	Scope      *Scope           `json:"scope,omitempty"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
	Condition  *conditionDoc    `json:"condition,omitempty"`
	Left       *doc             `json:"left,omitempty"`
	Right      *doc             `json:"right,omitempty"`
}

type conditionDoc struct {
	Type       string           `json:"type"`
	ProductID  int              `json:"product_id,omitempty"`
	Min        int              `json:"min,omitempty"`
	MinTotal   *decimal.Decimal `json:"min_total,omitempty"`
	Expression string           `json:"expression,omitempty"`
}

const (
	condMinQuantity = "min_quantity"
	condMinTotal    = "min_total"
	condExpression  = "expression"
)

// Encode serializes a policy tree for persistence.
func Encode(p *Policy) ([]byte, error) {
	d, err := toDoc(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(d)
}

// Decode rebuilds a policy tree from its persisted form, keeping the node
// ids assigned at creation.
func Decode(data []byte) (*Policy, error) {
	var d doc
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal discount policy: %w", err)
	}
	return fromDoc(&d)
}

func toDoc(p *Policy) (*doc, error) {
	if p == nil {
		return nil, nil
	}

	d := &doc{ID: p.ID, Kind: p.Kind}
	switch p.Kind {
	case KindSimple, KindConditional:
		scope := p.Scope
		pct := p.Percentage
		d.Scope = &scope
		d.Percentage = &pct
		if p.Kind == KindConditional {
			cd, err := conditionToDoc(p.Condition)
			if err != nil {
				return nil, err
			}
			d.Condition = cd
		}
	case KindAnd, KindOr, KindXor:
		var err error
		if d.Left, err = toDoc(p.Left); err != nil {
			return nil, err
		}
		if d.Right, err = toDoc(p.Right); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown policy kind %q", p.Kind)
	}
	return d, nil
}

func conditionToDoc(c Condition) (*conditionDoc, error) {
	switch cond := c.(type) {
	case MinQuantityCondition:
		return &conditionDoc{Type: condMinQuantity, ProductID: cond.ProductID, Min: cond.Min}, nil
	case MinTotalCondition:
		min := cond.Min
		return &conditionDoc{Type: condMinTotal, MinTotal: &min}, nil
	case *ExpressionCondition:
		return &conditionDoc{Type: condExpression, Expression: cond.Expression}, nil
	}
	return nil, fmt.Errorf("unknown condition type %T", c)
}

func fromDoc(d *doc) (*Policy, error) {
	if d == nil {
		return nil, nil
	}

	p := &Policy{ID: d.ID, Kind: d.Kind}
	switch d.Kind {
	case KindSimple, KindConditional:
		if d.Scope == nil || d.Percentage == nil {
			return nil, fmt.Errorf("leaf policy %s is missing scope or percentage", d.ID)
		}
		p.Scope = *d.Scope
		if p.Scope.Kind == ScopeProducts {
			p.Scope = ProductsScope(p.Scope.ProductIDs...)
		}
		p.Percentage = *d.Percentage
		if d.Kind == KindConditional {
			cond, err := conditionFromDoc(d.Condition)
			if err != nil {
				return nil, err
			}
			p.Condition = cond
		}
	case KindAnd, KindOr, KindXor:
		var err error
		if p.Left, err = fromDoc(d.Left); err != nil {
			return nil, err
		}
		if p.Right, err = fromDoc(d.Right); err != nil {
			return nil, err
		}
		if p.Left == nil || p.Right == nil {
			return nil, ErrNilChild
		}
	default:
		return nil, fmt.Errorf("unknown policy kind %q", d.Kind)
	}
	return p, nil
}

func conditionFromDoc(d *conditionDoc) (Condition, error) {
	if d == nil {
		return nil, ErrBadCondition
	}
	switch d.Type {
	case condMinQuantity:
		return MinQuantityCondition{ProductID: d.ProductID, Min: d.Min}, nil
	case condMinTotal:
		if d.MinTotal == nil {
			return nil, fmt.Errorf("min_total condition is missing its threshold")
		}
		return MinTotalCondition{Min: *d.MinTotal}, nil
	case condExpression:
		return NewExpressionCondition(d.Expression)
	}
	return nil, fmt.Errorf("unknown condition type %q", d.Type)
}
