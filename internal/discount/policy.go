package discount

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketplace-service/internal/entity"
)

var (
	ErrBadPercentage  = errors.New("discount percentage must be between 0 and 100")
	ErrEmptyScope     = errors.New("products scope requires at least one product")
	ErrNilChild       = errors.New("combinator requires two child policies")
	ErrBadCondition   = errors.New("conditional policy requires a condition")
	ErrPolicyNotFound = errors.New("discount policy not found")
)

type Kind string

const (
	KindSimple      Kind = "simple"
	KindConditional Kind = "conditional"
	KindAnd         Kind = "and"
	KindOr          Kind = "or"
	KindXor         Kind = "xor"
)

type ScopeKind string

const (
	ScopeStore    ScopeKind = "store"
	ScopeProducts ScopeKind = "products"
)

// Scope picks the cart lines a leaf discount is computed against: either a
// fixed product set captured at creation, or every line in the store's cart.
type Scope struct {
	Kind       ScopeKind `json:"kind"`
	ProductIDs []int     `json:"product_ids,omitempty"`
}

func StoreScope() Scope {
	return Scope{Kind: ScopeStore}
}

// ProductsScope captures the product set at creation. Duplicate ids are
// dropped so a product never double-counts in the eligible amount.
func ProductsScope(productIDs ...int) Scope {
	seen := make(map[int]struct{}, len(productIDs))
	ids := make([]int, 0, len(productIDs))
	for _, id := range productIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return Scope{Kind: ScopeProducts, ProductIDs: ids}
}

// Policy is one node of a discount tree. Leaves (simple, conditional) carry a
// scope and a percentage; combinators (and, or, xor) carry two children.
// Nodes are immutable after creation; removal produces new trees.
type Policy struct {
	ID         string
	Kind       Kind
	Scope      Scope
	Percentage decimal.Decimal
	Condition  Condition
	Left       *Policy
	Right      *Policy
}

func validateLeaf(scope Scope, percentage decimal.Decimal) error {
	if percentage.IsNegative() || percentage.GreaterThan(decimal.NewFromInt(100)) {
		return ErrBadPercentage
	}
	if scope.Kind == ScopeProducts && len(scope.ProductIDs) == 0 {
		return ErrEmptyScope
	}
	return nil
}

// NewSimple creates an unconditional percentage discount over the scope.
func NewSimple(scope Scope, percentage decimal.Decimal) (*Policy, error) {
	if err := validateLeaf(scope, percentage); err != nil {
		return nil, err
	}
	return &Policy{
		ID:         uuid.NewString(),
		Kind:       KindSimple,
		Scope:      scope,
		Percentage: percentage,
	}, nil
}

// NewConditional creates a percentage discount that only applies while the
// condition holds for the cart.
func NewConditional(scope Scope, condition Condition, percentage decimal.Decimal) (*Policy, error) {
	if err := validateLeaf(scope, percentage); err != nil {
		return nil, err
	}
	if condition == nil {
		return nil, ErrBadCondition
	}
	return &Policy{
		ID:         uuid.NewString(),
		Kind:       KindConditional,
		Scope:      scope,
		Percentage: percentage,
		Condition:  condition,
	}, nil
}

func newCombinator(kind Kind, left, right *Policy) (*Policy, error) {
	if left == nil || right == nil {
		return nil, ErrNilChild
	}
	return &Policy{
		ID:    uuid.NewString(),
		Kind:  kind,
		Left:  left,
		Right: right,
	}, nil
}

func NewAnd(left, right *Policy) (*Policy, error) {
	return newCombinator(KindAnd, left, right)
}

func NewOr(left, right *Policy) (*Policy, error) {
	return newCombinator(KindOr, left, right)
}

func NewXor(left, right *Policy) (*Policy, error) {
	return newCombinator(KindXor, left, right)
}

// EligibleAmount is the subtotal the percentage is computed against: the
// node's product set intersected with the cart, or the whole store cart.
func (p *Policy) EligibleAmount(cart entity.StoreCart, priceOf PriceResolver) decimal.Decimal {
	amount := decimal.Zero
	switch p.Scope.Kind {
	case ScopeProducts:
		for _, productID := range p.Scope.ProductIDs {
			qty, inCart := cart[productID]
			if !inCart {
				continue
			}
			if price, ok := priceOf(productID); ok {
				amount = amount.Add(price.Mul(decimal.NewFromInt(int64(qty))))
			}
		}
	case ScopeStore:
		for productID, qty := range cart {
			if price, ok := priceOf(productID); ok {
				amount = amount.Add(price.Mul(decimal.NewFromInt(int64(qty))))
			}
		}
	}
	return amount
}

// evaluate returns the node's applicability and the amount it would discount
// when applied. Combinators combine their children's applicability; the
// amount rule per kind:
//
//	and: both legs' amounts summed
//	or:  the applicable legs' amounts summed (both when both apply)
//	xor: the single applicable leg's amount
func (p *Policy) evaluate(cart entity.StoreCart, priceOf PriceResolver) (bool, decimal.Decimal) {
	switch p.Kind {
	case KindSimple:
		return true, p.leafAmount(cart, priceOf)
	case KindConditional:
		return p.Condition.Holds(cart, priceOf), p.leafAmount(cart, priceOf)
	case KindAnd:
		leftOK, leftAmt := p.Left.evaluate(cart, priceOf)
		rightOK, rightAmt := p.Right.evaluate(cart, priceOf)
		return leftOK && rightOK, leftAmt.Add(rightAmt)
	case KindOr:
		leftOK, leftAmt := p.Left.evaluate(cart, priceOf)
		rightOK, rightAmt := p.Right.evaluate(cart, priceOf)
		amount := decimal.Zero
		if leftOK {
			amount = amount.Add(leftAmt)
		}
		if rightOK {
			amount = amount.Add(rightAmt)
		}
		return leftOK || rightOK, amount
	case KindXor:
		leftOK, leftAmt := p.Left.evaluate(cart, priceOf)
		rightOK, rightAmt := p.Right.evaluate(cart, priceOf)
		if leftOK == rightOK {
			return false, decimal.Zero
		}
		if leftOK {
			return true, leftAmt
		}
		return true, rightAmt
	}
	return false, decimal.Zero
}

func (p *Policy) leafAmount(cart entity.StoreCart, priceOf PriceResolver) decimal.Decimal {
	return p.EligibleAmount(cart, priceOf).Mul(p.Percentage).Div(decimal.NewFromInt(100))
}

// IsApplicable reports whether the node would discount the cart at all.
func (p *Policy) IsApplicable(cart entity.StoreCart, priceOf PriceResolver) bool {
	ok, _ := p.evaluate(cart, priceOf)
	return ok
}

// Apply computes the discount amount this tree contributes for the cart.
func (p *Policy) Apply(cart entity.StoreCart, priceOf PriceResolver) decimal.Decimal {
	ok, amount := p.evaluate(cart, priceOf)
	if !ok {
		return decimal.Zero
	}
	return amount
}

// Contains reports whether the tree holds a node with the given id.
func (p *Policy) Contains(id string) bool {
	if p == nil {
		return false
	}
	if p.ID == id {
		return true
	}
	return p.Left.Contains(id) || p.Right.Contains(id)
}

// remove prunes the subtree rooted at id without mutating the receiver.
// Removing a combinator removes both its children with it; removing one leg
// of a combinator collapses the combinator to the surviving leg. Returns the
// replacement root (nil when the whole tree goes) and whether id was found.
func (p *Policy) remove(id string) (*Policy, bool) {
	if p == nil {
		return nil, false
	}
	if p.ID == id {
		return nil, true
	}
	if p.Left == nil && p.Right == nil {
		return p, false
	}

	if newLeft, found := p.Left.remove(id); found {
		if newLeft == nil {
			return p.Right, true
		}
		clone := *p
		clone.Left = newLeft
		return &clone, true
	}
	if newRight, found := p.Right.remove(id); found {
		if newRight == nil {
			return p.Left, true
		}
		clone := *p
		clone.Right = newRight
		return &clone, true
	}
	return p, false
}
