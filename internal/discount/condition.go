package discount

import (
	"fmt"
	"strconv"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"marketplace-service/internal/entity"
)

// PriceResolver returns the effective unit price for a product, or false if
// the product is unknown.
type PriceResolver func(productID int) (decimal.Decimal, bool)

// Condition is a pure predicate over a store's cart lines. Conditions hold no
// state and are evaluated fresh on every pricing pass.
type Condition interface {
	Holds(cart entity.StoreCart, priceOf PriceResolver) bool
}

// MinQuantityCondition holds when the cart requests at least Min units of the
// given product.
type MinQuantityCondition struct {
	ProductID int
	Min       int
}

func (c MinQuantityCondition) Holds(cart entity.StoreCart, _ PriceResolver) bool {
	return cart[c.ProductID] >= c.Min
}

// MinTotalCondition holds when the store subtotal reaches Min. Lines without
// a resolvable price do not count toward the total.
type MinTotalCondition struct {
	Min decimal.Decimal
}

func (c MinTotalCondition) Holds(cart entity.StoreCart, priceOf PriceResolver) bool {
	total := decimal.Zero
	for productID, qty := range cart {
		price, ok := priceOf(productID)
		if !ok {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(qty))))
	}
	return total.GreaterThanOrEqual(c.Min)
}

// ExpressionCondition evaluates a CEL expression against the cart. The
// expression sees `lines` (product id -> quantity), `quantity` (total units)
// and `total` (store subtotal). Compiled once at creation; an evaluation
// error or a non-boolean result reads as "condition not met".
type ExpressionCondition struct {
	Expression string
	program    cel.Program
}

func NewExpressionCondition(expression string) (*ExpressionCondition, error) {
	env, err := cel.NewEnv(
		cel.Variable("lines", cel.DynType),
		cel.Variable("quantity", cel.DynType),
		cel.Variable("total", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	program, err := env.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	return &ExpressionCondition{Expression: expression, program: program}, nil
}

func (c *ExpressionCondition) Holds(cart entity.StoreCart, priceOf PriceResolver) bool {
	lines := make(map[string]int64, len(cart))
	total := decimal.Zero
	for productID, qty := range cart {
		lines[strconv.Itoa(productID)] = int64(qty)
		if price, ok := priceOf(productID); ok {
			total = total.Add(price.Mul(decimal.NewFromInt(int64(qty))))
		}
	}

	out, _, err := c.program.Eval(map[string]any{
		"lines":    lines,
		"quantity": int64(cart.TotalQuantity()),
		"total":    total.InexactFloat64(),
	})
	if err != nil {
		return false
	}

	holds, ok := out.Value().(bool)
	return ok && holds
}
