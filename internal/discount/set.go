package discount

import (
	"sync"

	"github.com/shopspring/decimal"

	"marketplace-service/internal/entity"
)

// Set holds the active top-level discount trees for one store. Pricing takes
// a snapshot under a read lock, so a concurrent add or remove is never
// observed mid-evaluation; the trees themselves are immutable.
type Set struct {
	mu       sync.RWMutex
	policies []*Policy
}

func NewSet() *Set {
	return &Set{}
}

func (s *Set) Add(p *Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = append(s.policies, p)
}

// Remove prunes the node with the given id from whichever tree holds it.
// It returns the id of the affected top-level root and the tree that
// replaced it, nil when the whole tree went away, so callers can persist
// the change.
func (s *Set) Remove(id string) (string, *Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.policies {
		replacement, found := p.remove(id)
		if !found {
			continue
		}
		rootID := p.ID
		if replacement == nil {
			s.policies = append(s.policies[:i], s.policies[i+1:]...)
		} else {
			s.policies[i] = replacement
		}
		return rootID, replacement, nil
	}
	return "", nil, ErrPolicyNotFound
}

// Snapshot returns the current top-level policies.
func (s *Set) Snapshot() []*Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Policy, len(s.policies))
	copy(out, s.policies)
	return out
}

// Total sums every top-level policy's discount against the original prices.
// Stacking is cumulative, not compounding: each policy is computed against
// the undiscounted eligible amount.
func (s *Set) Total(cart entity.StoreCart, priceOf PriceResolver) decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Snapshot() {
		total = total.Add(p.Apply(cart, priceOf))
	}
	return total
}
