// Package reconcile combines candidates and their verification outcomes
// into the final answer set of a query.
package reconcile

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/nftscan/internal/core/domain"
)

// Predicate decides whether a verified candidate belongs to the result and
// projects its decoded fields into an entity. It must be pure.
type Predicate interface {
	Accept(id *big.Int, fields map[string]any) (domain.ReconciledEntity, bool)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(id *big.Int, fields map[string]any) (domain.ReconciledEntity, bool)

func (f PredicateFunc) Accept(id *big.Int, fields map[string]any) (domain.ReconciledEntity, bool) {
	return f(id, fields)
}

// Reconcile applies p to every successful outcome whose identifier is in
// set. Failed outcomes are dropped without error. The result is sorted by
// identifier ascending and holds each identifier at most once.
func Reconcile(
	set *domain.CandidateSet,
	outcomes []domain.Verification,
	p Predicate,
) []domain.ReconciledEntity {
	out := make([]domain.ReconciledEntity, 0, len(outcomes))
	seen := make(map[string]struct{}, len(outcomes))

	for _, v := range outcomes {
		if v.ID == nil || !v.Outcome.OK {
			continue
		}
		if set != nil && !set.Contains(v.ID) {
			continue
		}
		key := v.ID.String()
		if _, dup := seen[key]; dup {
			continue
		}
		entity, ok := p.Accept(v.ID, v.Outcome.Fields)
		if !ok {
			continue
		}
		seen[key] = struct{}{}
		if entity.ID == nil {
			entity.ID = new(big.Int).Set(v.ID)
		}
		out = append(out, entity)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Cmp(out[j].ID) < 0
	})
	return out
}

// OwnedBy accepts tokens whose decoded owner equals owner, ignoring
// address case.
func OwnedBy(owner string) Predicate {
	want := domain.NormalizeAddress(owner)
	return PredicateFunc(func(id *big.Int, fields map[string]any) (domain.ReconciledEntity, bool) {
		got, ok := addressField(fields, "owner")
		if !ok || got != want {
			return domain.ReconciledEntity{}, false
		}
		return domain.ReconciledEntity{ID: new(big.Int).Set(id), Owner: got}, true
	})
}

// Listed accepts marketplace entries whose isListed flag is set.
func Listed() Predicate {
	return PredicateFunc(func(id *big.Int, fields map[string]any) (domain.ReconciledEntity, bool) {
		listed, _ := fields["isListed"].(bool)
		if !listed {
			return domain.ReconciledEntity{}, false
		}
		seller, _ := addressField(fields, "seller")
		entity := domain.ReconciledEntity{
			ID:     new(big.Int).Set(id),
			Seller: seller,
			Listed: true,
		}
		if price, ok := fields["price"].(*big.Int); ok && price != nil {
			entity.Price = new(big.Int).Set(price)
		}
		return entity, true
	})
}

func addressField(fields map[string]any, name string) (string, bool) {
	switch v := fields[name].(type) {
	case common.Address:
		return domain.NormalizeAddress(v.Hex()), true
	case string:
		if !common.IsHexAddress(v) {
			return "", false
		}
		return domain.NormalizeAddress(v), true
	default:
		return "", false
	}
}
