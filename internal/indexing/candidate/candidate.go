// Package candidate reduces event records to a set of unique identifiers.
package candidate

import (
	"math/big"

	"github.com/vietddude/nftscan/internal/core/domain"
)

// TokenIDField is the identifier argument of ERC-721 and marketplace events.
const TokenIDField = "tokenId"

// Dedupe extracts field from every record and folds the values into a set
// by numeric value. Records without a usable identifier are skipped. The
// set's order is the order of first appearance.
func Dedupe(records []domain.EventRecord, field string) *domain.CandidateSet {
	set := domain.NewCandidateSet()
	for _, r := range records {
		if id, ok := ToBigInt(r.Args[field]); ok {
			set.Add(id)
		}
	}
	return set
}

// ToBigInt converts decoded identifier values to *big.Int.
func ToBigInt(v any) (*big.Int, bool) {
	switch x := v.(type) {
	case *big.Int:
		return x, x != nil
	case big.Int:
		return &x, true
	case uint64:
		return new(big.Int).SetUint64(x), true
	case int64:
		return big.NewInt(x), true
	case int:
		return big.NewInt(int64(x)), true
	case string:
		return new(big.Int).SetString(x, 0)
	default:
		return nil, false
	}
}
