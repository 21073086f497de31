package domain

import (
	"fmt"
	"math/big"
)

// CandidateSet holds unique token identifiers in first-seen order.
// The order is the submission order used by batch verification.
type CandidateSet struct {
	ids  []*big.Int
	seen map[string]struct{}
}

// NewCandidateSet creates an empty set.
func NewCandidateSet() *CandidateSet {
	return &CandidateSet{seen: make(map[string]struct{})}
}

// Add inserts id unless an equal value is already present. Reports whether it was added.
func (s *CandidateSet) Add(id *big.Int) bool {
	if id == nil {
		return false
	}
	k := id.String()
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	s.ids = append(s.ids, new(big.Int).Set(id))
	return true
}

// Contains reports whether an equal identifier is in the set.
func (s *CandidateSet) Contains(id *big.Int) bool {
	if id == nil {
		return false
	}
	_, ok := s.seen[id.String()]
	return ok
}

// Len returns the number of unique identifiers.
func (s *CandidateSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs returns the identifiers in submission order. The slice must not be modified.
func (s *CandidateSet) IDs() []*big.Int {
	if s == nil {
		return nil
	}
	return s.ids
}

// Outcome is the result of one verification sub-call.
type Outcome struct {
	OK     bool
	Fields map[string]any
	Err    error
}

// Verification pairs a candidate identifier with its outcome, so results never
// depend on positional alignment with the candidate set.
type Verification struct {
	ID      *big.Int
	Outcome Outcome
}

// ReconciledEntity is one token confirmed against current contract state.
type ReconciledEntity struct {
	ID     *big.Int `json:"token_id"`
	Owner  string   `json:"owner,omitempty"`
	Seller string   `json:"seller,omitempty"`
	Price  *big.Int `json:"price,omitempty"`
	Listed bool     `json:"listed,omitempty"`
}

// QueryKind identifies the acceptance predicate of a query.
type QueryKind string

const (
	QueryOwned    QueryKind = "owned"
	QueryListings QueryKind = "listings"
)

// QueryKey captures every parameter that affects a query result.
type QueryKey struct {
	Kind     QueryKind
	Chain    ChainID
	Contract string
	Subject  string
}

// NewQueryKey builds a key with normalized addresses.
func NewQueryKey(kind QueryKind, chain ChainID, contract, subject string) QueryKey {
	return QueryKey{
		Kind:     kind,
		Chain:    chain,
		Contract: NormalizeAddress(contract),
		Subject:  NormalizeAddress(subject),
	}
}

func (k QueryKey) String() string {
	if k.Subject == "" {
		return fmt.Sprintf("%s:%s:%s", k.Kind, k.Chain, k.Contract)
	}
	return fmt.Sprintf("%s:%s:%s:%s", k.Kind, k.Chain, k.Contract, k.Subject)
}

// Matches reports whether an invalidation applies to this key.
func (k QueryKey) Matches(inv Invalidation) bool {
	if inv.Kind != "" && inv.Kind != k.Kind {
		return false
	}
	addr := NormalizeAddress(inv.Address)
	if addr == "" {
		return true
	}
	return k.Subject == addr || k.Contract == addr
}
