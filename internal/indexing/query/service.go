// Package query composes scanning, deduplication, verification and
// reconciliation into cached queries.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/vietddude/nftscan/internal/core/domain"
	"github.com/vietddude/nftscan/internal/indexing/candidate"
	"github.com/vietddude/nftscan/internal/indexing/metrics"
	"github.com/vietddude/nftscan/internal/indexing/querycache"
	"github.com/vietddude/nftscan/internal/indexing/reconcile"
	"github.com/vietddude/nftscan/internal/indexing/scanner"
	"github.com/vietddude/nftscan/internal/indexing/verify"
	"github.com/vietddude/nftscan/internal/infra/chain/evm"
)

var (
	// ErrInvalidAddress is returned for malformed owner addresses.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNotConfigured is returned when the contract a query needs is unset.
	ErrNotConfigured = errors.New("contract not configured")
)

// Config names the contracts being queried.
type Config struct {
	Chain       domain.ChainID
	NFT         string
	Marketplace string
	// DeployBlock bounds the ownership scan from below. Zero scans the
	// default window only.
	DeployBlock uint64
}

// Service answers ownership and listing queries.
type Service struct {
	cfg      Config
	scanner  *scanner.Scanner
	verifier *verify.Verifier
	cache    *querycache.Cache
	log      *slog.Logger
}

// NewService wires a service.
func NewService(
	cfg Config,
	scanner *scanner.Scanner,
	verifier *verify.Verifier,
	cache *querycache.Cache,
) *Service {
	return &Service{
		cfg:      cfg,
		scanner:  scanner,
		verifier: verifier,
		cache:    cache,
		log:      slog.Default().With("component", "query", "chain", domain.NameOf(cfg.Chain)),
	}
}

// pipeline is one query type: which events seed candidates, how they are
// checked, and what passes.
type pipeline struct {
	events    scanner.EventQuery
	blocks    domain.BlockRange
	field     string
	call      verify.CallSpec
	predicate reconcile.Predicate
}

// OwnedKey returns the cache key of an ownership query.
func (s *Service) OwnedKey(owner string) domain.QueryKey {
	return domain.NewQueryKey(domain.QueryOwned, s.cfg.Chain, s.cfg.NFT, owner)
}

// ListingsKey returns the cache key of the listings query.
func (s *Service) ListingsKey() domain.QueryKey {
	return domain.NewQueryKey(domain.QueryListings, s.cfg.Chain, s.cfg.Marketplace, "")
}

// OwnedTokens returns the tokens of the NFT contract currently owned by owner.
func (s *Service) OwnedTokens(ctx context.Context, owner string) ([]domain.ReconciledEntity, error) {
	if s.cfg.NFT == "" {
		return nil, fmt.Errorf("%w: nft", ErrNotConfigured)
	}
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, owner)
	}

	blocks := domain.Latest()
	if s.cfg.DeployBlock > 0 {
		blocks = domain.Since(s.cfg.DeployBlock)
	}

	p := pipeline{
		events: scanner.EventQuery{
			Contract: s.cfg.NFT,
			Event:    evm.ERC721.Events["Transfer"],
			Filter:   map[string]any{"to": common.HexToAddress(owner)},
		},
		blocks: blocks,
		field:  candidate.TokenIDField,
		call: verify.CallSpec{
			Target: s.cfg.NFT,
			Method: evm.ERC721.Methods["ownerOf"],
			Args:   verify.TokenIDArgs,
		},
		predicate: reconcile.OwnedBy(owner),
	}
	return s.get(ctx, s.OwnedKey(owner), p)
}

// Listings returns the marketplace entries that are currently listed.
func (s *Service) Listings(ctx context.Context) ([]domain.ReconciledEntity, error) {
	if s.cfg.Marketplace == "" {
		return nil, fmt.Errorf("%w: marketplace", ErrNotConfigured)
	}

	p := pipeline{
		events: scanner.EventQuery{
			Contract: s.cfg.Marketplace,
			Event:    evm.Marketplace.Events["Listed"],
		},
		blocks: domain.Latest(),
		field:  candidate.TokenIDField,
		call: verify.CallSpec{
			Target: s.cfg.Marketplace,
			Method: evm.Marketplace.Methods["listings"],
			Args:   verify.TokenIDArgs,
		},
		predicate: reconcile.Listed(),
	}
	return s.get(ctx, s.ListingsKey(), p)
}

// Invalidate marks every cached query affected by inv stale.
func (s *Service) Invalidate(inv domain.Invalidation, source string) int {
	metrics.InvalidationsTotal.WithLabelValues(source).Inc()
	return s.cache.Apply(inv)
}

// State reports the cache state of key.
func (s *Service) State(key domain.QueryKey) querycache.State {
	return s.cache.State(key)
}

func (s *Service) get(ctx context.Context, key domain.QueryKey, p pipeline) ([]domain.ReconciledEntity, error) {
	return s.cache.Get(ctx, key, func(ctx context.Context) ([]domain.ReconciledEntity, error) {
		return s.run(ctx, key, p)
	})
}

// run executes Scan → Dedupe → Verify → Reconcile strictly in sequence.
func (s *Service) run(ctx context.Context, key domain.QueryKey, p pipeline) ([]domain.ReconciledEntity, error) {
	log := s.log.With("run_id", uuid.NewString(), "key", key.String())
	start := time.Now()

	records, err := s.scanner.Scan(ctx, p.events, p.blocks)
	if err != nil {
		return nil, err
	}

	set := candidate.Dedupe(records, p.field)
	metrics.CandidatesTotal.WithLabelValues(string(key.Kind)).Observe(float64(set.Len()))

	outcomes, err := s.verifier.Verify(ctx, set, p.call)
	if err != nil {
		return nil, err
	}

	result := reconcile.Reconcile(set, outcomes, p.predicate)

	log.Info("Query run complete",
		"records", len(records),
		"candidates", set.Len(),
		"entities", len(result),
		"duration", time.Since(start),
	)
	return result, nil
}
