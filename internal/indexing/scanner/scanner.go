// Package scanner fetches contract events over a bounded block window.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/vietddude/nftscan/internal/core/domain"
	"github.com/vietddude/nftscan/internal/indexing/metrics"
	"github.com/vietddude/nftscan/internal/indexing/throttle"
	"github.com/vietddude/nftscan/internal/infra/chain"
	"github.com/vietddude/nftscan/internal/infra/rpc"
)

// DefaultWindow is the number of blocks scanned when no lower bound is given.
const DefaultWindow uint64 = 50_000

// EventQuery selects one event of one contract, optionally filtered on
// indexed arguments by name.
type EventQuery struct {
	Contract string
	Event    abi.Event
	Filter   map[string]any
}

// Scanner resolves a BlockRange against the chain head and collects every
// matching event in it.
type Scanner struct {
	head   chain.HeadSource
	logs   chain.LogSource
	ranges *throttle.RangeController
	window uint64
	log    *slog.Logger
}

// New creates a scanner. A zero window falls back to DefaultWindow.
func New(
	head chain.HeadSource,
	logs chain.LogSource,
	ranges *throttle.RangeController,
	window uint64,
) *Scanner {
	if window == 0 {
		window = DefaultWindow
	}
	if ranges == nil {
		// The window span is inclusive, so it covers window+1 blocks
		cfg := throttle.DefaultRangeConfig()
		cfg.MaxRange = max(cfg.MaxRange, window+1)
		ranges = throttle.NewRangeController(cfg)
	}
	return &Scanner{
		head:   head,
		logs:   logs,
		ranges: ranges,
		window: window,
		log:    slog.Default().With("component", "scanner"),
	}
}

// Window returns the default look-back in blocks.
func (s *Scanner) Window() uint64 {
	return s.window
}

// Scan returns every event matching q in r. The head is resolved once, at
// the start of the call. On any failure the whole scan fails with a
// *domain.ScanFailure and no records.
func (s *Scanner) Scan(ctx context.Context, q EventQuery, r domain.BlockRange) ([]domain.EventRecord, error) {
	var head uint64
	if r.To == nil {
		h, err := s.head.GetLatestBlock(ctx)
		if err != nil {
			return nil, &domain.ScanFailure{Cause: err}
		}
		head = h
	}

	span, err := r.Resolve(head, s.window)
	if err != nil {
		return nil, &domain.ScanFailure{Cause: err}
	}

	s.log.Debug("Scanning logs",
		"event", q.Event.Name,
		"contract", q.Contract,
		"from", span.From,
		"to", span.To,
	)

	var records []domain.EventRecord
	cursor := span.From
	for {
		end := span.To
		if size := s.ranges.ChunkSize(); span.To-cursor >= size {
			end = cursor + size - 1
		}

		chunk, err := s.fetch(ctx, q, domain.Span{From: cursor, To: end})
		if err != nil {
			return nil, err
		}
		records = append(records, chunk...)

		if end == span.To {
			break
		}
		cursor = end + 1
	}

	s.log.Debug("Scan complete",
		"event", q.Event.Name,
		"from", span.From,
		"to", span.To,
		"records", len(records),
	)
	return records, nil
}

// fetch requests one span, splitting it in half while the provider rejects
// it as too large and the halves stay above the minimum range.
func (s *Scanner) fetch(ctx context.Context, q EventQuery, span domain.Span) ([]domain.EventRecord, error) {
	metrics.ScanRequestsTotal.WithLabelValues(q.Event.Name).Inc()

	start := time.Now()
	records, err := s.logs.GetLogs(ctx, q.Contract, q.Event, q.Filter, span)
	if err == nil {
		s.ranges.RecordSuccess(span.Len(), time.Since(start))
		return records, nil
	}

	if ctx.Err() != nil || !rpc.IsRangeTooLarge(err) || span.Len() < 2*s.ranges.MinRange() {
		return nil, scanFailure(span, err)
	}

	s.ranges.RecordTooLarge(span.Len())
	metrics.ScanBisectionsTotal.WithLabelValues(q.Event.Name).Inc()

	mid := span.From + span.Len()/2 - 1
	s.log.Debug("Range rejected, bisecting",
		"event", q.Event.Name,
		"span", span.String(),
		"error", err,
	)

	left, err := s.fetch(ctx, q, domain.Span{From: span.From, To: mid})
	if err != nil {
		return nil, err
	}
	right, err := s.fetch(ctx, q, domain.Span{From: mid + 1, To: span.To})
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

func scanFailure(span domain.Span, err error) error {
	var sf *domain.ScanFailure
	if errors.As(err, &sf) {
		return err
	}
	return &domain.ScanFailure{Span: span, Cause: err}
}
