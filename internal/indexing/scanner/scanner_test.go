package scanner

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/vietddude/nftscan/internal/core/domain"
	"github.com/vietddude/nftscan/internal/indexing/throttle"
	"github.com/vietddude/nftscan/internal/infra/chain/evm"
)

type mockHead struct {
	head  uint64
	err   error
	calls int
}

func (m *mockHead) GetLatestBlock(ctx context.Context) (uint64, error) {
	m.calls++
	return m.head, m.err
}

// mockLogs records requested spans and emits one record per block that is
// listed in events.
type mockLogs struct {
	mu       sync.Mutex
	spans    []domain.Span
	events   []uint64
	maxSpan  uint64
	failWith error
}

func (m *mockLogs) GetLogs(
	ctx context.Context,
	contract string,
	event abi.Event,
	filter map[string]any,
	span domain.Span,
) ([]domain.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.spans = append(m.spans, span)
	if m.failWith != nil {
		return nil, m.failWith
	}
	if m.maxSpan > 0 && span.Len() > m.maxSpan {
		return nil, errors.New("rpc error -32005: query returned more than 10000 results")
	}

	var out []domain.EventRecord
	for _, b := range m.events {
		if b >= span.From && b <= span.To {
			out = append(out, domain.EventRecord{
				Event:       event.Name,
				BlockNumber: b,
				Args:        map[string]any{"tokenId": new(big.Int).SetUint64(b)},
			})
		}
	}
	return out, nil
}

func transferQuery() EventQuery {
	return EventQuery{
		Contract: "0x00000000000000000000000000000000000000aa",
		Event:    evm.ERC721.Events["Transfer"],
	}
}

func rangeConfig(maxRange, minRange uint64) *throttle.RangeController {
	cfg := throttle.DefaultRangeConfig()
	cfg.MaxRange = maxRange
	cfg.MinRange = minRange
	return throttle.NewRangeController(cfg)
}

func TestScan_DefaultWindow(t *testing.T) {
	head := &mockHead{head: 100_000}
	logs := &mockLogs{events: []uint64{49_999, 50_000, 100_000}}
	s := New(head, logs, rangeConfig(100_000, 500), 50_000)

	records, err := s.Scan(context.Background(), transferQuery(), domain.Latest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(logs.spans) != 1 {
		t.Fatalf("expected a single request, got %v", logs.spans)
	}
	if got := logs.spans[0]; got.From != 50_000 || got.To != 100_000 {
		t.Errorf("expected span 50000-100000, got %s", got)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records inside the window, got %d", len(records))
	}
}

func TestScan_DefaultRangesCoverWindowInOneRequest(t *testing.T) {
	head := &mockHead{head: 100_000}
	logs := &mockLogs{}
	s := New(head, logs, nil, 50_000)

	if _, err := s.Scan(context.Background(), transferQuery(), domain.Latest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs.spans) != 1 || logs.spans[0].Len() != 50_001 {
		t.Errorf("expected one 50001-block request, got %v", logs.spans)
	}
}

func TestScan_WindowClampedAtGenesis(t *testing.T) {
	head := &mockHead{head: 1_000}
	logs := &mockLogs{}
	s := New(head, logs, rangeConfig(100_000, 500), 50_000)

	if _, err := s.Scan(context.Background(), transferQuery(), domain.Latest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := logs.spans[0]; got.From != 0 || got.To != 1_000 {
		t.Errorf("expected span 0-1000, got %s", got)
	}
}

func TestScan_ExplicitLowerBound(t *testing.T) {
	head := &mockHead{head: 9_800_000}
	logs := &mockLogs{}
	s := New(head, logs, rangeConfig(100_000, 500), 50_000)

	if _, err := s.Scan(context.Background(), transferQuery(), domain.Since(9_797_112)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := logs.spans[0]; got.From != 9_797_112 || got.To != 9_800_000 {
		t.Errorf("expected span from deploy block, got %s", got)
	}
}

func TestScan_ConcreteRangeSkipsHead(t *testing.T) {
	head := &mockHead{head: 1}
	logs := &mockLogs{}
	s := New(head, logs, nil, 0)

	if _, err := s.Scan(context.Background(), transferQuery(), domain.Between(10, 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if head.calls != 0 {
		t.Errorf("expected no head lookup for a concrete range, got %d", head.calls)
	}
	if s.Window() != DefaultWindow {
		t.Errorf("expected default window, got %d", s.Window())
	}
}

func TestScan_ChunksResolveHeadOnce(t *testing.T) {
	head := &mockHead{head: 10_000}
	logs := &mockLogs{events: []uint64{0, 2_500, 7_499, 10_000}}
	s := New(head, logs, rangeConfig(2_500, 100), 50_000)

	records, err := s.Scan(context.Background(), transferQuery(), domain.Since(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if head.calls != 1 {
		t.Errorf("expected head resolved once, got %d", head.calls)
	}
	assertContiguous(t, logs.spans, 0, 10_000)
	if len(logs.spans) != 5 {
		t.Errorf("expected 5 chunks, got %v", logs.spans)
	}
	if len(records) != 4 {
		t.Errorf("expected 4 records, got %d", len(records))
	}
}

func TestScan_BisectsRangeTooLarge(t *testing.T) {
	head := &mockHead{head: 8_000}
	logs := &mockLogs{maxSpan: 1_000, events: []uint64{1, 4_000, 7_999}}
	ranges := rangeConfig(8_001, 100)
	s := New(head, logs, ranges, 50_000)

	records, err := s.Scan(context.Background(), transferQuery(), domain.Since(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected all 3 records after bisection, got %d", len(records))
	}

	var accepted []domain.Span
	for _, sp := range logs.spans {
		if sp.Len() <= logs.maxSpan {
			accepted = append(accepted, sp)
		}
	}
	assertContiguous(t, accepted, 0, 8_000)

	if ranges.ChunkSize() > 8_001/2 {
		t.Errorf("expected learned chunk size to shrink, got %d", ranges.ChunkSize())
	}
}

func TestScan_RangeTooLargeBelowMinFails(t *testing.T) {
	head := &mockHead{head: 1_000}
	logs := &mockLogs{maxSpan: 10}
	s := New(head, logs, rangeConfig(1_001, 500), 50_000)

	records, err := s.Scan(context.Background(), transferQuery(), domain.Since(0))
	if !domain.IsScanFailure(err) {
		t.Fatalf("expected ScanFailure, got %v", err)
	}
	if records != nil {
		t.Errorf("expected no partial results, got %d", len(records))
	}
}

func TestScan_TransportErrorFails(t *testing.T) {
	cause := errors.New("connection refused")
	head := &mockHead{head: 100_000}
	logs := &mockLogs{failWith: cause}
	s := New(head, logs, nil, 50_000)

	records, err := s.Scan(context.Background(), transferQuery(), domain.Latest())
	var sf *domain.ScanFailure
	if !errors.As(err, &sf) {
		t.Fatalf("expected ScanFailure, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
	if sf.Span.From != 50_000 {
		t.Errorf("expected failing span in error, got %s", sf.Span)
	}
	if records != nil {
		t.Error("expected no records on failure")
	}
	if len(logs.spans) != 1 {
		t.Errorf("expected no bisection for transport errors, got %d requests", len(logs.spans))
	}
}

func TestScan_HeadErrorFails(t *testing.T) {
	head := &mockHead{err: errors.New("timeout")}
	logs := &mockLogs{}
	s := New(head, logs, nil, 50_000)

	_, err := s.Scan(context.Background(), transferQuery(), domain.Latest())
	if !domain.IsScanFailure(err) {
		t.Fatalf("expected ScanFailure, got %v", err)
	}
	if len(logs.spans) != 0 {
		t.Error("expected no log request without a head")
	}
}

func assertContiguous(t *testing.T, spans []domain.Span, from, to uint64) {
	t.Helper()
	if len(spans) == 0 {
		t.Fatal("no spans requested")
	}
	next := from
	for _, sp := range spans {
		if sp.From != next {
			t.Fatalf("gap or overlap at %d: %v", next, spans)
		}
		next = sp.To + 1
	}
	if next != to+1 {
		t.Fatalf("spans end at %d, want %d: %v", next-1, to, spans)
	}
}
