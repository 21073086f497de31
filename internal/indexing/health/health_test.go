package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/nftscan/internal/infra/chain"
	"github.com/vietddude/nftscan/internal/infra/rpc"
)

// =============================================================================
// Mocks
// =============================================================================

type stubProviders struct {
	health map[string]rpc.HealthStatus
}

func (s *stubProviders) GetProviderHealth() map[string]rpc.HealthStatus {
	return s.health
}

type mockHead struct {
	height uint64
	err    error
	calls  int
}

func (m *mockHead) GetLatestBlock(ctx context.Context) (uint64, error) {
	m.calls++
	return m.height, m.err
}

type stubSizer int

func (s stubSizer) Len() int { return int(s) }

func healthy() rpc.HealthStatus {
	return rpc.HealthStatus{Available: true, Status: "healthy", Latency: 20 * time.Millisecond}
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	monitor := NewMonitor("1",
		&stubProviders{health: map[string]rpc.HealthStatus{"primary": healthy()}},
		&mockHead{height: 1000},
		stubSizer(3),
	)

	report := monitor.CheckHealth(context.Background())

	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
	if report.LatestBlock != 1000 {
		t.Errorf("expected latest block 1000, got %d", report.LatestBlock)
	}
	if report.CacheEntries != 3 {
		t.Errorf("expected 3 cache entries, got %d", report.CacheEntries)
	}
	if report.Providers["primary"].LatencyMS != 20 {
		t.Errorf("expected 20ms latency, got %d", report.Providers["primary"].LatencyMS)
	}
}

func TestMonitor_Degraded(t *testing.T) {
	throttled := healthy()
	throttled.Status = "throttled"

	monitor := NewMonitor("1",
		&stubProviders{health: map[string]rpc.HealthStatus{
			"primary": throttled,
			"backup":  healthy(),
		}},
		&mockHead{height: 1000},
		nil,
	)

	report := monitor.CheckHealth(context.Background())

	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
	if report.Providers["primary"].Status != StatusCritical {
		t.Errorf("expected throttled provider critical, got %s", report.Providers["primary"].Status)
	}
}

func TestMonitor_Critical(t *testing.T) {
	tests := []struct {
		name      string
		providers map[string]rpc.HealthStatus
		head      *mockHead
	}{
		{
			name:      "no usable provider",
			providers: map[string]rpc.HealthStatus{"primary": {Available: false, Status: "healthy"}},
			head:      &mockHead{height: 1000},
		},
		{
			name:      "head unavailable",
			providers: map[string]rpc.HealthStatus{"primary": healthy()},
			head:      &mockHead{err: errors.New("connection refused")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewMonitor("1", &stubProviders{health: tt.providers}, tt.head, nil).
				CheckHealth(context.Background())
			if report.SystemStatus != StatusCritical {
				t.Errorf("expected critical, got %s", report.SystemStatus)
			}
		})
	}
}

func TestMonitor_ReusesRecentReport(t *testing.T) {
	head := &mockHead{height: 1000}
	monitor := NewMonitor("1",
		&stubProviders{health: map[string]rpc.HealthStatus{"primary": healthy()}},
		head,
		nil,
	)
	now := time.Unix(1_700_000_000, 0)
	monitor.nowFn = func() time.Time { return now }

	monitor.CheckHealth(context.Background())
	monitor.CheckHealth(context.Background())
	if head.calls != 1 {
		t.Errorf("expected 1 head lookup within interval, got %d", head.calls)
	}

	now = now.Add(checkInterval)
	monitor.CheckHealth(context.Background())
	if head.calls != 2 {
		t.Errorf("expected a fresh head lookup after interval, got %d", head.calls)
	}
}

func TestMonitor_CircuitOpenIsCritical(t *testing.T) {
	tripped := healthy()
	tripped.CircuitOpen = true

	report := NewMonitor("1",
		&stubProviders{health: map[string]rpc.HealthStatus{
			"primary": tripped,
			"backup":  healthy(),
		}},
		&mockHead{height: 1000},
		nil,
	).CheckHealth(context.Background())

	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
	primary := report.Providers["primary"]
	if primary.Status != StatusCritical || !primary.Circuit {
		t.Errorf("expected primary critical with open circuit, got %+v", primary)
	}
}

// blockingHead parks GetLatestBlock until release is closed.
type blockingHead struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingHead) GetLatestBlock(ctx context.Context) (uint64, error) {
	close(b.entered)
	<-b.release
	return 2000, nil
}

type switchHead struct {
	next chain.HeadSource
}

func (s *switchHead) GetLatestBlock(ctx context.Context) (uint64, error) {
	return s.next.GetLatestBlock(ctx)
}

func TestMonitor_SlowHeadDoesNotBlockReaders(t *testing.T) {
	head := &switchHead{next: &mockHead{height: 1000}}
	monitor := NewMonitor("1",
		&stubProviders{health: map[string]rpc.HealthStatus{"primary": healthy()}},
		head,
		nil,
	)
	now := time.Unix(1_700_000_000, 0)
	monitor.nowFn = func() time.Time { return now }
	monitor.CheckHealth(context.Background())

	slow := &blockingHead{entered: make(chan struct{}), release: make(chan struct{})}
	head.next = slow
	now = now.Add(checkInterval)

	refreshed := make(chan Report, 1)
	go func() {
		refreshed <- monitor.CheckHealth(context.Background())
	}()
	<-slow.entered

	done := make(chan Report, 1)
	go func() {
		done <- monitor.CheckHealth(context.Background())
	}()

	select {
	case report := <-done:
		if report.LatestBlock != 1000 {
			t.Errorf("expected previous report during refresh, got block %d", report.LatestBlock)
		}
	case <-time.After(time.Second):
		t.Fatal("CheckHealth blocked behind an in-flight head lookup")
	}

	close(slow.release)
	if report := <-refreshed; report.LatestBlock != 2000 {
		t.Errorf("expected refreshed block 2000, got %d", report.LatestBlock)
	}
	if report := monitor.CheckHealth(context.Background()); report.LatestBlock != 2000 {
		t.Errorf("expected cached refreshed report, got block %d", report.LatestBlock)
	}
}
