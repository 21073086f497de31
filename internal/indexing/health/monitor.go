package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/nftscan/internal/infra/chain"
	"github.com/vietddude/nftscan/internal/infra/rpc"
)

// checkInterval bounds how often a report hits the RPC providers.
const checkInterval = 10 * time.Second

// ProviderSource reports per-provider health.
type ProviderSource interface {
	GetProviderHealth() map[string]rpc.HealthStatus
}

// Sizer reports how many entries a cache holds.
type Sizer interface {
	Len() int
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	chainID   string
	providers ProviderSource
	head      chain.HeadSource
	cache     Sizer

	group      singleflight.Group
	mu         sync.Mutex
	refreshing bool
	lastCheck  time.Time
	lastReport *Report
	nowFn      func() time.Time
}

// NewMonitor creates a new health monitor. cache may be nil.
func NewMonitor(chainID string, providers ProviderSource, head chain.HeadSource, cache Sizer) *Monitor {
	return &Monitor{
		chainID:   chainID,
		providers: providers,
		head:      head,
		cache:     cache,
		nowFn:     time.Now,
	}
}

// CheckHealth builds a report, reusing the previous one for a short while.
// While a refresh is in flight, callers get the previous report if there is one.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	now := m.nowFn()
	if m.lastReport != nil && (m.refreshing || now.Sub(m.lastCheck) < checkInterval) {
		report := *m.lastReport
		m.mu.Unlock()
		return report
	}
	m.refreshing = true
	m.mu.Unlock()

	v, _, _ := m.group.Do("report", func() (any, error) {
		report := m.buildReport(ctx)

		m.mu.Lock()
		m.refreshing = false
		m.lastCheck = now
		m.lastReport = &report
		m.mu.Unlock()
		return report, nil
	})
	return v.(Report)
}

// buildReport queries providers and the chain head. It must not hold m.mu.
func (m *Monitor) buildReport(ctx context.Context) Report {
	report := Report{
		SystemStatus: StatusHealthy,
		ChainID:      m.chainID,
		Providers:    make(map[string]ProviderHealth),
	}

	usable := 0
	for name, h := range m.providers.GetProviderHealth() {
		ph := ProviderHealth{
			Name:      name,
			State:     h.Status,
			Available: h.Available,
			LatencyMS: h.Latency.Milliseconds(),
			ErrorRate: h.ErrorRate,
			Circuit:   h.CircuitOpen,
			Status:    providerStatus(h),
		}
		if ph.Status != StatusCritical {
			usable++
		}
		if ph.Status != StatusHealthy && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
		report.Providers[name] = ph
	}
	if usable == 0 {
		report.SystemStatus = StatusCritical
	}

	latest, err := m.head.GetLatestBlock(ctx)
	if err != nil {
		report.HeadError = err.Error()
		report.SystemStatus = StatusCritical
	} else {
		report.LatestBlock = latest
	}

	if m.cache != nil {
		report.CacheEntries = m.cache.Len()
	}
	return report
}

func providerStatus(h rpc.HealthStatus) SystemStatus {
	switch {
	case !h.Available, h.CircuitOpen, h.Status == "throttled", h.Status == "blocked":
		return StatusCritical
	case h.Status == "degraded", h.ErrorRate > 0.1:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
