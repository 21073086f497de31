// Package routing handles provider selection and failover logic.
//
// This package contains:
//   - Router: interface for provider selection and health tracking
//   - DefaultRouter: implementation with a consecutive-failure circuit breaker
//   - Retry: retry logic with exponential backoff and failover
package routing

import (
	"sort"
	"sync"
	"time"

	"github.com/vietddude/nftscan/internal/infra/rpc/provider"
)

// Router handles provider selection and health tracking.
type Router interface {
	// AddProvider registers a provider for a specific chain
	AddProvider(chainID string, p provider.Provider)

	// GetAllProviders returns the providers for a chain, best first
	GetAllProviders(chainID string) []provider.Provider

	// RecordSuccess tracks successful calls
	RecordSuccess(providerName string, latency time.Duration)

	// RecordFailure tracks failed calls
	RecordFailure(providerName string, err error)

	// CircuitOpen reports whether a provider is being skipped after repeated failures
	CircuitOpen(providerName string) bool
}

// circuitOpenFor is how long a provider is skipped after tripping the breaker.
const circuitOpenFor = 30 * time.Second

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	consecutiveFails int
	circuitOpen      bool
}

// DefaultRouter implements provider selection with a circuit breaker.
type DefaultRouter struct {
	mu             sync.RWMutex
	chainProviders map[string][]provider.Provider
	providerHealth map[string]*providerMetrics
	nowFn          func() time.Time
}

// NewRouter creates a new router.
func NewRouter() *DefaultRouter {
	return &DefaultRouter{
		chainProviders: make(map[string][]provider.Provider),
		providerHealth: make(map[string]*providerMetrics),
		nowFn:          time.Now,
	}
}

// AddProvider registers a provider for a chain.
func (r *DefaultRouter) AddProvider(chainID string, p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chainProviders[chainID] = append(r.chainProviders[chainID], p)
	r.providerHealth[p.GetName()] = &providerMetrics{
		lastSuccessAt: r.nowFn(),
	}
}

// GetAllProviders returns all providers for a chain. Usable providers come
// first in registration order, followed by those with an open circuit or a
// throttled monitor, so failover still reaches them as a last resort.
func (r *DefaultRouter) GetAllProviders(chainID string) []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := r.chainProviders[chainID]
	result := make([]provider.Provider, len(providers))
	copy(result, providers)

	sort.SliceStable(result, func(i, j int) bool {
		return r.usableLocked(result[i]) && !r.usableLocked(result[j])
	})
	return result
}

func (r *DefaultRouter) usableLocked(p provider.Provider) bool {
	if !p.IsAvailable() {
		return false
	}
	m, ok := r.providerHealth[p.GetName()]
	if !ok || !m.circuitOpen {
		return true
	}
	// Half-open: allow one attempt once the cool-down has passed
	return r.nowFn().Sub(m.lastFailureAt) > circuitOpenFor
}

// RecordSuccess records a successful call.
func (r *DefaultRouter) RecordSuccess(providerName string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	metrics.successCount++
	metrics.totalLatency += latency
	metrics.lastSuccessAt = r.nowFn()
	metrics.consecutiveFails = 0
	metrics.circuitOpen = false
}

// RecordFailure records a failed call.
func (r *DefaultRouter) RecordFailure(providerName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	metrics.failureCount++
	metrics.lastFailureAt = r.nowFn()
	metrics.consecutiveFails++

	if metrics.consecutiveFails >= 5 {
		metrics.circuitOpen = true
	}
}

// CircuitOpen reports whether the provider's breaker is currently tripped.
func (r *DefaultRouter) CircuitOpen(providerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.providerHealth[providerName]
	return ok && m.circuitOpen
}
