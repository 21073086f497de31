// Package rpc provides a resilient JSON-RPC client for EVM networks.
//
// This package offers:
//   - Multiple provider support (Alchemy, Infura, public nodes, etc.)
//   - Automatic failover with a per-provider circuit breaker
//   - Retry with exponential backoff for transient errors
//   - Id-matched JSON-RPC batch calls
//
// # Quick Start
//
//	import "github.com/vietddude/nftscan/internal/infra/rpc"
//
//	router := rpc.NewRouter()
//	router.AddProvider("1", rpc.NewHTTPProvider("alchemy", alchemyURL, 30*time.Second))
//	router.AddProvider("1", rpc.NewHTTPProvider("infura", infuraURL, 30*time.Second))
//
//	client := rpc.NewClient("1", router)
//	result, err := client.Call(ctx, "eth_blockNumber", nil)
//
// # Package Structure
//
//   - provider/ - HTTP JSON-RPC transport and throttle monitoring
//   - routing/  - Provider selection, circuit breaking, retry logic
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"time"

	"github.com/vietddude/nftscan/internal/infra/rpc/provider"
	"github.com/vietddude/nftscan/internal/infra/rpc/routing"
)

// Provider is the core interface for RPC endpoints.
type Provider = provider.Provider

// HTTPProvider implements Provider for JSON-RPC over HTTP.
type HTTPProvider = provider.HTTPProvider

// ProviderStatus represents the health state of a provider.
type ProviderStatus = provider.ProviderStatus

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats = provider.MonitorStats

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// BatchRequest represents a single request in a batch call.
type BatchRequest = provider.BatchRequest

// BatchResponse represents a single response from a batch call.
type BatchResponse = provider.BatchResponse

// RPCError is a node-reported JSON-RPC error.
type RPCError = provider.RPCError

// Provider status constants
const (
	StatusHealthy   = provider.StatusHealthy
	StatusDegraded  = provider.StatusDegraded
	StatusThrottled = provider.StatusThrottled
	StatusBlocked   = provider.StatusBlocked
)

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}

// Router handles provider selection and health tracking.
type Router = routing.Router

// DefaultRouter implements provider selection with a circuit breaker.
type DefaultRouter = routing.DefaultRouter

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// NewRouter creates a new router.
func NewRouter() *DefaultRouter {
	return routing.NewRouter()
}

// IsRangeTooLarge reports whether a log query was rejected for its size.
var IsRangeTooLarge = routing.IsRangeTooLarge

// Backoff returns the delay before retry number attempt+1.
var Backoff = routing.Backoff
