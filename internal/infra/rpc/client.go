package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/nftscan/internal/indexing/metrics"
	"github.com/vietddude/nftscan/internal/infra/rpc/provider"
	"github.com/vietddude/nftscan/internal/infra/rpc/routing"
)

// Client is the high-level interface for making RPC calls.
// This is what application layers should use.
type Client struct {
	router  routing.Router
	chainID string
	retry   routing.RetryConfig
}

// NewClient creates a new RPC client for one chain.
func NewClient(chainID string, router routing.Router) *Client {
	return &Client{
		chainID: chainID,
		router:  router,
		retry:   routing.DefaultRetryConfig,
	}
}

// SetRetryConfig overrides the per-provider retry policy.
func (c *Client) SetRetryConfig(cfg routing.RetryConfig) {
	c.retry = cfg
}

// ChainID returns the chain this client talks to.
func (c *Client) ChainID() string {
	return c.chainID
}

// Call makes an RPC call with retry and failover across providers.
func (c *Client) Call(ctx context.Context, method string, params []any) (any, error) {
	start := time.Now()
	result, err := routing.CallWithRetryAndFailover(ctx, c.router, c.chainID, method, params, c.retry)
	c.observe(method, start, err)
	return result, err
}

// BatchCall sends all requests as one JSON-RPC batch with retry and failover.
// Per-item errors are reported in the responses; err is set only when the
// batch as a whole could not be delivered.
func (c *Client) BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error) {
	if len(requests) == 0 {
		return []BatchResponse{}, nil
	}

	start := time.Now()
	responses, err := routing.BatchCallWithRetryAndFailover(ctx, c.router, c.chainID, requests, c.retry)
	c.observe("batch", start, err)
	if err != nil {
		return nil, err
	}
	if len(responses) != len(requests) {
		return nil, fmt.Errorf("batch returned %d responses for %d requests", len(responses), len(requests))
	}
	return responses, nil
}

func (c *Client) observe(method string, start time.Time, err error) {
	metrics.RPCCallsTotal.WithLabelValues(c.chainID, method).Inc()
	metrics.RPCLatency.WithLabelValues(c.chainID, method).Observe(time.Since(start).Seconds())
	if err != nil {
		action := routing.ClassifyError(err)
		metrics.RPCErrorsTotal.WithLabelValues(c.chainID, method, action.String()).Inc()
		slog.Debug("RPC call failed", "chain", c.chainID, "method", method, "action", action, "error", err)
	}
}

// GetProviderStats returns monitoring stats for all providers.
func (c *Client) GetProviderStats() map[string]provider.MonitorStats {
	providers := c.router.GetAllProviders(c.chainID)
	stats := make(map[string]provider.MonitorStats)

	for _, p := range providers {
		if httpProv, ok := p.(*provider.HTTPProvider); ok {
			stats[p.GetName()] = httpProv.Monitor.GetStats()
		}
	}

	return stats
}

// GetProviderHealth returns the health snapshot of every provider, keyed by
// name, including the router's circuit breaker state.
func (c *Client) GetProviderHealth() map[string]provider.HealthStatus {
	providers := c.router.GetAllProviders(c.chainID)
	health := make(map[string]provider.HealthStatus, len(providers))
	for _, p := range providers {
		h := p.GetHealth()
		h.CircuitOpen = c.router.CircuitOpen(p.GetName())
		health[p.GetName()] = h
	}
	return health
}

// Close releases provider resources.
func (c *Client) Close() error {
	for _, p := range c.router.GetAllProviders(c.chainID) {
		if err := p.Close(); err != nil {
			return err
		}
	}
	return nil
}
