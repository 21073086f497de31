// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ProviderHealth is the health of one RPC endpoint.
type ProviderHealth struct {
	Name      string       `json:"name"`
	Status    SystemStatus `json:"status"`
	State     string       `json:"state"` // healthy, degraded, throttled, blocked
	Available bool         `json:"available"`
	LatencyMS int64        `json:"latency_ms"`
	ErrorRate float64      `json:"error_rate"`
	Circuit   bool         `json:"circuit_open"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus SystemStatus              `json:"system_status"`
	ChainID      string                    `json:"chain_id"`
	LatestBlock  uint64                    `json:"latest_block"`
	HeadError    string                    `json:"head_error,omitempty"`
	CacheEntries int                       `json:"cache_entries"`
	Providers    map[string]ProviderHealth `json:"providers"`
}
