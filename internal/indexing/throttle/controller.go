package throttle

import (
	"sync"
	"time"
)

// RangeController learns the largest log range a provider accepts.
//
// Providers cap eth_getLogs by block span or result count. Once a span is
// rejected, later scans start from the last accepted size instead of
// rediscovering the limit by bisection every time.
//
// Algorithm:
//   - Rejected span s: ceiling = max(min, s/2)
//   - Fast success at the ceiling: ceiling = min(max, ceiling × growth)
//   - Slow success: unchanged
type RangeController struct {
	config RangeConfig

	mu      sync.Mutex
	ceiling uint64
}

// NewRangeController creates a controller starting at the configured maximum.
func NewRangeController(config RangeConfig) *RangeController {
	if config.MinRange == 0 {
		config.MinRange = 1
	}
	if config.MaxRange < config.MinRange {
		config.MaxRange = config.MinRange
	}
	if config.GrowthFactor < 2 {
		config.GrowthFactor = 2
	}
	if config.LowLatencyThreshold <= 0 {
		config.LowLatencyThreshold = DefaultRangeConfig().LowLatencyThreshold
	}
	return &RangeController{
		config:  config,
		ceiling: config.MaxRange,
	}
}

// ChunkSize returns the span the next request should cover.
func (c *RangeController) ChunkSize() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ceiling
}

// MinRange returns the smallest span that may be requested.
func (c *RangeController) MinRange() uint64 {
	return c.config.MinRange
}

// RecordTooLarge lowers the ceiling below a rejected span.
func (c *RangeController) RecordTooLarge(span uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := max(span/2, c.config.MinRange)
	if next < c.ceiling {
		c.ceiling = next
	}
}

// RecordSuccess grows the ceiling back after a fast, full-size request.
func (c *RangeController) RecordSuccess(span uint64, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if span < c.ceiling || latency > c.config.LowLatencyThreshold {
		return
	}
	c.ceiling = min(c.ceiling*c.config.GrowthFactor, c.config.MaxRange)
}
