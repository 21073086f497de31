package throttle

import "time"

// RangeConfig bounds the block span of a single eth_getLogs request.
type RangeConfig struct {
	// MaxRange is the largest span ever requested (default: 50000)
	MaxRange uint64
	// MinRange is the smallest span a rejected range is split into (default: 500)
	MinRange uint64

	// Latency thresholds for growing the learned span back
	LowLatencyThreshold time.Duration // Below this = grow after a success (default: 1s)
	GrowthFactor        uint64        // Multiplier applied on growth (default: 2)
}

// DefaultRangeConfig returns sensible defaults for log range sizing.
func DefaultRangeConfig() RangeConfig {
	return RangeConfig{
		MaxRange:            50_000,
		MinRange:            500,
		LowLatencyThreshold: time.Second,
		GrowthFactor:        2,
	}
}
