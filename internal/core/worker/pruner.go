package worker

import (
	"context"
	"log/slog"
	"time"
)

// Prunable is anything that can drop expired state on demand.
type Prunable interface {
	Prune() int
}

// Pruner periodically drops entries older than a retention period.
type Pruner struct {
	name      string
	target    Prunable
	retention time.Duration
}

// NewPruner creates a new Pruner worker.
func NewPruner(name string, target Prunable, retention time.Duration) *Pruner {
	return &Pruner{
		name:      name,
		target:    target,
		retention: retention,
	}
}

// Interval returns how often the target is pruned: a fifth of the retention
// period, clamped to [1s, 1h].
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/5, 1*time.Hour)
	return max(interval, 1*time.Second)
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune()
		}
	}
}

func (p *Pruner) prune() {
	if n := p.target.Prune(); n > 0 {
		slog.Debug("Pruned idle entries", "worker", p.name, "removed", n)
	}
}
