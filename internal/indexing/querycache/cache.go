// Package querycache memoizes reconciliation runs per query key.
//
// Each key moves through Absent → Pending → Fresh → Stale → Pending → ...
// At most one run per key is in flight; concurrent callers share it. A
// failed run leaves the key Absent, so errors are never cached.
package querycache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/nftscan/internal/core/domain"
	"github.com/vietddude/nftscan/internal/indexing/metrics"
	"github.com/vietddude/nftscan/internal/infra/rpc"
)

// State is the lifecycle state of one key.
type State int

const (
	StateAbsent State = iota
	StatePending
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePending:
		return "pending"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// RunFunc computes the result for one key.
type RunFunc func(ctx context.Context) ([]domain.ReconciledEntity, error)

// Config controls staleness, eviction and retry.
type Config struct {
	// StaleTime is how long a result is served without recomputation
	StaleTime time.Duration
	// GCTime is how long an unread entry is kept before Prune drops it
	GCTime time.Duration
	// MaxEntries caps the number of keys; least recently read keys go first
	MaxEntries int
	// Retry applies to runs failing with a scan failure only
	Retry rpc.RetryConfig
}

// DefaultConfig returns sensible cache defaults.
func DefaultConfig() Config {
	return Config{
		StaleTime:  30 * time.Second,
		GCTime:     5 * time.Minute,
		MaxEntries: 10_000,
		Retry: rpc.RetryConfig{
			MaxAttempts:     3,
			InitialDelay:    500 * time.Millisecond,
			MaxDelay:        10 * time.Second,
			BackoffMultiple: 2,
		},
	}
}

type entry struct {
	key        domain.QueryKey
	result     []domain.ReconciledEntity
	hasResult  bool
	pending    bool
	stale      bool
	generation uint64
	updatedAt  time.Time
	readAt     time.Time
	elem       *list.Element
}

// Cache is a single-flight, staleness-aware result cache.
type Cache struct {
	cfg   Config
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // front = most recently read
	nowFn   func() time.Time
	sleepFn func(time.Duration)

	log *slog.Logger
}

// New creates a cache.
func New(cfg Config) *Cache {
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]*entry),
		order:   list.New(),
		nowFn:   time.Now,
		sleepFn: time.Sleep,
		log:     slog.Default().With("component", "querycache"),
	}
}

// Get returns the cached result for key while it is fresh. Otherwise it
// runs fn, or joins the run already in flight for key. The run itself is
// detached from ctx: a caller that gives up only stops waiting.
func (c *Cache) Get(ctx context.Context, key domain.QueryKey, fn RunFunc) ([]domain.ReconciledEntity, error) {
	k := key.String()
	kind := string(key.Kind)

	c.mu.Lock()
	now := c.nowFn()
	e := c.entries[k]
	if e != nil {
		e.readAt = now
		c.order.MoveToFront(e.elem)
		if e.hasResult && !c.isStaleLocked(e, now) {
			result := slices.Clone(e.result)
			c.mu.Unlock()
			metrics.CacheRequestsTotal.WithLabelValues(kind, "hit").Inc()
			return result, nil
		}
	}
	outcome := "miss"
	if e != nil && e.hasResult {
		outcome = "stale"
	}
	c.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k, func() (any, error) {
		return c.execute(runCtx, key, fn)
	})

	select {
	case res := <-ch:
		if res.Shared {
			outcome = "shared"
		}
		metrics.CacheRequestsTotal.WithLabelValues(kind, outcome).Inc()
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]domain.ReconciledEntity)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) execute(ctx context.Context, key domain.QueryKey, fn RunFunc) ([]domain.ReconciledEntity, error) {
	k := key.String()

	c.mu.Lock()
	e := c.entries[k]
	if e == nil {
		now := c.nowFn()
		e = &entry{key: key, readAt: now}
		e.elem = c.order.PushFront(e)
		c.entries[k] = e
		c.evictLocked()
	}
	e.pending = true
	gen := e.generation
	c.mu.Unlock()

	start := time.Now()
	result, err := c.runWithRetry(ctx, key, fn)
	metrics.QueryRunDuration.WithLabelValues(string(key.Kind)).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { metrics.CacheEntries.Set(float64(len(c.entries))) }()

	if err != nil {
		metrics.QueryRunsTotal.WithLabelValues(string(key.Kind), "error").Inc()
		// Back to Absent: the next request starts from scratch.
		c.removeLocked(k)
		c.log.Warn("Query run failed", "key", k, "error", err)
		return nil, err
	}

	metrics.QueryRunsTotal.WithLabelValues(string(key.Kind), "ok").Inc()
	if cur := c.entries[k]; cur != e {
		// Evicted or pruned while running; store under a fresh entry.
		e = &entry{key: key, readAt: c.nowFn(), generation: gen}
		e.elem = c.order.PushFront(e)
		c.entries[k] = e
	}
	e.pending = false
	e.result = result
	e.hasResult = true
	e.updatedAt = c.nowFn()
	// An invalidation that arrived mid-run leaves the new result already stale.
	e.stale = e.generation != gen
	c.evictLocked()

	c.log.Debug("Query run stored", "key", k, "entities", len(result), "stale", e.stale)
	return result, nil
}

// runWithRetry retries scan failures with exponential backoff. Batch
// failures and any other error are returned at once.
func (c *Cache) runWithRetry(ctx context.Context, key domain.QueryKey, fn RunFunc) ([]domain.ReconciledEntity, error) {
	attempts := max(c.cfg.Retry.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !domain.IsScanFailure(err) || attempt == attempts-1 {
			break
		}

		delay := rpc.Backoff(attempt, c.cfg.Retry)
		c.log.Debug("Retrying query after scan failure",
			"key", key.String(),
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		c.sleepFn(delay)
	}

	if domain.IsScanFailure(lastErr) && attempts > 1 {
		return nil, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
	}
	return nil, lastErr
}

func (c *Cache) isStaleLocked(e *entry, now time.Time) bool {
	return e.stale || now.Sub(e.updatedAt) >= c.cfg.StaleTime
}

// State reports the lifecycle state of key.
func (c *Cache) State(key domain.QueryKey) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[key.String()]
	switch {
	case e == nil:
		return StateAbsent
	case e.pending:
		return StatePending
	case !e.hasResult:
		return StateAbsent
	case c.isStaleLocked(e, c.nowFn()):
		return StateStale
	default:
		return StateFresh
	}
}

// Invalidate marks key stale. A run in flight is not cancelled; its result
// is stored as already stale. Reports whether the key was known.
func (c *Cache) Invalidate(key domain.QueryKey) bool {
	return c.InvalidateMatching(func(k domain.QueryKey) bool { return k == key }) > 0
}

// InvalidateMatching marks every key accepted by match stale and returns
// how many were marked.
func (c *Cache) InvalidateMatching(match func(domain.QueryKey) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		if !match(e.key) {
			continue
		}
		e.generation++
		e.stale = true
		n++
	}
	return n
}

// Apply marks the keys affected by a confirmed write stale.
func (c *Cache) Apply(inv domain.Invalidation) int {
	n := c.InvalidateMatching(func(k domain.QueryKey) bool { return k.Matches(inv) })
	c.log.Debug("Invalidation applied", "address", inv.Address, "kind", inv.Kind, "keys", n)
	return n
}

// Prune drops entries that have not been read for GCTime. Pending entries
// are kept. Returns the number of entries removed.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	n := 0
	for k, e := range c.entries {
		if e.pending || now.Sub(e.readAt) < c.cfg.GCTime {
			continue
		}
		c.removeLocked(k)
		n++
	}
	if n > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues("gc").Add(float64(n))
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return n
}

// Len returns the number of tracked keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictLocked() {
	if c.cfg.MaxEntries <= 0 {
		return
	}
	for elem := c.order.Back(); elem != nil && len(c.entries) > c.cfg.MaxEntries; {
		prev := elem.Prev()
		e := elem.Value.(*entry)
		if !e.pending {
			c.removeLocked(e.key.String())
			metrics.CacheEvictionsTotal.WithLabelValues("capacity").Inc()
		}
		elem = prev
	}
}

func (c *Cache) removeLocked(k string) {
	e, ok := c.entries[k]
	if !ok {
		return
	}
	c.order.Remove(e.elem)
	delete(c.entries, k)
}
