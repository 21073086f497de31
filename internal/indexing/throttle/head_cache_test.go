package throttle

import (
	"context"
	"testing"
	"time"
)

// mockSource implements chain.HeadSource for testing
type mockSource struct {
	latestBlock uint64
	callCount   int
}

func (m *mockSource) GetLatestBlock(ctx context.Context) (uint64, error) {
	m.callCount++
	return m.latestBlock, nil
}

func TestHeadCache_CachesResult(t *testing.T) {
	adapter := &mockSource{latestBlock: 1000}
	cache := NewHeadCache(adapter, 3*time.Second)

	ctx := context.Background()

	// First call - should hit adapter
	result1, err := cache.GetLatestBlock(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result1 != 1000 {
		t.Errorf("expected 1000, got %d", result1)
	}
	if adapter.callCount != 1 {
		t.Errorf("expected 1 adapter call, got %d", adapter.callCount)
	}

	// Second call within TTL - should use cache
	result2, err := cache.GetLatestBlock(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result2 != 1000 {
		t.Errorf("expected 1000, got %d", result2)
	}
	if adapter.callCount != 1 {
		t.Errorf("expected still 1 adapter call (cached), got %d", adapter.callCount)
	}
}

func TestHeadCache_ExpiresAfterTTL(t *testing.T) {
	adapter := &mockSource{latestBlock: 1000}
	cache := NewHeadCache(adapter, 100*time.Millisecond)

	ctx := context.Background()

	// First call
	_, err := cache.GetLatestBlock(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Wait for TTL to expire
	time.Sleep(150 * time.Millisecond)

	// Update adapter value
	adapter.latestBlock = 1001

	// Second call after TTL - should fetch fresh
	result, err := cache.GetLatestBlock(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 1001 {
		t.Errorf("expected fresh value 1001, got %d", result)
	}
	if adapter.callCount != 2 {
		t.Errorf("expected 2 adapter calls, got %d", adapter.callCount)
	}
}

func TestHeadCache_Invalidate(t *testing.T) {
	adapter := &mockSource{latestBlock: 1000}
	cache := NewHeadCache(adapter, 3*time.Second)

	ctx := context.Background()

	// First call
	_, err := cache.GetLatestBlock(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Invalidate cache
	cache.Invalidate()

	// Update adapter value
	adapter.latestBlock = 1001

	// Next call should fetch fresh even though TTL hasn't expired
	result, err := cache.GetLatestBlock(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 1001 {
		t.Errorf("expected fresh value 1001 after invalidate, got %d", result)
	}
	if adapter.callCount != 2 {
		t.Errorf("expected 2 adapter calls, got %d", adapter.callCount)
	}
}

func TestHeadCache_NeverMovesBackwards(t *testing.T) {
	source := &mockSource{latestBlock: 1000}
	cache := NewHeadCache(source, time.Hour)
	ctx := context.Background()

	if _, err := cache.GetLatestBlock(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A lagging provider answers after failover
	cache.Invalidate()
	source.latestBlock = 990

	result, err := cache.GetLatestBlock(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 1000 {
		t.Errorf("expected head to stay at 1000, got %d", result)
	}
}
