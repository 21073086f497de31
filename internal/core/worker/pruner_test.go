package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingTarget struct {
	calls int32
}

func (c *countingTarget) Prune() int {
	atomic.AddInt32(&c.calls, 1)
	return 1
}

func TestPruner_Interval(t *testing.T) {
	tests := []struct {
		retention time.Duration
		expected  time.Duration
	}{
		{retention: 5 * time.Minute, expected: time.Minute},
		{retention: 2 * time.Second, expected: time.Second},
		{retention: 24 * time.Hour, expected: time.Hour},
	}

	for _, tt := range tests {
		p := NewPruner("test", &countingTarget{}, tt.retention)
		if got := p.Interval(); got != tt.expected {
			t.Errorf("retention %v: expected interval %v, got %v", tt.retention, tt.expected, got)
		}
	}
}

func TestPruner_DisabledReturnsImmediately(t *testing.T) {
	target := &countingTarget{}
	p := NewPruner("test", target, 0)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected disabled pruner to return")
	}
	if atomic.LoadInt32(&target.calls) != 0 {
		t.Error("expected no prune calls")
	}
}

func TestPruner_StopsOnCancel(t *testing.T) {
	target := &countingTarget{}
	p := NewPruner("test", target, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected pruner to stop on cancel")
	}
}
