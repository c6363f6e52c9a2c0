package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunExecutesTask(t *testing.T) {
	p := New(2)
	var ran atomic.Bool
	err := p.Run(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !ran.Load() {
		t.Errorf("task did not run")
	}
}

func TestPool_LimitsConcurrency(t *testing.T) {
	p := New(1)
	var active, maxActive atomic.Int32

	start := make(chan struct{})
	for i := 0; i < 3; i++ {
		go func() {
			<-start
			_ = p.Run(context.Background(), func(ctx context.Context) error {
				n := active.Add(1)
				for {
					cur := maxActive.Load()
					if n <= cur || maxActive.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	close(start)
	time.Sleep(100 * time.Millisecond)

	if maxActive.Load() > 1 {
		t.Errorf("maxActive = %d, want <= 1 with pool size 1", maxActive.Load())
	}
}

func TestPool_SubmitRespectsContextCancellation(t *testing.T) {
	p := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Submit(ctx, func(ctx context.Context) error { return nil })
	if err == nil {
		t.Errorf("expected error submitting to an already-cancelled context")
	}
}

func TestPool_ShutdownWaitsForInFlight(t *testing.T) {
	p := New(2)
	var ran atomic.Bool

	_ = p.Submit(context.Background(), func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		ran.Store(true)
		return nil
	})

	err := p.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if !ran.Load() {
		t.Errorf("expected in-flight task to complete before Shutdown returns")
	}
}
