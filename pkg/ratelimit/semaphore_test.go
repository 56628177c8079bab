package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewSemaphore_Defaults(t *testing.T) {
	sem := NewSemaphore(0)
	if sem.Capacity() != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, sem.Capacity())
	}

	sem = NewSemaphore(-5)
	if sem.Capacity() != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, sem.Capacity())
	}

	sem = NewSemaphore(3)
	if sem.Capacity() != 3 {
		t.Errorf("expected capacity 3, got %d", sem.Capacity())
	}
}

func TestSemaphore_AcquireRelease(t *testing.T) {
	sem := NewSemaphore(2)
	ctx := context.Background()

	if err := sem.Acquire(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sem.Acquire(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sem.InFlight() != 2 {
		t.Errorf("expected 2 in flight, got %d", sem.InFlight())
	}

	// Третий Acquire должен блокироваться
	if sem.TryAcquire() {
		t.Error("TryAcquire succeeded on a full semaphore")
	}

	sem.Release()
	if sem.InFlight() != 1 {
		t.Errorf("expected 1 in flight after release, got %d", sem.InFlight())
	}

	if !sem.TryAcquire() {
		t.Error("TryAcquire failed after release")
	}
}

func TestSemaphore_AcquireCancelled(t *testing.T) {
	sem := NewSemaphore(1)
	ctx := context.Background()

	if err := sem.Acquire(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := sem.Acquire(cancelCtx)
	if err == nil {
		t.Fatal("expected context error, got nil")
	}
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestSemaphore_ReleaseWithoutAcquire(t *testing.T) {
	sem := NewSemaphore(1)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on release without acquire")
		}
	}()

	sem.Release()
}

func TestSemaphore_BoundsConcurrency(t *testing.T) {
	const capacity = 2
	const workers = 10

	sem := NewSemaphore(capacity)
	ctx := context.Background()

	var inFlight int64
	var maxObserved int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := sem.Acquire(ctx); err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			defer sem.Release()

			n := atomic.AddInt64(&inFlight, 1)
			for {
				max := atomic.LoadInt64(&maxObserved)
				if n <= max || atomic.CompareAndSwapInt64(&maxObserved, max, n) {
					break
				}
			}

			time.Sleep(10 * time.Millisecond) // имитация HTTP round trip
			atomic.AddInt64(&inFlight, -1)
		}()
	}

	wg.Wait()

	if maxObserved > capacity {
		t.Errorf("observed %d concurrent holders, capacity is %d", maxObserved, capacity)
	}
	if sem.InFlight() != 0 {
		t.Errorf("expected 0 in flight after completion, got %d", sem.InFlight())
	}
}
