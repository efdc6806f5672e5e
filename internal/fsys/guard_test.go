package fsys

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGuardSerializesSamePath(t *testing.T) {
	t.Parallel()

	g := newPathGuard()
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.acquire(context.Background(), "a/b")
			if err != nil {
				t.Errorf("acquire = %v", err)
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxActive)
				if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			release()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
}

func TestGuardIndependentPaths(t *testing.T) {
	t.Parallel()

	g := newPathGuard()
	r1, err := g.acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer r1()

	// A different path must not block.
	done := make(chan struct{})
	go func() {
		r2, err := g.acquire(context.Background(), "b")
		if err == nil {
			r2()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent path blocked")
	}
}

func TestGuardAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	g := newPathGuard()
	release, err := g.acquire(context.Background(), "p")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := g.acquire(ctx, "p"); err == nil {
		t.Fatal("acquire should fail when the context expires while blocked")
	}

	release()
	// The lock entry is reclaimed once nothing holds or waits on it.
	if g.inFlight("p") {
		t.Error("lock entry leaked after release")
	}
}

func TestGuardReleaseIdempotent(t *testing.T) {
	t.Parallel()

	g := newPathGuard()
	release, err := g.acquire(context.Background(), "p")
	if err != nil {
		t.Fatal(err)
	}
	release()
	release() // second call must be harmless

	r2, err := g.acquire(context.Background(), "p")
	if err != nil {
		t.Fatalf("re-acquire after release = %v", err)
	}
	r2()
}
