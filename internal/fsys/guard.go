package fsys

import (
	"context"
	"sync"
)

// pathGuard serializes mutations per normalized path. At most one
// in-flight mutation exists per path; later callers block until the
// current one releases, then proceed against the refreshed cache state.
type pathGuard struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	refs int
	sem  chan struct{}
}

func newPathGuard() *pathGuard {
	return &pathGuard{locks: make(map[string]*pathLock)}
}

// acquire blocks until the path's in-flight slot is free or ctx is done.
// The returned release function is idempotent.
func (g *pathGuard) acquire(ctx context.Context, path string) (func(), error) {
	g.mu.Lock()
	l := g.locks[path]
	if l == nil {
		l = &pathLock{sem: make(chan struct{}, 1)}
		g.locks[path] = l
	}
	l.refs++
	g.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		g.release(path, l, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { g.release(path, l, true) })
	}, nil
}

func (g *pathGuard) release(path string, l *pathLock, held bool) {
	if held {
		<-l.sem
	}
	g.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(g.locks, path)
	}
	g.mu.Unlock()
}

// inFlight reports whether a mutation currently holds the path. Used by
// tests and diagnostics only.
func (g *pathGuard) inFlight(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[path]
	return ok && len(l.sem) > 0
}
