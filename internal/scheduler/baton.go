package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// baton is the single logical thread of the runtime. The tick body, the two
// background update tasks and instant event callbacks only run while holding
// it, so hooks never execute in parallel with each other. Suspension points
// hand it over explicitly.
type baton struct {
	mu sync.Mutex
}

// acquire takes the baton, giving up with ctx.Err() when ctx ends first.
func (b *baton) acquire(ctx context.Context) error {
	if ctx.Done() == nil {
		b.mu.Lock()
		return nil
	}
	got := make(chan struct{})
	go func() {
		b.mu.Lock()
		close(got)
	}()
	select {
	case <-got:
		return nil
	case <-ctx.Done():
		// Hand the baton back as soon as the pending Lock gets it.
		go func() {
			<-got
			b.mu.Unlock()
		}()
		return ctx.Err()
	}
}

type batonKey struct{}

func withBaton(ctx context.Context, b *baton) context.Context {
	return context.WithValue(ctx, batonKey{}, b)
}

func batonFrom(ctx context.Context) *baton {
	b, _ := ctx.Value(batonKey{}).(*baton)
	return b
}

// Yield suspends the calling hook for one scheduling unit so that other loop
// tasks can make progress. Outside of the loop it only yields the goroutine.
func Yield(ctx context.Context) {
	b := batonFrom(ctx)
	if b == nil {
		runtime.Gosched()
		return
	}
	b.mu.Unlock()
	runtime.Gosched()
	b.mu.Lock()
}

// Sleep pauses the calling hook for d without blocking the loop.
// It returns early with ctx.Err() when ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	return Detach(ctx, func() error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	})
}

// Detach runs blocking work (I/O, waiting on channels) without holding the
// loop. The hook resumes once fn has returned and the loop is free again.
func Detach(ctx context.Context, fn func() error) error {
	b := batonFrom(ctx)
	if b == nil {
		return fn()
	}
	b.mu.Unlock()
	defer b.mu.Lock()
	return fn()
}
