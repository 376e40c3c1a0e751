package bus

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

// Lock is the exclusive lock owned by one bus context. Every acquisition is bounded.
type Lock struct {
	sem       *semaphore.Weighted
	destroyed atomic.Bool
}

// NewLock creates an unlocked Lock.
func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire waits at most timeout for the lock. It returns Busy if the wait expires or ctx ends
// first, and NotInitialized if the lock has been destroyed. A non-positive timeout only tries
// once.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	if l.destroyed.Load() {
		return NotInitialized
	}
	if ctx.Err() != nil {
		return Busy
	}
	if timeout <= 0 {
		if !l.sem.TryAcquire(1) {
			return Busy
		}
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := l.sem.Acquire(waitCtx, 1); err != nil {
			return Busy
		}
	}
	if l.destroyed.Load() {
		l.sem.Release(1)
		return NotInitialized
	}
	return nil
}

// Release unlocks the lock. Releasing an unlocked Lock panics.
func (l *Lock) Release() {
	l.sem.Release(1)
}

// Destroy marks the lock dead. Waiters that get it afterwards give it back and fail with
// NotInitialized.
func (l *Lock) Destroy() {
	l.destroyed.Store(true)
}
