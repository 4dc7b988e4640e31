package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// writeWeight is large enough that no realistic number of concurrent
// readers can starve a writer out by holding fewer than the full
// weight; a writer acquires all of it, a reader acquires one unit.
const writeWeight = 1 << 30

// timedRWLock is the registry's "single-writer, multi-reader lock"
// (spec.md §4.2/§5) with a bounded acquisition timeout on both sides,
// built on a weighted semaphore rather than sync.RWMutex because
// sync.RWMutex has no deadline-aware Lock/RLock.
type timedRWLock struct {
	sem *semaphore.Weighted
}

func newTimedRWLock() *timedRWLock {
	return &timedRWLock{sem: semaphore.NewWeighted(writeWeight)}
}

func (l *timedRWLock) rlock(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("registry read-lock timed out after %s", timeout)
	}
	return nil
}

func (l *timedRWLock) runlock() { l.sem.Release(1) }

func (l *timedRWLock) lock(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := l.sem.Acquire(ctx, writeWeight); err != nil {
		return fmt.Errorf("registry write-lock timed out after %s", timeout)
	}
	return nil
}

func (l *timedRWLock) unlock() { l.sem.Release(writeWeight) }
