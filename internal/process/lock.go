package process

import (
	"fmt"
	"time"
)

// timedLock is a mutex that reports a timeout rather than blocking
// forever, per the "lock acquisitions have an explicit bounded timeout;
// a timeout is treated as a programming error and surfaced" requirement.
// A plain sync.Mutex cannot express this, so it is backed by a
// buffered channel acting as a binary semaphore.
type timedLock struct {
	ch chan struct{}
}

func newTimedLock() timedLock {
	return timedLock{ch: make(chan struct{}, 1)}
}

// lock acquires the lock or returns an error after timeout elapses.
func (l timedLock) lock(timeout time.Duration) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("lock acquisition timed out after %s", timeout)
	}
}

func (l timedLock) unlock() {
	<-l.ch
}
