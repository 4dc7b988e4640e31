// Package testutil provides small shared test helpers used across
// oxidux's package tests: temp directories, free sockets/ports, a
// manually-advanced fake clock, and condition polling.
package testutil

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TempDir creates a temporary directory for a test and schedules its
// removal on cleanup.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "oxidux-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// FreeSocket returns a unique Unix socket path in a fresh temp
// directory. The file itself does not exist yet; it is created by
// whatever control.Server binds to it.
func FreeSocket(t *testing.T) string {
	t.Helper()
	dir := TempDir(t)
	return filepath.Join(dir, "oxidux.sock")
}

// FreeTCPPort returns an available TCP port on 127.0.0.1 by binding to
// :0 and immediately releasing it. There is an unavoidable TOCTOU gap
// between release and reuse; tests using this should tolerate a rare
// bind failure rather than assume exclusivity.
func FreeTCPPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("cannot find free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// Clock is a fake, manually-advanced time source. The process watchdog
// and escalating kill do not take a Clock; they run on real timers.
type Clock struct {
	now time.Time
}

// NewClock creates a Clock starting at the given time.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the clock's current time.
func (c *Clock) Now() time.Time { return c.now }

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// WaitForCondition polls cond every step until it returns true or
// timeout elapses, returning an error describing what was expected.
func WaitForCondition(timeout, step time.Duration, what string, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(step)
	}
	if cond() {
		return nil
	}
	return fmt.Errorf("timed out after %s waiting for: %s", timeout, what)
}
