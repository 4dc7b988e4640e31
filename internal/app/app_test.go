package app

import (
	"testing"
	"time"

	"github.com/oxidux/oxidux/internal/config"
	"github.com/oxidux/oxidux/internal/tmux"
)

func testApp(t *testing.T, cfg config.App) *App {
	t.Helper()
	if cfg.Directory == "" {
		cfg.Directory = t.TempDir()
	}
	a, err := newApp(cfg, 5000, "test", tmux.NewMock(), t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return a
}

func TestMatchesHostNameAndAlias(t *testing.T) {
	a := testApp(t, config.App{Name: "myapp", Aliases: []string{"alias1", "alias2"}, Command: "true"})

	for _, host := range []string{"myapp", "alias1", "alias2"} {
		if !a.MatchesHost(host) {
			t.Errorf("MatchesHost(%q) = false, want true", host)
		}
	}
	if a.MatchesHost("other") {
		t.Error("MatchesHost(other) = true, want false")
	}
}

func TestDefaultProcessPrefersWeb(t *testing.T) {
	a := testApp(t, config.App{Name: "myapp", Commands: map[string]string{"worker": "true", "web": "true"}})

	p := a.DefaultProcess()
	if p == nil || p.Label() != "web" {
		t.Fatalf("expected default process web, got %v", p)
	}
}

func TestDefaultProcessFallsBackToFirstSorted(t *testing.T) {
	a := testApp(t, config.App{Name: "myapp", Commands: map[string]string{"worker": "true", "clock": "true"}})

	p := a.DefaultProcess()
	if p == nil || p.Label() != "clock" {
		t.Fatalf("expected default process clock (first alphabetically), got %v", p)
	}
}

func TestTouchIsMonotonicNonDecreasing(t *testing.T) {
	a := testApp(t, config.App{Name: "myapp", Command: "true"})

	a.Touch()
	first := a.LastHit()

	// Simulate an out-of-order touch by resetting lastHit into the
	// future directly, then confirming Touch() does not move it backward.
	a.mu.Lock()
	a.lastHit = first.Add(time.Hour)
	a.mu.Unlock()

	a.Touch()
	if a.LastHit().Before(first.Add(time.Hour)) {
		t.Fatalf("Touch moved last_hit backward: %s", a.LastHit())
	}
}

func TestStartAndStopToggleIsRunning(t *testing.T) {
	a := testApp(t, config.App{Name: "myapp", Command: "true"})

	if a.IsRunning() {
		t.Fatal("expected app to start stopped")
	}

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !a.IsRunning() {
		t.Fatal("expected app to be running after Start")
	}

	// Stop() only requests termination; IsRunning (any non-Stopped
	// state) stays true until the watchdog/escalating kill observes the
	// child's exit, so this only exercises the request path itself.
	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !a.IsRunning() {
		t.Fatal("expected app to still be reported running while terminating")
	}
}
