// Package app implements the process-wide App registry: the in-memory
// set of running/startable apps, hostname and directory lookup, port
// allocation, and idle reclamation.
package app

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oxidux/oxidux/internal/config"
	"github.com/oxidux/oxidux/internal/events"
	"github.com/oxidux/oxidux/internal/process"
	"github.com/oxidux/oxidux/internal/tmux"
)

// App is one registered application: a primary name, optional aliases,
// a working directory, header overrides, and its ordered Processes.
type App struct {
	Name      string
	Aliases   []string
	Directory string
	Domain    string
	Port      int
	Headers   map[string]string

	processes     map[string]*process.Process
	processOrder  []string
	defaultLabel  string

	mu      sync.Mutex
	lastHit time.Time
}

// newApp constructs an App and its Processes from a config.App record
// and the port assigned to it by the Registry.
func newApp(cfg config.App, port int, domain string, runner tmux.Runner, fifoDir string, bus *events.Bus, logger *slog.Logger) (*App, error) {
	cmds, err := cfg.Commands()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	a := &App{
		Name:         cfg.Name,
		Aliases:      cfg.Aliases,
		Directory:    cfg.Directory,
		Domain:       domain,
		Port:         port,
		Headers:      cfg.Headers,
		processes:    make(map[string]*process.Process, len(names)),
		processOrder: names,
		defaultLabel: config.DefaultProcessLabel(names),
		lastHit:      time.Now(),
	}

	for _, label := range names {
		a.processes[label] = process.NewProcess(process.Config{
			AppName:   cfg.Name,
			Label:     label,
			Port:      port,
			Command:   cmds[label],
			Directory: cfg.Directory,
		}, runner, config.TmuxSocket, fifoDir, bus, logger)
	}

	return a, nil
}

// MatchesHost reports whether host equals the app's name or any alias.
func (a *App) MatchesHost(host string) bool {
	if a.Name == host {
		return true
	}
	for _, alias := range a.Aliases {
		if alias == host {
			return true
		}
	}
	return false
}

// DefaultProcess returns the "web" process if present, else the first
// one in sorted-label order, per spec.md §3's App invariant.
func (a *App) DefaultProcess() *process.Process {
	return a.processes[a.defaultLabel]
}

// Process looks up a process by label; empty label means "default".
func (a *App) Process(label string) (*process.Process, bool) {
	if label == "" {
		p := a.DefaultProcess()
		return p, p != nil
	}
	p, ok := a.processes[label]
	return p, ok
}

// Processes returns all processes in stable label order.
func (a *App) Processes() []*process.Process {
	out := make([]*process.Process, 0, len(a.processOrder))
	for _, label := range a.processOrder {
		out = append(out, a.processes[label])
	}
	return out
}

// IsRunning reports whether the app's default process has a live child.
func (a *App) IsRunning() bool {
	p := a.DefaultProcess()
	return p != nil && p.IsRunning()
}

// Touch sets last_hit to the current time if later than the existing
// value, preserving the monotonic-non-decreasing invariant (§3) even
// under concurrent callers using last-writer-wins semantics.
func (a *App) Touch() {
	now := time.Now()
	a.mu.Lock()
	if now.After(a.lastHit) {
		a.lastHit = now
	}
	a.mu.Unlock()
}

// LastHit returns the most recently observed hit time.
func (a *App) LastHit() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastHit
}

// Start starts every process of the app that is not already running
// (used by the proxy's autostart path); errors from individual processes
// are collected but do not stop the remaining starts.
func (a *App) Start() error {
	var errs []string
	for _, p := range a.Processes() {
		if p.IsRunning() {
			continue
		}
		if err := p.Start(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("start %s: %s", a.Name, strings.Join(errs, "; "))
	}
	return nil
}

// Stop stops every process of the app; errors are collected the same
// way as Start.
func (a *App) Stop() error {
	var errs []string
	for _, p := range a.Processes() {
		if !p.IsRunning() {
			continue
		}
		if err := p.Stop(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("stop %s: %s", a.Name, strings.Join(errs, "; "))
	}
	return nil
}

// AllStopped reports whether every process is in the Stopped state,
// used by Registry.shutdown's busy-poll.
func (a *App) AllStopped() bool {
	for _, p := range a.Processes() {
		if p.IsRunning() {
			return false
		}
	}
	return true
}
