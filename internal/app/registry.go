package app

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/oxidux/oxidux/internal/config"
	"github.com/oxidux/oxidux/internal/events"
	"github.com/oxidux/oxidux/internal/tmux"
)

const (
	// basePort is the first port handed out by the monotonic allocator
	// (spec.md §4.2, "starting at a fixed base such as 7500").
	basePort = 7500

	lockTimeout = 2 * time.Second

	// defaultShutdownPoll is the busy-poll interval used by shutdown()
	// while waiting for every process to report Stopped.
	defaultShutdownPoll = 200 * time.Millisecond
)

// Registry is the process-wide, lock-guarded set of Apps: the ordered
// app list, the cloned Global configuration, and the next-port cursor.
type Registry struct {
	lock *timedRWLock

	apps     []*App
	nextPort int

	global  config.Global
	runner  tmux.Runner
	fifoDir string
	bus     *events.Bus
	logger  *slog.Logger
}

// New constructs an empty Registry seeded with global and an immutable
// snapshot of the dependencies every App's Processes are built with.
func New(global config.Global, runner tmux.Runner, fifoDir string, bus *events.Bus, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		lock:     newTimedRWLock(),
		nextPort: basePort,
		global:   global,
		runner:   runner,
		fifoDir:  fifoDir,
		bus:      bus,
		logger:   logger,
	}
}

// FindAppByName performs a linear scan for an app whose name or alias
// equals name.
func (r *Registry) FindAppByName(name string) (*App, error) {
	if err := r.lock.rlock(lockTimeout); err != nil {
		return nil, err
	}
	defer r.lock.runlock()

	for _, a := range r.apps {
		if a.MatchesHost(name) {
			return a, nil
		}
	}
	return nil, nil
}

// FindAppForDirectory returns the app whose expanded directory is a
// prefix of dir, per spec.md §4.2/§4.5's directory-based lookup.
func (r *Registry) FindAppForDirectory(dir string) (*App, error) {
	if err := r.lock.rlock(lockTimeout); err != nil {
		return nil, err
	}
	defer r.lock.runlock()

	for _, a := range r.apps {
		if dirHasPrefix(dir, a.Directory) {
			return a, nil
		}
	}
	return nil, nil
}

// dirHasPrefix reports whether dir is base itself or a path beneath it,
// unlike a bare strings.HasPrefix which would also match unrelated
// sibling directories that merely share a string prefix (e.g. "/a/app"
// and "/a/app-backup").
func dirHasPrefix(dir, base string) bool {
	if base == "" {
		return false
	}
	if dir == base {
		return true
	}
	return strings.HasPrefix(dir, strings.TrimRight(base, string(filepath.Separator))+string(filepath.Separator))
}

// List returns a snapshot of the registered apps in registration order.
func (r *Registry) List() ([]*App, error) {
	if err := r.lock.rlock(lockTimeout); err != nil {
		return nil, err
	}
	defer r.lock.runlock()

	out := make([]*App, len(r.apps))
	copy(out, r.apps)
	return out, nil
}

// AddApp assigns the next monotonic port, constructs the App (and its
// Processes), appends it under the write lock, and returns it.
//
// If an app named cfg.Name is already registered, AddApp returns that
// app and allocates no port. The check runs under the same write lock
// as the insert, so concurrent first-hit resolutions of one name
// register it once.
func (r *Registry) AddApp(cfg config.App) (*App, error) {
	if err := r.lock.lock(lockTimeout); err != nil {
		return nil, err
	}
	defer r.lock.unlock()

	for _, existing := range r.apps {
		if existing.Name == cfg.Name {
			return existing, nil
		}
	}

	port := r.nextPort
	if cfg.Port != nil {
		port = *cfg.Port
	} else {
		r.nextPort++
	}

	a, err := newApp(cfg, port, r.global.Domain, r.runner, r.fifoDir, r.bus, r.logger)
	if err != nil {
		return nil, err
	}
	r.apps = append(r.apps, a)
	r.publish(events.AppAdded, a.Name)
	return a, nil
}

// RemoveAppByName drops the app from the list. The caller is
// responsible for having stopped it first (spec.md §4.2).
func (r *Registry) RemoveAppByName(name string) error {
	if err := r.lock.lock(lockTimeout); err != nil {
		return err
	}
	defer r.lock.unlock()

	for i, a := range r.apps {
		if a.Name == name {
			r.apps = append(r.apps[:i], r.apps[i+1:]...)
			r.publish(events.AppRemoved, name)
			return nil
		}
	}
	return fmt.Errorf("no such app: %s", name)
}

// Shutdown stops every app, busy-polls until all processes are
// Stopped or the deadline elapses, then clears the registry. Ordering
// among apps is unspecified; every stop is initiated before polling
// begins (spec.md §4.2).
func (r *Registry) Shutdown(deadline time.Duration) error {
	if err := r.lock.lock(lockTimeout); err != nil {
		return err
	}
	apps := make([]*App, len(r.apps))
	copy(apps, r.apps)
	r.lock.unlock()

	for _, a := range apps {
		if err := a.Stop(); err != nil {
			r.logger.Warn("stop during shutdown failed", "app", a.Name, "error", err)
		}
	}

	deadlineAt := time.Now().Add(deadline)
	for time.Now().Before(deadlineAt) {
		allStopped := true
		for _, a := range apps {
			if !a.AllStopped() {
				allStopped = false
				break
			}
		}
		if allStopped {
			break
		}
		time.Sleep(defaultShutdownPoll)
	}

	if err := r.lock.lock(lockTimeout); err != nil {
		return err
	}
	r.apps = nil
	r.lock.unlock()
	return nil
}

func (r *Registry) publish(t events.EventType, appName string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{Type: t, Data: map[string]string{"app": appName}})
}
