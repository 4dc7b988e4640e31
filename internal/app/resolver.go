package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/oxidux/oxidux/internal/config"
)

// ConfigSource reloads app configuration from disk on a resolver miss,
// standing in for the external config loader (spec.md §1's "on-disk
// configuration loader" collaborator). Registry.AddApp wants a
// config.App record with an already-expanded Directory.
type ConfigSource interface {
	LoadApps() ([]config.App, error)
}

// Resolver maps an inbound hostname to a registered App, instantiating
// one from configuration on first sight (spec.md §4.3).
type Resolver struct {
	registry *Registry
	source   ConfigSource
	logger   *slog.Logger
}

// NewResolver builds a Resolver over registry, reloading apps from
// source when the registry has no match for a candidate name.
func NewResolver(registry *Registry, source ConfigSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{registry: registry, source: source, logger: logger}
}

// Canonicalize extracts the candidate app name from an inbound
// hostname per spec.md §4.3 step 1: split on ".", take the
// penultimate label ("app" from both "app.test" and "sub.app.test");
// with no dot at all, the whole hostname is the candidate.
func Canonicalize(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	// Strip a port suffix ("app.test:8080") before splitting on dots.
	if i := strings.LastIndex(host, ":"); i >= 0 {
		if _, err := parsePort(host[i+1:]); err == nil {
			host = host[:i]
		}
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}
	return labels[len(labels)-2]
}

func parsePort(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty port")
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not numeric")
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// Resolve maps host to its owning App. It first checks the in-memory
// registry, then falls back to reloading configuration from disk and
// registering a new App on first hit (spec.md §4.3 steps 2-4). Returns
// (nil, nil) when no app matches anywhere.
func (r *Resolver) Resolve(host string) (*App, error) {
	candidate := Canonicalize(host)

	if a, err := r.registry.FindAppByName(candidate); err != nil {
		return nil, err
	} else if a != nil {
		return a, nil
	}

	if r.source == nil {
		return nil, nil
	}

	cfgs, err := r.source.LoadApps()
	if err != nil {
		return nil, fmt.Errorf("reload app config: %w", err)
	}

	var match *config.App
	for i := range cfgs {
		c := &cfgs[i]
		if c.Name == candidate {
			match = c
			break
		}
		for _, alias := range c.Aliases {
			if alias == candidate {
				match = c
				break
			}
		}
		if match != nil {
			break
		}
	}
	if match == nil {
		return nil, nil
	}

	// Read-locked re-check: a concurrent first-hit may have registered
	// this app while the config was being loaded. There is no
	// single-flight serialization, so two resolvers can both load the
	// config; AddApp repeats the check under its write lock, so the app
	// is still registered only once.
	if a, err := r.registry.FindAppByName(candidate); err != nil {
		return nil, err
	} else if a != nil {
		return a, nil
	}

	a, err := r.registry.AddApp(*match)
	if err != nil {
		return nil, fmt.Errorf("register app %q: %w", match.Name, err)
	}
	r.logger.Info("app registered on first hit", "app", a.Name, "host", host)
	return a, nil
}
