package app

import (
	"testing"

	"github.com/oxidux/oxidux/internal/config"
	"github.com/oxidux/oxidux/internal/tmux"
)

type fakeSource struct {
	apps []config.App
	err  error
}

func (f fakeSource) LoadApps() ([]config.App, error) { return f.apps, f.err }

func TestCanonicalizePenultimateLabel(t *testing.T) {
	cases := map[string]string{
		"app.test":         "app",
		"sub.app.test":     "app",
		"sub.sub2.app.test": "app",
		"app.test:8080":    "app",
		"localhost":        "localhost",
	}
	for host, want := range cases {
		if got := Canonicalize(host); got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", host, got, want)
		}
	}
}

func TestResolveReturnsExistingApp(t *testing.T) {
	r := testRegistry(t)
	if _, err := r.AddApp(config.App{Name: "myapp", Directory: t.TempDir(), Command: "true"}); err != nil {
		t.Fatalf("AddApp: %v", err)
	}

	resolver := NewResolver(r, fakeSource{}, nil)
	a, err := resolver.Resolve("myapp.test")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a == nil || a.Name != "myapp" {
		t.Fatalf("expected myapp, got %v", a)
	}
}

func TestResolveRegistersOnFirstHit(t *testing.T) {
	r := testRegistry(t)
	dir := t.TempDir()
	source := fakeSource{apps: []config.App{{Name: "fresh", Directory: dir, Command: "true"}}}
	resolver := NewResolver(r, source, nil)

	a, err := resolver.Resolve("fresh.test")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a == nil || a.Name != "fresh" {
		t.Fatalf("expected newly registered app fresh, got %v", a)
	}

	// Second resolve must hit the registry directly, without consulting
	// the source again.
	again, err := resolver.Resolve("fresh.test")
	if err != nil {
		t.Fatalf("Resolve (second): %v", err)
	}
	if again != a {
		t.Fatalf("expected the same App instance on re-resolve")
	}
}

func TestResolveNoMatchReturnsNilNil(t *testing.T) {
	r := testRegistry(t)
	resolver := NewResolver(r, fakeSource{}, nil)

	a, err := resolver.Resolve("ghost.test")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a != nil {
		t.Fatalf("expected nil app for unmatched host, got %v", a)
	}
}

func TestResolveMatchesAliasFromSource(t *testing.T) {
	r := testRegistry(t)
	dir := t.TempDir()
	source := fakeSource{apps: []config.App{{Name: "real", Aliases: []string{"nick"}, Directory: dir, Command: "true"}}}
	resolver := NewResolver(r, source, nil)

	a, err := resolver.Resolve("nick.test")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a == nil || a.Name != "real" {
		t.Fatalf("expected alias match to register real, got %v", a)
	}
}

func TestResolveDirectRegistryBypassesSource(t *testing.T) {
	r := New(config.Global{Domain: "test"}, tmux.NewMock(), t.TempDir(), nil, nil)
	if _, err := r.AddApp(config.App{Name: "direct", Directory: t.TempDir(), Command: "true"}); err != nil {
		t.Fatalf("AddApp: %v", err)
	}

	resolver := NewResolver(r, nil, nil)
	a, err := resolver.Resolve("direct.test")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a == nil || a.Name != "direct" {
		t.Fatalf("expected direct, got %v", a)
	}
}
