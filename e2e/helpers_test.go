// Package e2e exercises the concrete end-to-end scenarios from
// spec.md §8 against the fully wired core: registry, resolver, proxy
// front-end, and control-plane server, with a mock tmux runner
// standing in for the real multiplexer binary.
package e2e

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/oxidux/oxidux/internal/app"
	"github.com/oxidux/oxidux/internal/config"
	"github.com/oxidux/oxidux/internal/control"
	"github.com/oxidux/oxidux/internal/events"
	"github.com/oxidux/oxidux/internal/proxy"
	"github.com/oxidux/oxidux/internal/testutil"
	"github.com/oxidux/oxidux/internal/tmux"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stack bundles the wired components a scenario test needs.
type stack struct {
	registry *app.Registry
	resolver *app.Resolver
	proxy    *proxy.Server
}

// noSourceConfig is a ConfigSource with nothing on disk; scenarios
// that pre-register apps via registry.AddApp never hit it.
type noSourceConfig struct{}

func (noSourceConfig) LoadApps() ([]config.App, error) { return nil, nil }

func newStack(t *testing.T, domain string) *stack {
	t.Helper()
	logger := testLogger()
	bus := events.NewBus(logger)
	registry := app.New(config.Global{Domain: domain, IdleTimeoutSecs: 3600}, tmux.NewMock(), t.TempDir(), bus, logger)
	resolver := app.NewResolver(registry, noSourceConfig{}, logger)
	p := proxy.NewServer(proxy.Config{
		Resolver: resolver,
		Registry: registry,
		Domain:   domain,
		Logger:   logger,
	})
	return &stack{registry: registry, resolver: resolver, proxy: p}
}

// startEchoUpstream binds a plain HTTP server on 127.0.0.1:port that
// echoes the request back as JSON, standing in for scenario 1/2/3's
// "trivial HTTP echo server on $PORT".
func startEchoUpstream(t *testing.T, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", netAddr(port))
	if err != nil {
		t.Fatalf("listen on upstream port %d: %v", port, err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(echoHandler)}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
}

func netAddr(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"url":"` + r.URL.RequestURI() + `","headers":{"host":"` + r.Host + `"},"body":"` + string(body) + `"}`))
}

func waitUntilListening(t *testing.T, port int) {
	t.Helper()
	err := testutil.WaitForCondition(2*time.Second, 10*time.Millisecond, "upstream listening", func() bool {
		conn, err := net.Dial("tcp", netAddr(port))
		if err != nil {
			return false
		}
		conn.Close()
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
}

// controlStack wraps a registry plus a running control.Server over a
// temp Unix socket, for the control-plane scenarios.
type controlStack struct {
	registry *app.Registry
	server   *control.Server
	client   *control.Client
}

func newControlStack(t *testing.T) *controlStack {
	t.Helper()
	logger := testLogger()
	bus := events.NewBus(logger)
	registry := app.New(config.Global{Domain: "test", IdleTimeoutSecs: 3600}, tmux.NewMock(), t.TempDir(), bus, logger)

	sockPath := testutil.FreeSocket(t)
	srv, err := control.NewServer(sockPath, registry, logger)
	if err != nil {
		t.Fatalf("control.NewServer: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	return &controlStack{registry: registry, server: srv, client: control.NewClient(sockPath)}
}
