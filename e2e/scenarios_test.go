package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oxidux/oxidux/internal/config"
	"github.com/oxidux/oxidux/internal/control"
)

type echoBody struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// Scenario 1 (spec.md §8): proxy to a configured fixed port.
func TestProxyToConfiguredPort(t *testing.T) {
	s := newStack(t, "test")
	port := 19585

	if _, err := s.registry.AddApp(config.App{
		Name:      "proxy_test",
		Directory: t.TempDir(),
		Port:      &port,
		Command:   "true",
	}); err != nil {
		t.Fatalf("AddApp: %v", err)
	}

	startEchoUpstream(t, port)
	waitUntilListening(t, port)

	front := httptest.NewServer(s.proxy)
	defer front.Close()

	req, err := http.NewRequest(http.MethodGet, front.URL+"/proxy-test", strings.NewReader("Hello!"))
	if err != nil {
		t.Fatal(err)
	}
	req.Host = "proxy_test.test"

	resp, err := front.Client().Do(req)
	if err != nil {
		t.Fatalf("proxy request: %v", err)
	}
	defer resp.Body.Close()

	var got echoBody
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode echo body: %v (%s)", err, raw)
	}

	if got.URL != "/proxy-test" {
		t.Errorf("url = %q, want /proxy-test", got.URL)
	}
	if got.Headers["host"] != "proxy_test.test" {
		t.Errorf("headers.host = %q, want proxy_test.test", got.Headers["host"])
	}
	if got.Body != "Hello!" {
		t.Errorf("body = %q, want Hello!", got.Body)
	}
}

// Scenario 2 (spec.md §8): a subdomain below the app segment routes to
// the same app.
func TestSubdomainRouting(t *testing.T) {
	s := newStack(t, "test")
	port := 19586

	if _, err := s.registry.AddApp(config.App{
		Name:      "proxy_test",
		Directory: t.TempDir(),
		Port:      &port,
		Command:   "true",
	}); err != nil {
		t.Fatalf("AddApp: %v", err)
	}

	startEchoUpstream(t, port)
	waitUntilListening(t, port)

	front := httptest.NewServer(s.proxy)
	defer front.Close()

	req, _ := http.NewRequest(http.MethodGet, front.URL+"/", nil)
	req.Host = "sub.proxy_test.test"

	resp, err := front.Client().Do(req)
	if err != nil {
		t.Fatalf("proxy request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

// Scenario 3 (spec.md §8): alias routing, including subdomains of the alias.
func TestAliasRouting(t *testing.T) {
	s := newStack(t, "test")
	port := 19587

	if _, err := s.registry.AddApp(config.App{
		Name:      "appname",
		Aliases:   []string{"appalias"},
		Directory: t.TempDir(),
		Port:      &port,
		Command:   "true",
	}); err != nil {
		t.Fatalf("AddApp: %v", err)
	}

	startEchoUpstream(t, port)
	waitUntilListening(t, port)

	front := httptest.NewServer(s.proxy)
	defer front.Close()

	for _, host := range []string{"appalias.test", "sub.appalias.test"} {
		req, _ := http.NewRequest(http.MethodGet, front.URL+"/", nil)
		req.Host = host
		resp, err := front.Client().Do(req)
		if err != nil {
			t.Fatalf("proxy request for %s: %v", host, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("host %s: status = %d, want 200", host, resp.StatusCode)
		}
	}
}

// Scenario 4 (spec.md §8): a missing host renders the apps-list page.
func TestMissingHostRendersAppsList(t *testing.T) {
	s := newStack(t, "test")
	front := httptest.NewServer(s.proxy)
	defer front.Close()

	req, _ := http.NewRequest(http.MethodGet, front.URL+"/", nil)
	req.Host = "ghost.test"

	resp, err := front.Client().Do(req)
	if err != nil {
		t.Fatalf("proxy request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "App not found") {
		t.Errorf("body missing %q: %s", "App not found", body)
	}
	if !strings.Contains(string(body), "ghost") {
		t.Errorf("body missing %q: %s", "ghost", body)
	}
}

// Scenario 5 (spec.md §8): Ping over the control socket.
func TestControlPing(t *testing.T) {
	cs := newControlStack(t)
	raw, err := cs.client.Ping()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if string(raw) != "pong" {
		t.Fatalf("Ping = %q, want pong", raw)
	}
}

// Scenario 6 (spec.md §8): Stop by name removes the app from the registry.
func TestControlStopByName(t *testing.T) {
	cs := newControlStack(t)
	if _, err := cs.registry.AddApp(config.App{Name: "a", Directory: "/", Command: "true"}); err != nil {
		t.Fatalf("AddApp: %v", err)
	}

	name := "a"
	resp, err := cs.client.Stop(&name, "/")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	status, ok := resp.(control.StatusResponse)
	if !ok {
		t.Fatalf("response type = %T, want StatusResponse", resp)
	}
	if status.Message != "Stopping a" {
		t.Errorf("message = %q, want %q", status.Message, "Stopping a")
	}

	a, err := cs.registry.FindAppByName("a")
	if err != nil {
		t.Fatalf("FindAppByName: %v", err)
	}
	if a != nil {
		t.Fatalf("expected app %q to be removed", "a")
	}
}
