// Package proxy implements the reverse-proxy front-end of spec.md
// §4.4: hostname dispatch, demand-start of the owning app, upstream
// forwarding, the autostart/missing-host fallback pages, and the meta
// endpoints under /__oxidux__/.
package proxy

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oxidux/oxidux/internal/app"
	"github.com/oxidux/oxidux/internal/metrics"
)

// MetaPrefix is the reserved meta-endpoint path prefix; it is never
// forwarded upstream (spec.md §4.4 step 3, §6).
const MetaPrefix = "/__oxidux__/"

// CertProvider mints a TLS certificate for a given SNI hostname. Its
// implementation (an auto-generated root CA signing per-hostname leaf
// certificates) is an external collaborator per spec.md §1/§6; the
// front-end only needs this narrow hook to drive the HTTPS listener.
type CertProvider interface {
	CertificateFor(hostname string) (*tls.Certificate, error)
}

// Server is the proxy front-end. One Server serves both the plain-HTTP
// and (if a CertProvider is configured) HTTPS listeners described in
// spec.md §4.4.2.
type Server struct {
	resolver *app.Resolver
	registry *app.Registry
	domain   string
	metrics  *metrics.Collector
	certs    CertProvider
	client   *http.Client
	logger   *slog.Logger
}

// Config configures a new Server.
type Config struct {
	Resolver *app.Resolver
	Registry *app.Registry
	Domain   string
	Metrics  *metrics.Collector // optional
	Certs    CertProvider       // optional; enables the HTTPS listener
	Logger   *slog.Logger
}

// NewServer builds a Server ready to be handed to http.Serve.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		resolver: cfg.Resolver,
		registry: cfg.Registry,
		domain:   cfg.Domain,
		metrics:  cfg.Metrics,
		certs:    cfg.Certs,
		logger:   logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
			// Upstream apps run plain HTTP on localhost; the front-end
			// never follows redirects transparently between hosts, it
			// just relays whatever the upstream returns.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// TLSConfig returns a *tls.Config driven by the server's CertProvider,
// or nil if none was configured (no HTTPS listener, per spec.md
// §4.4.2's "if an HTTPS listener is available").
func (s *Server) TLSConfig() *tls.Config {
	if s.certs == nil {
		return nil
	}
	return &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			return s.certs.CertificateFor(hello.ServerName)
		},
	}
}

// ServeHTTP implements spec.md §4.4's per-request pipeline.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := requestHost(r)

	a, err := s.resolver.Resolve(host)
	if err != nil {
		s.logger.Error("resolve failed", "host", host, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if a == nil {
		s.renderAppsList(w, host)
		return
	}

	if strings.HasPrefix(r.URL.Path, MetaPrefix) {
		s.serveMeta(w, r, a)
		return
	}

	a.Touch()
	s.forward(w, r, a)
}

// requestHost extracts the inbound hostname per spec.md §4.4 step 1:
// the Host header if present (net/http already folds this into
// r.Host for both HTTP/1.1 and HTTP/2, which carries :authority),
// with the port stripped.
func requestHost(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

func (s *Server) renderAppsList(w http.ResponseWriter, host string) {
	apps, err := s.registry.List()
	if err != nil {
		s.logger.Error("list apps failed", "error", err)
	}
	views := make([]appStatusView, 0, len(apps))
	for _, a := range apps {
		views = append(views, appStatusView{Name: a.Name, Domain: a.Domain, Running: a.IsRunning()})
	}
	renderMissingHost(w, host, views)
}

// forward builds the upstream request, proxies it to the app's
// assigned port, and streams the response back unchanged (spec.md
// §4.4 steps 5-6). On upstream error it falls back per step 7.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, a *app.App) {
	upstreamURL := fmt.Sprintf("http://localhost:%d%s", a.Port, r.URL.RequestURI())

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, r.Body)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	outReq.Proto = "HTTP/1.1"
	outReq.ProtoMajor = 1
	outReq.ProtoMinor = 1
	outReq.ContentLength = r.ContentLength

	outReq.Header = r.Header.Clone()
	// App header overrides are merged over the inbound headers, override
	// wins, base headers otherwise untouched (spec.md §9 / SPEC_FULL.md
	// §3, grounded in the original's headers_mut().extend()).
	for k, v := range a.Headers {
		outReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(outReq)
	if err != nil {
		s.handleUpstreamError(w, a, err)
		return
	}
	defer resp.Body.Close()

	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// handleUpstreamError implements spec.md §4.4 step 7: a running
// default process means the app just isn't answering yet; anything
// else triggers a best-effort autostart and the retry page.
func (s *Server) handleUpstreamError(w http.ResponseWriter, a *app.App, upstreamErr error) {
	s.logger.Warn("upstream error", "app", a.Name, "error", upstreamErr)

	if a.IsRunning() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "no response from server\n")
		return
	}

	if err := a.Start(); err != nil {
		s.logger.Warn("autostart failed", "app", a.Name, "error", err)
	}
	renderAutostart(w, a.Name)
}
