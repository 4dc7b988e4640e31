package proxy

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/oxidux/oxidux/internal/app"
	"github.com/oxidux/oxidux/internal/process"
)

// serveMeta dispatches paths under MetaPrefix (spec.md §4.4.1).
func (s *Server) serveMeta(w http.ResponseWriter, r *http.Request, a *app.App) {
	action := strings.TrimPrefix(r.URL.Path, MetaPrefix)
	switch action {
	case "status":
		s.serveStatus(w, a)
	case "logstream":
		s.serveLogStream(w, r, a)
	case "tail":
		s.serveTail(w, a)
	case "metrics":
		s.serveMetrics(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// serveStatus writes a plain-text listing of each process of the app
// with its current lifecycle state (spec.md §4.4.1).
func (s *Server) serveStatus(w http.ResponseWriter, a *app.App) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, p := range a.Processes() {
		fmt.Fprintf(w, "%s: %s\n", p.Label(), p.State())
	}
}

// serveTail writes each process's most recently captured output,
// independent of any live logstream subscriber: a fresh SSE connection
// only sees lines emitted after it subscribes (spec.md §3's output-
// channel invariant), so this is the way to see why a cold start is
// stuck (spec.md §9, "Autostart loop") without that race.
func (s *Server) serveTail(w http.ResponseWriter, a *app.App) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, p := range a.Processes() {
		tail := p.Tail(4096)
		if len(tail) == 0 {
			continue
		}
		fmt.Fprintf(w, "== %s ==\n%s\n", p.Label(), tail)
	}
}

// serveLogStream streams every process's output broadcast as
// Server-Sent Events until the client disconnects (spec.md §4.4.1).
// A lagging client is dropped by the underlying broadcast, never
// stalling the producing process.
func (s *Server) serveLogStream(w http.ResponseWriter, r *http.Request, a *app.App) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	type subscription struct {
		ch <-chan process.Line
		id uint64
		o  *process.Output
	}
	subs := make([]subscription, 0, len(a.Processes()))
	for _, p := range a.Processes() {
		ch, id := p.Output().Subscribe(32)
		subs = append(subs, subscription{ch: ch, id: id, o: p.Output()})
	}
	defer func() {
		for _, sub := range subs {
			sub.o.Unsubscribe(sub.id)
		}
	}()

	lines := make(chan process.Line)
	done := r.Context().Done()
	for _, sub := range subs {
		go func(ch <-chan process.Line) {
			for line := range ch {
				select {
				case lines <- line:
				case <-done:
					return
				}
			}
		}(sub.ch)
	}

	for {
		select {
		case <-done:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s: %s\n\n", line.Process, line.Text)
			flusher.Flush()
		}
	}
}

// serveMetrics delegates to the Prometheus collector's handler, if
// metrics were wired in (SPEC_FULL.md §2's domain-stack entry for
// github.com/prometheus/client_golang).
func (s *Server) serveMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}
