package control

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/oxidux/oxidux/internal/app"
	"github.com/oxidux/oxidux/internal/config"
)

// SocketName is the control socket's fixed filename under the config
// directory (spec.md §6, "oxidux.sock").
const SocketName = "oxidux.sock"

// Server accepts control-plane connections on a local Unix stream
// socket and dispatches each one-line JSON command to the registry
// (spec.md §4.5).
type Server struct {
	registry *app.Registry
	listener net.Listener
	logger   *slog.Logger
}

// NewServer binds a Unix socket at path, removing any stale file first
// (spec.md §4.5).
func NewServer(path string, registry *app.Registry, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("control: listen on %s: %w", path, err)
	}
	return &Server{registry: registry, listener: ln, logger: logger}, nil
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("control: remove stale socket %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("control: stat %s: %w", path, err)
	}
	return nil
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			return fmt.Errorf("control: accept: %w", err)
		}
		go s.handle(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func isClosedErr(err error) bool {
	return err != nil && (os.IsTimeout(err) || err.Error() == "use of closed network connection" ||
		func() bool {
			ne, ok := err.(*net.OpError)
			return ok && ne.Err != nil && ne.Err.Error() == "use of closed network connection"
		}())
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return
	}

	cmd, err := DecodeCommand(line)
	if err != nil {
		s.logger.Error("control: bad command", "error", err)
		return
	}

	if _, ok := cmd.(PingCommand); ok {
		if _, err := conn.Write([]byte("pong")); err != nil {
			s.logger.Error("control: write pong failed", "error", err)
		}
		return
	}

	resp := s.dispatch(cmd)
	data, err := EncodeResponse(resp)
	if err != nil {
		s.logger.Error("control: encode response failed", "error", err)
		return
	}
	if _, err := conn.Write(data); err != nil {
		s.logger.Error("control: write response failed", "error", err)
	}
}

func (s *Server) dispatch(cmd Command) Response {
	switch c := cmd.(type) {
	case RestartCommand:
		return s.handleRestart(c)
	case ConnectCommand:
		return s.handleConnect(c)
	case StopCommand:
		return s.handleStop(c)
	default:
		return NotFoundResponse{Message: fmt.Sprintf("unsupported command %T", cmd)}
	}
}

// resolveProcess finds the app owning directory and the process named
// by processName (nil/"" meaning the app's default process), per
// spec.md §4.5's "directory is used to locate the owning app" and
// §4.5's process_name-absent-means-default rule (confirmed against
// the original's ipc_command.rs directory-lookup fallback, SPEC_FULL.md §3).
func (s *Server) resolveProcess(processName *string, directory string) (*app.App, string, bool) {
	a, err := s.registry.FindAppForDirectory(directory)
	if err != nil || a == nil {
		return nil, "", false
	}
	label := ""
	if processName != nil {
		label = *processName
	}
	p, ok := a.Process(label)
	if !ok {
		return nil, "", false
	}
	return a, p.Label(), true
}

func (s *Server) handleRestart(c RestartCommand) Response {
	a, label, ok := s.resolveProcess(c.ProcessName, c.Directory)
	if !ok {
		return NotFoundResponse{Message: fmt.Sprintf("no process found for directory %q", c.Directory)}
	}
	p, _ := a.Process(label)
	details := ConnectionDetailsResponse{
		AppName:     a.Name,
		TmuxSocket:  config.TmuxSocket,
		TmuxSession: p.SessionName(),
	}
	if err := p.Restart(); err != nil {
		s.logger.Error("control: restart failed", "app", a.Name, "process", label, "error", err)
	}
	return details
}

func (s *Server) handleConnect(c ConnectCommand) Response {
	a, label, ok := s.resolveProcess(c.ProcessName, c.Directory)
	if !ok {
		return NotFoundResponse{Message: fmt.Sprintf("no process found for directory %q", c.Directory)}
	}
	p, _ := a.Process(label)
	return ConnectionDetailsResponse{
		AppName:     a.Name,
		TmuxSocket:  config.TmuxSocket,
		TmuxSession: p.SessionName(),
	}
}

func (s *Server) handleStop(c StopCommand) Response {
	var a *app.App
	var err error
	if c.AppName != nil && *c.AppName != "" {
		a, err = s.registry.FindAppByName(*c.AppName)
	} else {
		a, err = s.registry.FindAppForDirectory(c.Directory)
	}
	if err != nil || a == nil {
		return NotFoundResponse{Message: fmt.Sprintf("no app found for directory %q", c.Directory)}
	}

	if err := a.Stop(); err != nil {
		s.logger.Error("control: stop failed", "app", a.Name, "error", err)
	}
	if err := s.registry.RemoveAppByName(a.Name); err != nil {
		s.logger.Error("control: remove failed", "app", a.Name, "error", err)
	}
	return StatusResponse{Message: "Stopping " + a.Name}
}
