// Package process implements the per-process lifecycle state machine:
// a terminal-multiplexer-backed child, its liveness watchdog, output
// capture, and the escalating-kill stop/restart sequence.
package process

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/oxidux/oxidux/internal/events"
	"github.com/oxidux/oxidux/internal/logging"
	"github.com/oxidux/oxidux/internal/tmux"
)

// tailBufferSize bounds the per-process captured-output ring buffer
// (internal/logging.RingBuffer) used by Tail; independent of the live
// Output broadcast's subscriber buffers.
const tailBufferSize = 64 * 1024

// Default tunables from §4.1/§4.5: a 100ms watchdog tick and a 20s
// escalating-kill grace period. Overridable per Process for tests.
const (
	DefaultWatchdogInterval = 100 * time.Millisecond
	DefaultKillGrace        = 20 * time.Second
	lockTimeout             = 2 * time.Second
)

// Config describes a single supervised process: one label within an app.
type Config struct {
	AppName   string
	Label     string // e.g. "web"; the app's default process if present
	Port      int
	Command   string // shell command line
	Directory string // working directory, already expanded
}

// Process owns one terminal-multiplexer session's lifecycle.
type Process struct {
	cfg Config

	sm     *StateMachine
	output *Output
	tail   *logging.RingBuffer

	runner     tmux.Runner
	tmuxSocket string
	fifoPath   string

	bus    *events.Bus
	logger *slog.Logger

	lock timedLock

	watchdogInterval time.Duration
	killGrace        time.Duration

	mu           sync.Mutex // guards watchdogStop/deathOnce bookkeeping
	watchdogStop chan struct{}
	deathOnce    *sync.Once

	// aliveFn checks PID liveness; overridden by tests to avoid relying
	// on real OS PIDs from a mock tmux.Runner.
	aliveFn func(pid int) bool
}

func defaultAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// NewProcess constructs a Process in the Stopped state. fifoDir is the
// directory the per-process named FIFO is created in (one file per
// (app, process) pair, per the filesystem layout in §6).
func NewProcess(cfg Config, runner tmux.Runner, tmuxSocket, fifoDir string, bus *events.Bus, logger *slog.Logger) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	return &Process{
		cfg:              cfg,
		sm:               NewStateMachine(),
		output:           NewOutput(),
		tail:             logging.NewRingBuffer(tailBufferSize),
		runner:           runner,
		tmuxSocket:       tmuxSocket,
		fifoPath:         filepath.Join(fifoDir, fmt.Sprintf("%s_%s.pipe", cfg.AppName, cfg.Label)),
		bus:              bus,
		logger:           logger.With("app", cfg.AppName, "process", cfg.Label),
		lock:             newTimedLock(),
		watchdogInterval: DefaultWatchdogInterval,
		killGrace:        DefaultKillGrace,
		aliveFn:          defaultAlive,
	}
}

// SessionName is "<app>/<label>", also the tmux_session value returned
// in ConnectionDetails.
func (p *Process) SessionName() string { return p.cfg.AppName + "/" + p.cfg.Label }

func (p *Process) Label() string      { return p.cfg.Label }
func (p *Process) AppName() string    { return p.cfg.AppName }
func (p *Process) Port() int          { return p.cfg.Port }
func (p *Process) Directory() string  { return p.cfg.Directory }
func (p *Process) Command() string    { return p.cfg.Command }
func (p *Process) TmuxSocket() string { return p.tmuxSocket }
func (p *Process) Output() *Output    { return p.output }

// Tail returns up to n of the most recently captured output bytes,
// ANSI-stripped, regardless of whether any Output subscriber is
// currently attached. Useful for diagnosing a stuck autostart (spec.md
// §9) without racing a fresh logstream subscription against lines
// already emitted before it connected.
func (p *Process) Tail(n int) []byte { return p.tail.Read(n) }

// State returns the current lifecycle state.
func (p *Process) State() State { return p.sm.State() }

// PID returns the PID recorded for the current state, or 0.
func (p *Process) PID() int { return p.sm.PID() }

// IsRunning reports whether the process is in any non-Stopped state,
// matching App.is_running's "any process alive" semantics.
func (p *Process) IsRunning() bool { return p.sm.State() != Stopped }

// Start begins (or re-begins) the session. Valid only from Stopped.
func (p *Process) Start() error {
	if err := p.lock.lock(lockTimeout); err != nil {
		return err
	}
	defer p.lock.unlock()
	return p.startLocked()
}

func (p *Process) startLocked() error {
	if err := p.sm.RequestStart(); err != nil {
		p.logger.Warn("start rejected", "state", p.sm.State(), "error", err)
		return err
	}
	return p.launchLocked()
}

// launchLocked spawns the session once the state machine is in Starting:
// it publishes Starting, spawns, and moves to Running (or back to
// Stopped if the spawn fails).
func (p *Process) launchLocked() error {
	p.publishState(events.ProcessStateStarting)

	p.mu.Lock()
	p.deathOnce = &sync.Once{}
	p.mu.Unlock()

	shellCmd := p.buildShellCommand()
	pid, err := p.spawnSession(shellCmd)
	if err != nil {
		_ = p.sm.MarkStartFailed()
		p.publishState(events.ProcessStateStopped)
		return fmt.Errorf("start %s: %w", p.SessionName(), err)
	}

	if err := p.sm.MarkRunning(pid); err != nil {
		return fmt.Errorf("start %s: %w", p.SessionName(), err)
	}
	p.publishState(events.ProcessStateRunning)

	p.startOutputCapture()
	p.startWatchdog(pid)
	return nil
}

// buildShellCommand wraps the configured command in a login-interactive
// shell invocation, per §4.1: "cd <dir>; export PORT=<port>; exec <command>".
func (p *Process) buildShellCommand() string {
	inner := fmt.Sprintf("cd %s; export PORT=%d; exec %s", shellQuote(p.cfg.Directory), p.cfg.Port, p.cfg.Command)
	return fmt.Sprintf("%s -lc %s", loginShell(), shellQuote(inner))
}

func loginShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

func shellQuote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\\', '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	out = append(out, '\'')
	return string(out)
}

// spawnSession implements the respawn-then-recreate sequence from §4.1:
// try to respawn an existing window first; if that fails for any reason
// (no such session, a stale/colliding one), kill any session by that
// name and create a fresh detached one.
func (p *Process) spawnSession(shellCmd string) (int, error) {
	if pid, err := p.runner.RespawnWindow(p.SessionName(), shellCmd); err == nil {
		return pid, nil
	}

	if err := p.runner.KillSession(p.SessionName()); err != nil {
		p.logger.Debug("kill colliding session failed", "error", err)
	}

	pid, err := p.runner.NewSession(p.SessionName(), shellCmd)
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// startOutputCapture recreates the named FIFO, wires tmux's pipe-pane to
// it, and starts the line-framing reader goroutine.
func (p *Process) startOutputCapture() {
	p.tail.Reset()
	_ = os.Remove(p.fifoPath)
	if err := syscall.Mkfifo(p.fifoPath, 0644); err != nil {
		p.logger.Error("mkfifo failed", "path", p.fifoPath, "error", err)
		return
	}
	if err := p.runner.PipePane(p.SessionName(), p.fifoPath); err != nil {
		p.logger.Error("pipe-pane failed", "error", err)
		return
	}
	go p.readOutput()
}

func (p *Process) readOutput() {
	f, err := os.OpenFile(p.fifoPath, os.O_RDONLY, os.ModeNamedPipe)
	if err != nil {
		p.logger.Error("open fifo failed", "path", p.fifoPath, "error", err)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	identity := p.SessionName()
	for scanner.Scan() {
		p.handleLine(identity, scanner.Bytes())
	}

	// EOF: the pane closed, which means the child died. Treat it the
	// same as a failed watchdog liveness check.
	p.handleDeath()
}

// handleLine strips any ANSI escape sequences tmux's pane forwarded
// (the shell's own prompt/tool coloring), keeps a ring-buffer tail of
// the cleaned bytes for Tail, prints the line to stdout under oxidux's
// own deterministic per-process color, and publishes it to the live
// broadcast. The raw pane bytes never reach Output subscribers or the
// tail buffer undecorated.
func (p *Process) handleLine(identity string, raw []byte) {
	clean := string(logging.StripANSI(raw))
	p.tail.Write([]byte(clean + "\n"))
	fmt.Println(formatLine(identity, clean))
	p.output.Publish(Line{Process: identity, Text: clean})
}

// startWatchdog polls signal-0 liveness every watchdogInterval while the
// process remains in a non-terminal state with the given PID.
func (p *Process) startWatchdog(pid int) {
	stopCh := make(chan struct{})
	p.mu.Lock()
	p.watchdogStop = stopCh
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(p.watchdogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				state, curPID := p.sm.Snapshot()
				if state == Stopped || curPID != pid {
					return
				}
				if !p.aliveFn(pid) {
					p.handleDeath()
					return
				}
			}
		}
	}()
}

func (p *Process) stopWatchdog() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watchdogStop != nil {
		close(p.watchdogStop)
		p.watchdogStop = nil
	}
}

// handleDeath is the "process-died" handler from §4.1, reachable from
// either the watchdog or the FIFO reader's EOF. It is idempotent per
// lifecycle via deathOnce so both triggers racing does not double-fire.
func (p *Process) handleDeath() {
	p.mu.Lock()
	once := p.deathOnce
	p.mu.Unlock()
	if once == nil {
		return
	}

	once.Do(func() {
		p.stopWatchdog()
		shouldRestart := p.sm.ProcessDied()
		p.publishState(events.ProcessStateStopped)
		p.logger.Info("process died", "restart", shouldRestart)
		if shouldRestart {
			go func() {
				if err := p.Start(); err != nil {
					p.logger.Error("auto-restart failed", "error", err)
				}
			}()
		}
	})
}

// Stop sends SIGINT to the process group and arms the escalating
// killer. Valid from Running/Terminating/Restarting only.
func (p *Process) Stop() error {
	if err := p.lock.lock(lockTimeout); err != nil {
		return err
	}
	defer p.lock.unlock()

	pid, err := p.sm.RequestStop()
	if err != nil {
		p.logger.Warn("stop rejected", "state", p.sm.State(), "error", err)
		return err
	}
	p.publishState(events.ProcessStateTerminating)

	if err := signalGroup(pid, syscall.SIGINT); err != nil {
		p.logger.Warn("SIGINT failed", "pid", pid, "error", err)
	}
	p.armEscalatingKill(pid)
	return nil
}

// Restart is Start() from Stopped, or SIGINT-and-requeue from
// Running/Terminating. No-op with diagnostic from Starting/Restarting.
func (p *Process) Restart() error {
	if err := p.lock.lock(lockTimeout); err != nil {
		return err
	}
	defer p.lock.unlock()

	pid, fresh, err := p.sm.RequestRestart()
	if err != nil {
		p.logger.Warn("restart rejected", "state", p.sm.State(), "error", err)
		return err
	}
	if fresh {
		return p.launchLocked()
	}

	p.publishState(events.ProcessStateRestarting)
	if err := signalGroup(pid, syscall.SIGINT); err != nil {
		p.logger.Warn("SIGINT failed", "pid", pid, "error", err)
	}
	p.armEscalatingKill(pid)
	return nil
}

// armEscalatingKill re-checks state+PID after killGrace and SIGKILLs the
// process group if the process is still in a non-terminal state with the
// same PID, i.e. it ignored SIGINT.
func (p *Process) armEscalatingKill(pid int) {
	time.AfterFunc(p.killGrace, func() {
		state, curPID := p.sm.Snapshot()
		if (state == Terminating || state == Restarting) && curPID == pid {
			if err := signalGroup(pid, syscall.SIGKILL); err != nil {
				p.logger.Warn("SIGKILL failed", "pid", pid, "error", err)
			}
		}
	})
}

func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

func (p *Process) publishState(t events.EventType) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{
		Type: t,
		Data: map[string]string{
			"app":     p.cfg.AppName,
			"process": p.cfg.Label,
			"session": p.SessionName(),
		},
	})
}
