// Package tmux wraps the tmux(1) binary: one detached session per
// supervised process, addressed by a process-wide socket name so the
// control-plane client can later attach to exactly the session the
// daemon created.
package tmux

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Session options applied to every session this package creates. They
// are cosmetic (no effect on the lifecycle state machine) but make an
// attached operator's life easier: the pane survives the child exiting
// so its final output stays visible, the mouse can be used to scroll,
// and C-x detaches without killing the window.
const (
	sessionRemainOnExit = "remain-on-exit on"
	sessionMouse        = "mouse on"
	sessionStatusRight  = "Press C-x to disconnect"
	sessionDetachKey    = "C-x"
)

// Runner drives a tmux server over a named control socket. Implementations
// include Exec (the real tmux binary) and a Mock for tests.
type Runner interface {
	// NewSession creates a new detached session named sessionName whose
	// first pane runs shellCommand, and returns the PID of that pane's
	// first process.
	NewSession(sessionName, shellCommand string) (pid int, err error)
	// RespawnWindow re-runs shellCommand in the first window of an
	// existing session and returns the new pane PID. Returns an error if
	// the session does not exist.
	RespawnWindow(sessionName, shellCommand string) (pid int, err error)
	// PipePane tees the session's first pane output into fifoPath.
	PipePane(sessionName, fifoPath string) error
	// KillSession destroys a single session by name. Not finding it is
	// not an error.
	KillSession(sessionName string) error
	// KillServer tears down the entire tmux server for this socket.
	KillServer() error
	// ListSessions returns "name" -> pane PID for every live session.
	ListSessions() (map[string]int, error)
}

// Exec drives a real tmux(1) process over a private control socket, so
// oxidux's sessions never collide with a developer's own tmux usage.
type Exec struct {
	SocketName string
}

// New returns an Exec runner bound to the given tmux control socket name.
func New(socketName string) *Exec {
	return &Exec{SocketName: socketName}
}

func (e *Exec) baseArgs() []string {
	return []string{"-L", e.SocketName, "-f", "/dev/null"}
}

func (e *Exec) run(args ...string) (string, error) {
	cmd := exec.Command("tmux", append(e.baseArgs(), args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// NewSession creates a detached session, sets the cosmetic options, and
// returns the first pane's PID as reported by tmux itself (-P -F).
func (e *Exec) NewSession(sessionName, shellCommand string) (int, error) {
	out, err := e.run("new-session", "-s", sessionName, "-d", "-P", "-F", "#{pane_pid}", shellCommand)
	if err != nil {
		return 0, err
	}

	if _, err := e.run(append([]string{"set", "-t", sessionName}, strings.Fields(sessionRemainOnExit)...)...); err != nil {
		return 0, err
	}
	if _, err := e.run(append([]string{"set", "-t", sessionName}, strings.Fields(sessionMouse)...)...); err != nil {
		return 0, err
	}
	if _, err := e.run("set", "-t", sessionName, "status-right", sessionStatusRight); err != nil {
		return 0, err
	}
	if _, err := e.run("bind-key", "-n", sessionDetachKey, "detach-client"); err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("non-numeric pane PID from tmux: %q: %w", out, err)
	}
	return pid, nil
}

// RespawnWindow re-runs shellCommand in an existing session's first
// window and returns the new pane PID.
func (e *Exec) RespawnWindow(sessionName, shellCommand string) (int, error) {
	out, err := e.run("respawn-window", "-k", "-t", sessionName, "-P", "-F", "#{pane_pid}", shellCommand)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("non-numeric pane PID from tmux: %q: %w", out, err)
	}
	return pid, nil
}

// PipePane tees the session's pane output to fifoPath via `cat >>`.
func (e *Exec) PipePane(sessionName, fifoPath string) error {
	_, err := e.run("pipe-pane", "-t", sessionName, fmt.Sprintf("cat >> %s", shellQuote(fifoPath)))
	return err
}

// KillSession destroys a single session. Tmux's own "session not found"
// error is swallowed since the caller's intent (no session by that name)
// is already satisfied.
func (e *Exec) KillSession(sessionName string) error {
	_, err := e.run("kill-session", "-t", sessionName)
	if err != nil && strings.Contains(err.Error(), "session not found") {
		return nil
	}
	return err
}

// KillServer tears down the entire tmux server for this socket.
func (e *Exec) KillServer() error {
	_, err := e.run("kill-server")
	if err != nil && strings.Contains(err.Error(), "no server running") {
		return nil
	}
	return err
}

// ListSessions returns the live session name -> pane PID map.
func (e *Exec) ListSessions() (map[string]int, error) {
	out, err := e.run("list-sessions", "-F", "#{session_name}|#{pane_pid}")
	if err != nil {
		if strings.Contains(err.Error(), "no server running") {
			return map[string]int{}, nil
		}
		return nil, err
	}

	sessions := make(map[string]int)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			continue
		}
		pid, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		sessions[parts[0]] = pid
	}
	return sessions, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
