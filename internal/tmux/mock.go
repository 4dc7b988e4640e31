package tmux

import "fmt"

// Mock is a test double for Runner, recording calls the way the
// teacher's process.MockSpawner does for ProcessSpawner.
type Mock struct {
	NewSessionFn     func(sessionName, shellCommand string) (int, error)
	RespawnWindowFn  func(sessionName, shellCommand string) (int, error)
	PipePaneFn       func(sessionName, fifoPath string) error
	KillSessionFn    func(sessionName string) error
	KillServerFn     func() error
	ListSessionsFn   func() (map[string]int, error)
	NewSessionCalls  []string
	RespawnCalls     []string
	KillSessionCalls []string
	nextPID          int
	sessions         map[string]int
}

// NewMock returns a Mock that behaves like a healthy tmux server: every
// NewSession succeeds with an incrementing PID, and RespawnWindow fails
// until a session with that name has been created.
func NewMock() *Mock {
	return &Mock{nextPID: 2000, sessions: make(map[string]int)}
}

func (m *Mock) NewSession(sessionName, shellCommand string) (int, error) {
	m.NewSessionCalls = append(m.NewSessionCalls, sessionName)
	if m.NewSessionFn != nil {
		return m.NewSessionFn(sessionName, shellCommand)
	}
	m.nextPID++
	m.sessions[sessionName] = m.nextPID
	return m.nextPID, nil
}

func (m *Mock) RespawnWindow(sessionName, shellCommand string) (int, error) {
	m.RespawnCalls = append(m.RespawnCalls, sessionName)
	if m.RespawnWindowFn != nil {
		return m.RespawnWindowFn(sessionName, shellCommand)
	}
	if _, ok := m.sessions[sessionName]; !ok {
		return 0, fmt.Errorf("session not found: %s", sessionName)
	}
	m.nextPID++
	m.sessions[sessionName] = m.nextPID
	return m.nextPID, nil
}

func (m *Mock) PipePane(sessionName, fifoPath string) error {
	if m.PipePaneFn != nil {
		return m.PipePaneFn(sessionName, fifoPath)
	}
	return nil
}

func (m *Mock) KillSession(sessionName string) error {
	m.KillSessionCalls = append(m.KillSessionCalls, sessionName)
	if m.KillSessionFn != nil {
		return m.KillSessionFn(sessionName)
	}
	delete(m.sessions, sessionName)
	return nil
}

func (m *Mock) KillServer() error {
	if m.KillServerFn != nil {
		return m.KillServerFn()
	}
	m.sessions = make(map[string]int)
	return nil
}

func (m *Mock) ListSessions() (map[string]int, error) {
	if m.ListSessionsFn != nil {
		return m.ListSessionsFn()
	}
	out := make(map[string]int, len(m.sessions))
	for k, v := range m.sessions {
		out[k] = v
	}
	return out, nil
}
