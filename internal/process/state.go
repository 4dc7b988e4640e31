package process

import (
	"fmt"
	"sync"
)

// State represents a process lifecycle state. Unlike a supervisord-style
// state machine, the PID is part of the state itself once a process is
// alive: Running, Terminating, and Restarting all carry the PID of the
// terminal-multiplexer pane's first process.
type State int

const (
	Stopped     State = iota // no live child
	Starting                 // start in flight, no PID yet
	Running                  // child alive
	Terminating              // SIGINT sent, awaiting exit
	Restarting               // SIGINT sent, restart queued after exit
)

var stateNames = [...]string{
	"Stopped", "Starting", "Running", "Terminating", "Restarting",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("UNKNOWN(%d)", s)
}

// validTransitions defines allowed state transitions, per the table in
// the process lifecycle design: Stopped -> Starting -> Running ->
// {Terminating, Restarting} -> Stopped [-> Starting again for Restarting].
var validTransitions = map[State][]State{
	Stopped:     {Starting},
	Starting:    {Running, Stopped},
	Running:     {Terminating, Restarting},
	Terminating: {Stopped, Restarting},
	Restarting:  {Stopped, Starting},
}

// StateMachine guards a Process's lifecycle state and the PID associated
// with it. All methods are safe for concurrent use; external callers
// should still serialize logically-sequential operations (Start/Stop/
// Restart) through the owning Process's own lock, since a single state
// read-then-act here is not itself atomic with the spawn/signal side effect.
type StateMachine struct {
	mu    sync.Mutex
	state State
	pid   int
}

// NewStateMachine creates a state machine in the Stopped state.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: Stopped}
}

// State returns the current state.
func (sm *StateMachine) State() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// PID returns the PID recorded for the current (non-terminal) state, or
// 0 if there is none.
func (sm *StateMachine) PID() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.pid
}

// Snapshot returns the current state and PID together, atomically.
func (sm *StateMachine) Snapshot() (State, int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state, sm.pid
}

func (sm *StateMachine) transitionLocked(target State) error {
	for _, a := range validTransitions[sm.state] {
		if a == target {
			sm.state = target
			return nil
		}
	}
	return fmt.Errorf("cannot transition from %s to %s", sm.state, target)
}

// RequestStart accepts Stopped -> Starting only; any other current state
// is a no-op error (diagnostic), per the "requests in other states are
// no-ops" invariant.
func (sm *StateMachine) RequestStart() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if err := sm.transitionLocked(Starting); err != nil {
		return err
	}
	sm.pid = 0
	return nil
}

// MarkRunning records the PID learned from the multiplexer and moves
// Starting -> Running.
func (sm *StateMachine) MarkRunning(pid int) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if err := sm.transitionLocked(Running); err != nil {
		return err
	}
	sm.pid = pid
	return nil
}

// MarkStartFailed moves Starting -> Stopped after a failed spawn attempt.
func (sm *StateMachine) MarkStartFailed() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if err := sm.transitionLocked(Stopped); err != nil {
		return err
	}
	sm.pid = 0
	return nil
}

// RequestStop is valid from Running, Terminating, or Restarting (the
// latter two simply re-arm the same PID's escalating kill). It returns
// the PID that should receive SIGINT. Invalid from Starting/Stopped.
func (sm *StateMachine) RequestStop() (int, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	switch sm.state {
	case Running:
		if err := sm.transitionLocked(Terminating); err != nil {
			return 0, err
		}
		return sm.pid, nil
	case Terminating, Restarting:
		return sm.pid, nil
	default:
		return 0, fmt.Errorf("cannot stop from %s", sm.state)
	}
}

// RequestRestart handles all four cases from §4.1:
//   - Stopped: equivalent to Start; fresh reports true and the caller
//     should perform a normal Start instead of sending a signal.
//   - Running/Terminating: transitions to Restarting(pid), arming the
//     same escalating killer; fresh is false and pid is the one to signal.
//   - Starting/Restarting: no-op with diagnostic.
func (sm *StateMachine) RequestRestart() (pid int, fresh bool, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case Stopped:
		if err := sm.transitionLocked(Starting); err != nil {
			return 0, false, err
		}
		sm.pid = 0
		return 0, true, nil
	case Running:
		if err := sm.transitionLocked(Restarting); err != nil {
			return 0, false, err
		}
		return sm.pid, false, nil
	case Terminating:
		if err := sm.transitionLocked(Restarting); err != nil {
			return 0, false, err
		}
		return sm.pid, false, nil
	default:
		return 0, false, fmt.Errorf("cannot restart from %s", sm.state)
	}
}

// ProcessDied handles the watchdog's "signal 0 failed" and the FIFO
// reader's EOF notification uniformly: if the process was Restarting, it
// moves to Stopped and reports that a fresh start should be scheduled;
// otherwise it moves to Stopped unconditionally (a no-op if already
// Stopped).
func (sm *StateMachine) ProcessDied() (shouldRestart bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	wasRestarting := sm.state == Restarting
	sm.state = Stopped
	sm.pid = 0
	return wasRestarting
}
