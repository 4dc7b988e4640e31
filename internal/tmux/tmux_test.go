package tmux

import "testing"

func TestMockNewSessionAssignsIncrementingPIDs(t *testing.T) {
	m := NewMock()

	pid1, err := m.NewSession("app/web", "cd /tmp; exec true")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	pid2, err := m.NewSession("app/worker", "cd /tmp; exec true")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if pid1 == pid2 {
		t.Fatalf("expected distinct PIDs, got %d and %d", pid1, pid2)
	}
}

func TestMockRespawnWindowFailsWithoutExistingSession(t *testing.T) {
	m := NewMock()
	if _, err := m.RespawnWindow("ghost/web", "true"); err == nil {
		t.Fatal("expected error respawning a nonexistent session")
	}
}

func TestMockRespawnWindowSucceedsAfterNewSession(t *testing.T) {
	m := NewMock()
	if _, err := m.NewSession("app/web", "true"); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := m.RespawnWindow("app/web", "true"); err != nil {
		t.Fatalf("RespawnWindow: %v", err)
	}
}

func TestMockKillSessionRemovesSession(t *testing.T) {
	m := NewMock()
	if _, err := m.NewSession("app/web", "true"); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := m.KillSession("app/web"); err != nil {
		t.Fatalf("KillSession: %v", err)
	}
	sessions, err := m.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions after kill, got %v", sessions)
	}
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote("it's a path")
	want := `'it'\''s a path'`
	if got != want {
		t.Fatalf("shellQuote() = %q, want %q", got, want)
	}
}
