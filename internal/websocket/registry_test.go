package websocket

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"lingocast/pkg/types"
)

type fakeWire struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeWire) ReadMessage() (int, []byte, error) {
	select {}
}

func (f *fakeWire) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("wire closed")
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeWire) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeWire) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWire) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeWire) frame(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[i]
}

func waitForFrames(t *testing.T, w *fakeWire, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for w.frameCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d frames, have %d", n, w.frameCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestConnection(id string) (*Connection, *fakeWire) {
	w := &fakeWire{}
	return NewConnection(id, w, time.Second), w
}

func TestConnection_WritesAreOrdered(t *testing.T) {
	conn, w := newTestConnection("c1")
	defer conn.Close()

	for _, text := range []string{"one", "two", "three"} {
		if err := conn.WriteJSON(map[string]string{"text": text}); err != nil {
			t.Fatalf("unexpected write error: %v", err)
		}
	}
	waitForFrames(t, w, 3)

	var got []string
	for i := 0; i < 3; i++ {
		var m map[string]string
		if err := json.Unmarshal(w.frame(i), &m); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		got = append(got, m["text"])
	}
	want := []string{"one", "two", "three"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames out of order: got %v", got)
		}
	}
}

func TestConnection_WriteAfterClose(t *testing.T) {
	conn, _ := newTestConnection("c1")
	conn.Close()

	if err := conn.WriteJSON(map[string]string{}); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
	// Double close is safe.
	if err := conn.Close(); err != nil {
		t.Errorf("unexpected error on double close: %v", err)
	}
}

func TestRegistry_AddRemove(t *testing.T) {
	registry := NewRegistry(30*time.Second, nil)
	conn, _ := newTestConnection("c1")
	defer conn.Close()

	if err := registry.Add(conn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if registry.ActiveConnectionCount() != 1 {
		t.Fatalf("expected 1 connection, got %d", registry.ActiveConnectionCount())
	}

	registry.Remove(conn)
	registry.Remove(conn) // idempotent
	if registry.ActiveConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", registry.ActiveConnectionCount())
	}
}

func TestRegistry_RemoveOnlyMatchingInstance(t *testing.T) {
	registry := NewRegistry(30*time.Second, nil)
	old, _ := newTestConnection("c1")
	replacement, _ := newTestConnection("c1")
	defer old.Close()
	defer replacement.Close()

	registry.Add(old)
	registry.Add(replacement) // same id supersedes

	registry.Remove(old)
	if got, ok := registry.Get("c1"); !ok || got != replacement {
		t.Error("a stale connection must not unregister its replacement")
	}
}

func TestRegistry_PromoteAndLanguageLookup(t *testing.T) {
	registry := NewRegistry(30*time.Second, nil)

	teacher, _ := newTestConnection("t1")
	defer teacher.Close()
	teacher.SetCredentials(types.RoleTeacher, "en", "sess-1", types.ConnectionSettings{})
	registry.Add(teacher)
	if err := registry.Promote(teacher); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, lang := range []string{"es", "es", "fr"} {
		student, _ := newTestConnection("s" + string(rune('1'+i)))
		defer student.Close()
		student.SetCredentials(types.RoleStudent, lang, "sess-1", types.ConnectionSettings{})
		registry.Add(student)
		if err := registry.Promote(student); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := len(registry.TeachersForSession("sess-1")); got != 1 {
		t.Errorf("expected 1 teacher, got %d", got)
	}
	if got := len(registry.StudentsForSession("sess-1")); got != 3 {
		t.Errorf("expected 3 students, got %d", got)
	}
	langs := registry.StudentLanguages("sess-1")
	sort.Strings(langs)
	if len(langs) != 2 || langs[0] != "es" || langs[1] != "fr" {
		t.Errorf("expected distinct languages [es fr], got %v", langs)
	}
}

func TestRegistry_PromoteRequiresRegistration(t *testing.T) {
	registry := NewRegistry(30*time.Second, nil)
	conn, _ := newTestConnection("c1")
	defer conn.Close()
	registry.Add(conn)

	if err := registry.Promote(conn); !errors.Is(err, ErrConnectionNotRegistered) {
		t.Fatalf("expected ErrConnectionNotRegistered, got %v", err)
	}
}

func TestSweepHeartbeats_TerminatesUnansweredConnections(t *testing.T) {
	registry := NewRegistry(30*time.Second, nil)

	healthy, healthyWire := newTestConnection("healthy")
	defer healthy.Close()
	stale, _ := newTestConnection("stale")
	defer stale.Close()
	registry.Add(healthy)
	registry.Add(stale)

	// First round pings everyone.
	registry.SweepHeartbeats()
	waitForFrames(t, healthyWire, 1)
	if !healthy.AwaitingPong() || !stale.AwaitingPong() {
		t.Fatal("both connections should owe a pong after the first round")
	}

	// Only the healthy connection answers.
	healthy.PongReceived()

	registry.SweepHeartbeats()
	if _, ok := registry.Get("stale"); ok {
		t.Error("unanswered connection should be removed")
	}
	if stale.IsOpen() {
		t.Error("unanswered connection should be closed")
	}
	if _, ok := registry.Get("healthy"); !ok {
		t.Error("answering connection should stay registered")
	}
}

func TestHeartbeatLoop_StartStop(t *testing.T) {
	registry := NewRegistry(time.Hour, nil)
	if err := registry.StartHeartbeat(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := registry.StartHeartbeat(); !errors.Is(err, ErrHeartbeatRunning) {
		t.Errorf("expected ErrHeartbeatRunning, got %v", err)
	}
	if err := registry.StopHeartbeat(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := registry.StopHeartbeat(); !errors.Is(err, ErrHeartbeatNotRunning) {
		t.Errorf("expected ErrHeartbeatNotRunning, got %v", err)
	}
}
