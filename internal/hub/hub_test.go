package hub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"lingocast/internal/audio"
	"lingocast/internal/provider"
	"lingocast/internal/router"
	"lingocast/internal/session"
	"lingocast/internal/websocket"
	"lingocast/pkg/interfaces"
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

// frameOfType returns the first decoded frame whose type matches, waiting
// for it to arrive.
func (f *fakeWire) frameOfType(t *testing.T, messageType string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		for _, raw := range f.frames {
			var m map[string]interface{}
			if err := json.Unmarshal(raw, &m); err != nil {
				f.mu.Unlock()
				t.Fatalf("bad frame: %v", err)
			}
			if m["type"] == messageType {
				f.mu.Unlock()
				return m
			}
		}
		f.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for a %q frame", messageType)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type memStorage struct {
	mu           sync.Mutex
	sessions     map[string]*types.Session
	transcripts  []*types.Transcript
	translations []*types.Translation
}

func newMemStorage() *memStorage {
	return &memStorage{sessions: make(map[string]*types.Session)}
}

func (m *memStorage) CreateSession(ctx context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = s
	return nil
}

func (m *memStorage) UpdateSession(ctx context.Context, s *types.Session) error { return nil }

func (m *memStorage) EndSession(ctx context.Context, s *types.Session) error { return nil }

func (m *memStorage) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return s, nil
}

func (m *memStorage) FindActiveSessionsByTeacher(ctx context.Context, teacherID string) ([]*types.Session, error) {
	return nil, nil
}

func (m *memStorage) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	return nil, nil
}

func (m *memStorage) AppendTranscript(ctx context.Context, t *types.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts = append(m.transcripts, t)
	return nil
}

func (m *memStorage) AppendTranslation(ctx context.Context, t *types.Translation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.translations = append(m.translations, t)
	return nil
}

func (m *memStorage) HealthCheck(ctx context.Context) error { return nil }

func (m *memStorage) Close() error { return nil }

type fakeTranslator struct{ fail bool }

func (f *fakeTranslator) Name() string { return "fake-translator" }

func (f *fakeTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if f.fail {
		return "", errors.New("translator down")
	}
	return fmt.Sprintf("[%s] %s", targetLang, text), nil
}

type fakeTranscriber struct{ fail bool }

func (f *fakeTranscriber) Name() string { return "fake-transcriber" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioData []byte, languageCode string) (string, error) {
	if f.fail {
		return "", errors.New("transcriber down")
	}
	return fmt.Sprintf("recognized %d bytes", len(audioData)), nil
}

type stack struct {
	router   *router.Router
	registry *websocket.Registry
	sessions *session.Manager
	hub      *Hub
	storage  *memStorage
}

func newStack(t *testing.T, transcriber interfaces.Transcriber, translator interfaces.Translator) *stack {
	t.Helper()
	storage := newMemStorage()
	registry := websocket.NewRegistry(30*time.Second, nil)
	sessions := session.NewManager(storage, session.NewCodeDirectory(20*time.Minute), session.Config{
		GraceWindow:     10 * time.Minute,
		MinRealDuration: 2 * time.Minute,
	}, nil)
	r := router.NewRouter(registry, nil)

	h := NewHub(r, registry, sessions, provider.NewTranslationChain(translator), storage)
	pipeline := audio.NewPipeline(provider.NewTranscriptionChain(transcriber), h, audio.Config{
		MinBufferedBytes: 2000,
		MaxBufferedBytes: 1 << 20,
		MaxIdle:          5 * time.Minute,
		SweepInterval:    time.Minute,
	}, nil)
	h.SetPipeline(pipeline)
	h.RegisterHandlers()

	return &stack{router: r, registry: registry, sessions: sessions, hub: h, storage: storage}
}

func (s *stack) connect(t *testing.T, id string) (*websocket.Connection, *fakeWire) {
	t.Helper()
	w := &fakeWire{}
	conn := websocket.NewConnection(id, w, time.Second)
	if err := s.registry.Add(conn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, w
}

func (s *stack) send(conn *websocket.Connection, env types.Envelope) {
	data, _ := json.Marshal(env)
	s.router.HandleMessage(context.Background(), conn, data)
}

func TestTeacherRegistrationIssuesClassroomCode(t *testing.T) {
	s := newStack(t, &fakeTranscriber{}, &fakeTranslator{})
	teacher, wire := s.connect(t, "t1")

	s.send(teacher, types.Envelope{
		Type:         types.MessageTypeRegister,
		Role:         types.RoleTeacher,
		LanguageCode: "en",
		TeacherID:    "teacher-1",
	})

	success := wire.frameOfType(t, types.MessageTypeRegistrationSuccess)
	if success["role"] != types.RoleTeacher {
		t.Errorf("unexpected registration frame: %v", success)
	}

	codeFrame := wire.frameOfType(t, types.MessageTypeClassroomCode)
	code, _ := codeFrame["code"].(string)
	if !types.IsValidClassroomCode(code) {
		t.Fatalf("expected a 6-character code from the code alphabet, got %q", code)
	}
	if s.sessions.ActiveSessionCount() != 1 {
		t.Errorf("expected one active session, got %d", s.sessions.ActiveSessionCount())
	}
}

func TestTranscriptionFansOutTranslationsToStudents(t *testing.T) {
	s := newStack(t, &fakeTranscriber{}, &fakeTranslator{})

	teacher, teacherWire := s.connect(t, "t1")
	s.send(teacher, types.Envelope{
		Type:         types.MessageTypeRegister,
		Role:         types.RoleTeacher,
		LanguageCode: "en",
		TeacherID:    "teacher-1",
	})
	code, _ := teacherWire.frameOfType(t, types.MessageTypeClassroomCode)["code"].(string)

	student, studentWire := s.connect(t, "s1")
	s.send(student, types.Envelope{
		Type:          types.MessageTypeRegister,
		Role:          types.RoleStudent,
		LanguageCode:  "es",
		ClassroomCode: code,
	})
	studentWire.frameOfType(t, types.MessageTypeRegistrationSuccess)

	s.send(teacher, types.Envelope{
		Type: types.MessageTypeTranscription,
		Text: "Hello class",
	})

	translation := studentWire.frameOfType(t, types.MessageTypeTranslation)
	if translation["originalText"] != "Hello class" {
		t.Errorf("expected originalText %q, got %v", "Hello class", translation["originalText"])
	}
	if translation["targetLanguage"] != "es" {
		t.Errorf("expected targetLanguage es, got %v", translation["targetLanguage"])
	}
	if translation["text"] != "[es] Hello class" {
		t.Errorf("unexpected translated text: %v", translation["text"])
	}

	// The teacher sees the transcript line too.
	echo := teacherWire.frameOfType(t, types.MessageTypeTranscription)
	if echo["text"] != "Hello class" {
		t.Errorf("unexpected teacher echo: %v", echo)
	}

	sess, err := s.sessions.GetSession(context.Background(), teacher.SessionID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.TotalTranslations != 1 {
		t.Errorf("expected one recorded translation, got %d", sess.TotalTranslations)
	}
}

func TestTranslationDegradesToOriginalText(t *testing.T) {
	s := newStack(t, &fakeTranscriber{}, &fakeTranslator{fail: true})

	teacher, teacherWire := s.connect(t, "t1")
	s.send(teacher, types.Envelope{
		Type:         types.MessageTypeRegister,
		Role:         types.RoleTeacher,
		LanguageCode: "en",
		TeacherID:    "teacher-1",
	})
	code, _ := teacherWire.frameOfType(t, types.MessageTypeClassroomCode)["code"].(string)

	student, studentWire := s.connect(t, "s1")
	s.send(student, types.Envelope{
		Type:          types.MessageTypeRegister,
		Role:          types.RoleStudent,
		LanguageCode:  "es",
		ClassroomCode: code,
	})
	studentWire.frameOfType(t, types.MessageTypeRegistrationSuccess)

	s.send(teacher, types.Envelope{Type: types.MessageTypeTranscription, Text: "Hello class"})

	translation := studentWire.frameOfType(t, types.MessageTypeTranslation)
	if translation["text"] != "Hello class" {
		t.Errorf("expected verbatim original text on chain failure, got %v", translation["text"])
	}
}

func TestAudioChunksFlowThroughPipeline(t *testing.T) {
	s := newStack(t, &fakeTranscriber{}, &fakeTranslator{})

	teacher, teacherWire := s.connect(t, "t1")
	s.send(teacher, types.Envelope{
		Type:         types.MessageTypeRegister,
		Role:         types.RoleTeacher,
		LanguageCode: "en",
		TeacherID:    "teacher-1",
	})
	teacherWire.frameOfType(t, types.MessageTypeClassroomCode)

	chunk := base64.StdEncoding.EncodeToString(make([]byte, 2200))
	s.send(teacher, types.Envelope{
		Type:         types.MessageTypeAudioChunk,
		AudioBase64:  chunk,
		IsFirstChunk: true,
	})

	transcript := teacherWire.frameOfType(t, types.MessageTypeTranscription)
	if transcript["text"] != "recognized 2200 bytes" {
		t.Errorf("unexpected transcript: %v", transcript)
	}
	if transcript["isFinal"] != false {
		t.Errorf("streaming transcript should be non-final: %v", transcript)
	}
}

func TestTerminalTranscriptionFailureReachesTeacher(t *testing.T) {
	s := newStack(t, &fakeTranscriber{fail: true}, &fakeTranslator{})

	teacher, teacherWire := s.connect(t, "t1")
	s.send(teacher, types.Envelope{
		Type:         types.MessageTypeRegister,
		Role:         types.RoleTeacher,
		LanguageCode: "en",
		TeacherID:    "teacher-1",
	})
	teacherWire.frameOfType(t, types.MessageTypeClassroomCode)

	s.send(teacher, types.Envelope{
		Type:         types.MessageTypeAudioChunk,
		AudioBase64:  base64.StdEncoding.EncodeToString(make([]byte, 2200)),
		IsFirstChunk: true,
	})

	errFrame := teacherWire.frameOfType(t, types.MessageTypeError)
	if errFrame["errorType"] != types.ErrorTypeTranscriptionFailed {
		t.Errorf("expected transcription_failed, got %v", errFrame)
	}
}

func TestStudentDisconnectStartsGracePeriod(t *testing.T) {
	s := newStack(t, &fakeTranscriber{}, &fakeTranslator{})

	teacher, teacherWire := s.connect(t, "t1")
	s.send(teacher, types.Envelope{
		Type:         types.MessageTypeRegister,
		Role:         types.RoleTeacher,
		LanguageCode: "en",
		TeacherID:    "teacher-1",
	})
	code, _ := teacherWire.frameOfType(t, types.MessageTypeClassroomCode)["code"].(string)

	student, studentWire := s.connect(t, "s1")
	s.send(student, types.Envelope{
		Type:          types.MessageTypeRegister,
		Role:          types.RoleStudent,
		LanguageCode:  "es",
		ClassroomCode: code,
	})
	studentWire.frameOfType(t, types.MessageTypeRegistrationSuccess)

	sessionID := teacher.SessionID()
	s.registry.Remove(student)
	student.Close()
	s.router.HandleDisconnect(context.Background(), student)

	if _, running := s.sessions.GraceDeadline(sessionID); !running {
		t.Error("expected a grace period after the last student disconnected")
	}
	sess, _ := s.sessions.GetSession(context.Background(), sessionID)
	if !sess.IsActive {
		t.Error("session must stay active during the grace period")
	}
}

func TestHeartbeatPongClearsOutstandingPing(t *testing.T) {
	s := newStack(t, &fakeTranscriber{}, &fakeTranslator{})
	conn, _ := s.connect(t, "c1")

	if err := conn.Ping(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !conn.AwaitingPong() {
		t.Fatal("connection should owe a pong after a ping")
	}

	s.send(conn, types.Envelope{Type: types.MessageTypeHeartbeatPong})
	if conn.AwaitingPong() {
		t.Error("heartbeat_pong must clear the outstanding ping")
	}
}

func TestUnknownRoleRegistrationIgnored(t *testing.T) {
	s := newStack(t, &fakeTranscriber{}, &fakeTranslator{})
	conn, w := s.connect(t, "c1")

	s.send(conn, types.Envelope{
		Type:         types.MessageTypeRegister,
		Role:         "observer",
		LanguageCode: "en",
	})
	time.Sleep(20 * time.Millisecond)

	errFrame := w.frameOfType(t, types.MessageTypeError)
	if errFrame["errorType"] != types.ErrorTypeInvalidPayload {
		t.Errorf("expected invalid_payload for a bad role, got %v", errFrame)
	}
	if s.sessions.ActiveSessionCount() != 0 {
		t.Error("no session may be created for an invalid role")
	}
}
