package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	dbconfig "lingocast/pkg/database"
	"lingocast/pkg/interfaces"
	"lingocast/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	m, err := NewManager(config)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func testSession(id string) *types.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Session{
		SessionID:      id,
		ClassroomCode:  "ABC234",
		TeacherID:      "teacher-1",
		IsActive:       true,
		LastActivityAt: now,
		StartTime:      now,
		Quality:        types.QualityUnknown,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s := testSession("sess-1")
	if err := m.CreateSession(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := m.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TeacherID != "teacher-1" || !got.IsActive || got.ClassroomCode != "ABC234" {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.EndTime != nil {
		t.Error("fresh session must not have an end time")
	}
}

func TestCreateSession_DuplicateIsBenign(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s := testSession("sess-1")
	if err := m.CreateSession(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.CreateSession(ctx, s); err != nil {
		t.Fatalf("a concurrent create for the same id must be benign, got %v", err)
	}
}

func TestUpdateAndEndSession(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s := testSession("sess-1")
	if err := m.CreateSession(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.StudentsCount = 3
	s.TotalTranslations = 12
	if err := m.UpdateSession(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	end := time.Now().UTC().Truncate(time.Second)
	s.IsActive = false
	s.EndTime = &end
	s.Quality = types.QualityReal
	s.QualityReason = "translations were delivered to students"
	if err := m.EndSession(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := m.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsActive {
		t.Error("ended session must be inactive")
	}
	if got.Quality != types.QualityReal || got.StudentsCount != 3 || got.TotalTranslations != 12 {
		t.Errorf("unexpected ended session: %+v", got)
	}
	if got.EndTime == nil {
		t.Error("ended session must have an end time")
	}
}

func TestFindActiveSessionsByTeacher(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	active := testSession("sess-active")
	if err := m.CreateSession(ctx, active); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ended := testSession("sess-ended")
	if err := m.CreateSession(ctx, ended); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	end := time.Now().UTC()
	ended.IsActive = false
	ended.EndTime = &end
	ended.Quality = types.QualityNoStudents
	if err := m.EndSession(ctx, ended); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := testSession("sess-other")
	other.TeacherID = "teacher-2"
	if err := m.CreateSession(ctx, other); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := m.FindActiveSessionsByTeacher(ctx, "teacher-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != "sess-active" {
		t.Errorf("expected only the active teacher-1 session, got %+v", got)
	}

	all, err := m.ListActiveSessions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected two active sessions total, got %d", len(all))
	}
}

func TestAppendRecords(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.CreateSession(ctx, testSession("sess-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := m.AppendTranscript(ctx, &types.Transcript{
		ID:           "tr-1",
		SessionID:    "sess-1",
		Text:         "Hello class",
		LanguageCode: "en",
		IsFinal:      true,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = m.AppendTranslation(ctx, &types.Translation{
		ID:             "tl-1",
		SessionID:      "sess-1",
		SourceText:     "Hello class",
		TranslatedText: "Hola clase",
		SourceLanguage: "en",
		TargetLanguage: "es",
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.GetSession(context.Background(), "missing"); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	m := newTestManager(t)
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWriteAfterClose(t *testing.T) {
	m := newTestManager(t)
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.CreateSession(context.Background(), testSession("sess-1")); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("expected ErrManagerClosed, got %v", err)
	}
	// Double close is safe.
	if err := m.Close(); err != nil {
		t.Errorf("unexpected error on double close: %v", err)
	}
}
