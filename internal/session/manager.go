package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"lingocast/internal/metrics"
	"lingocast/pkg/interfaces"
	"lingocast/pkg/types"
)

// Config carries the lifecycle windows the directory enforces.
type Config struct {
	// GraceWindow is how long a session stays matchable and active after
	// its last student leaves.
	GraceWindow time.Duration

	// MinRealDuration is the shortest session still classified as real.
	MinRealDuration time.Duration
}

// Manager is the session directory: an in-memory mirror of all active
// sessions over the durable Storage collaborator. Real-time paths treat
// storage writes as best-effort bookkeeping; failures are logged and never
// block delivery.
type Manager struct {
	storage interfaces.Storage
	codes   *CodeDirectory
	metrics *metrics.Metrics
	config  Config

	mu             sync.RWMutex
	active         map[string]*types.Session // sessionID -> session
	graceDeadlines map[string]time.Time      // sessionID -> grace expiry
	hadStudents    map[string]bool           // sessionID -> a student ever joined
}

// NewManager creates a session directory. The metrics argument may be nil.
func NewManager(storage interfaces.Storage, codes *CodeDirectory, config Config, m *metrics.Metrics) *Manager {
	return &Manager{
		storage:        storage,
		codes:          codes,
		metrics:        m,
		config:         config,
		active:         make(map[string]*types.Session),
		graceDeadlines: make(map[string]time.Time),
		hadStudents:    make(map[string]bool),
	}
}

// LoadActiveSessions warms the in-memory mirror from storage at startup.
func (m *Manager) LoadActiveSessions(ctx context.Context) error {
	sessions, err := m.storage.ListActiveSessions(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sessions {
		m.active[s.SessionID] = s
		if s.StudentsCount > 0 {
			m.hadStudents[s.SessionID] = true
		}
	}
	log.Printf("Loaded %d active sessions", len(sessions))
	return nil
}

// RegisterTeacher matches a teacher to an existing session when the
// durable identifier reconnects within the grace window, otherwise it
// creates a fresh session. Either way the session's old classroom code is
// cleared and a new one issued, and any other still-active session for
// the same teacher is ended as a duplicate. resumed reports whether an
// existing session was matched.
func (m *Manager) RegisterTeacher(ctx context.Context, teacherID string) (session *types.Session, code string, resumed bool, err error) {
	if teacherID == "" {
		return nil, "", false, ErrTeacherIDRequired
	}
	now := time.Now()

	m.mu.Lock()
	var match *types.Session
	var duplicates []*types.Session
	for _, s := range m.active {
		if s.TeacherID != teacherID {
			continue
		}
		if match == nil && now.Sub(s.LastActivityAt) <= m.config.GraceWindow {
			match = s
			continue
		}
		duplicates = append(duplicates, s)
	}
	if match != nil {
		match.LastActivityAt = now
		match.QualityReason = ""
		delete(m.graceDeadlines, match.SessionID)
	}
	m.mu.Unlock()

	for _, dup := range duplicates {
		if endErr := m.EndSession(ctx, dup.SessionID, types.QualityUnknown, "superseded by a newer session for the same teacher"); endErr != nil {
			log.Printf("Failed to end duplicate session %s: %v", dup.SessionID, endErr)
		}
	}

	if match == nil {
		match = &types.Session{
			SessionID:      uuid.New().String(),
			TeacherID:      teacherID,
			IsActive:       true,
			LastActivityAt: now,
			StartTime:      now,
			Quality:        types.QualityUnknown,
		}
		if err := m.storage.CreateSession(ctx, match); err != nil {
			log.Printf("Failed to persist session %s: %v", match.SessionID, err)
		}
		m.mu.Lock()
		m.active[match.SessionID] = match
		m.mu.Unlock()
		m.metrics.SessionCreated()
		log.Printf("Created session: id=%s teacher=%s", match.SessionID, teacherID)
	} else {
		log.Printf("Teacher %s resumed session %s within grace window", teacherID, match.SessionID)
		resumed = true
	}

	// Always a fresh code, so stale codes cannot route into the session.
	code, err = m.codes.Assign(match.SessionID)
	if err != nil {
		return nil, "", false, err
	}

	m.mu.Lock()
	match.ClassroomCode = code
	m.mu.Unlock()
	if err := m.storage.UpdateSession(ctx, match); err != nil {
		log.Printf("Failed to persist classroom code for session %s: %v", match.SessionID, err)
	}

	return match, code, resumed, nil
}

// ResolveCode returns the active session behind a classroom code.
func (m *Manager) ResolveCode(code string) (*types.Session, error) {
	sessionID, err := m.codes.Resolve(code)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.active[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionEnded
	}
	return s, nil
}

// StudentJoined increments the session's student count and cancels any
// running grace period.
func (m *Manager) StudentJoined(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.active[sessionID]
	if !ok {
		m.mu.Unlock()
		return interfaces.ErrSessionNotFound
	}
	s.StudentsCount++
	s.LastActivityAt = time.Now()
	s.QualityReason = ""
	m.hadStudents[sessionID] = true
	delete(m.graceDeadlines, sessionID)
	m.mu.Unlock()

	if err := m.storage.UpdateSession(ctx, s); err != nil {
		log.Printf("Failed to persist student join for session %s: %v", sessionID, err)
	}
	return nil
}

// StudentLeft decrements the session's student count and starts the grace
// period the instant the count reaches zero.
func (m *Manager) StudentLeft(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.active[sessionID]
	if !ok {
		m.mu.Unlock()
		return interfaces.ErrSessionNotFound
	}
	if s.StudentsCount > 0 {
		s.StudentsCount--
	}
	if s.StudentsCount == 0 {
		m.graceDeadlines[sessionID] = time.Now().Add(m.config.GraceWindow)
	}
	m.mu.Unlock()

	if err := m.storage.UpdateSession(ctx, s); err != nil {
		log.Printf("Failed to persist student leave for session %s: %v", sessionID, err)
	}
	return nil
}

// RecordTranslation bumps the translation counter and refreshes activity.
func (m *Manager) RecordTranslation(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.active[sessionID]
	if !ok {
		m.mu.Unlock()
		return interfaces.ErrSessionNotFound
	}
	s.TotalTranslations++
	s.LastActivityAt = time.Now()
	m.mu.Unlock()

	m.metrics.TranslationDelivered()
	if err := m.storage.UpdateSession(ctx, s); err != nil {
		log.Printf("Failed to persist translation count for session %s: %v", sessionID, err)
	}
	return nil
}

// TouchActivity refreshes the session's last-activity timestamp.
func (m *Manager) TouchActivity(sessionID string) {
	m.mu.Lock()
	if s, ok := m.active[sessionID]; ok {
		s.LastActivityAt = time.Now()
	}
	m.mu.Unlock()
}

// EndSession deactivates a session, classifies its final quality, clears
// its classroom code, and drops it from the mirror. Ended sessions remain
// in storage as historical records.
func (m *Manager) EndSession(ctx context.Context, sessionID string, quality, reason string) error {
	now := time.Now()

	m.mu.Lock()
	s, ok := m.active[sessionID]
	if !ok {
		m.mu.Unlock()
		return interfaces.ErrSessionNotFound
	}
	delete(m.active, sessionID)
	delete(m.graceDeadlines, sessionID)
	delete(m.hadStudents, sessionID)

	s.IsActive = false
	s.EndTime = &now
	if quality != "" {
		s.Quality = quality
	}
	if reason != "" {
		s.QualityReason = reason
	}
	s.Quality, s.QualityReason = Classify(s, m.config.MinRealDuration, now)
	m.mu.Unlock()

	m.codes.Clear(sessionID)
	m.metrics.SessionEnded(s.Quality)

	if err := m.storage.EndSession(ctx, s); err != nil {
		log.Printf("Failed to persist session end for %s: %v", sessionID, err)
	}
	log.Printf("Ended session: id=%s quality=%s reason=%q", sessionID, s.Quality, s.QualityReason)
	return nil
}

// GetSession returns a session from the mirror, falling back to storage
// for ended sessions.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.RLock()
	if s, ok := m.active[sessionID]; ok {
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	return m.storage.GetSession(ctx, sessionID)
}

// ActiveSessions returns a snapshot of the active-session mirror.
func (m *Manager) ActiveSessions() []*types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Session, 0, len(m.active))
	for _, s := range m.active {
		out = append(out, s)
	}
	return out
}

// ActiveSessionCount reports how many sessions are currently active.
func (m *Manager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// GraceDeadline reports the session's grace expiry, if a grace period is
// currently running.
func (m *Manager) GraceDeadline(sessionID string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	deadline, ok := m.graceDeadlines[sessionID]
	return deadline, ok
}

// HadStudents reports whether any student ever joined the session.
func (m *Manager) HadStudents(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hadStudents[sessionID]
}

// CodeTTL returns how long issued classroom codes stay valid.
func (m *Manager) CodeTTL() time.Duration {
	return m.codes.TTL()
}

// SweepExpiredCodes drops classroom codes whose TTL elapsed.
func (m *Manager) SweepExpiredCodes(now time.Time) {
	if removed := m.codes.SweepExpired(now); removed > 0 {
		log.Printf("Expired %d classroom codes", removed)
	}
}
