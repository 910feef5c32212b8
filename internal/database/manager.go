package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "lingocast/pkg/database"
	"lingocast/pkg/interfaces"
	"lingocast/pkg/types"
)

// Manager implements interfaces.Storage over SQLite. All writes funnel
// through a single goroutine; SQLite allows only one writer and funneling
// avoids lock contention. Reads go straight to the pool.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies optimizations and schema, and
// starts the writer goroutine.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply optimizations: %w", err)
	}
	if err := dbconfig.ApplySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	m := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writeLoop()
	return m, nil
}

// writeLoop executes queued writes, retrying each once after a delay.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// CreateSession inserts a new session row. A concurrent create for the
// same session id is benign: the row already reflects this session.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO sessions (session_id, classroom_code, teacher_id, is_active,
				students_count, total_translations, last_activity_at, start_time, quality, quality_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			session.SessionID,
			session.ClassroomCode,
			session.TeacherID,
			session.IsActive,
			session.StudentsCount,
			session.TotalTranslations,
			session.LastActivityAt,
			session.StartTime,
			session.Quality,
			session.QualityReason,
		)
		if err != nil && isUniqueViolation(err) {
			return nil
		}
		return err
	})
}

// UpdateSession persists the session's mutable fields.
func (m *Manager) UpdateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE sessions
			SET classroom_code = ?, students_count = ?, total_translations = ?,
				last_activity_at = ?, quality_reason = ?
			WHERE session_id = ?
		`
		_, err := db.ExecContext(ctx, query,
			session.ClassroomCode,
			session.StudentsCount,
			session.TotalTranslations,
			session.LastActivityAt,
			session.QualityReason,
			session.SessionID,
		)
		return err
	})
}

// EndSession marks the session inactive with its final quality label.
func (m *Manager) EndSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE sessions
			SET is_active = 0, end_time = ?, quality = ?, quality_reason = ?,
				students_count = ?, total_translations = ?
			WHERE session_id = ?
		`
		_, err := db.ExecContext(ctx, query,
			session.EndTime,
			session.Quality,
			session.QualityReason,
			session.StudentsCount,
			session.TotalTranslations,
			session.SessionID,
		)
		return err
	})
}

const sessionColumns = `session_id, classroom_code, teacher_id, is_active, students_count,
	total_translations, last_activity_at, start_time, end_time, quality, quality_reason`

func scanSession(row interface{ Scan(dest ...interface{}) error }) (*types.Session, error) {
	var s types.Session
	var code sql.NullString
	var endTime sql.NullTime
	err := row.Scan(
		&s.SessionID,
		&code,
		&s.TeacherID,
		&s.IsActive,
		&s.StudentsCount,
		&s.TotalTranslations,
		&s.LastActivityAt,
		&s.StartTime,
		&endTime,
		&s.Quality,
		&s.QualityReason,
	)
	if err != nil {
		return nil, err
	}
	if code.Valid {
		s.ClassroomCode = code.String
	}
	if endTime.Valid {
		s.EndTime = &endTime.Time
	}
	return &s, nil
}

// GetSession retrieves one session, active or ended.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = ?`
	s, err := scanSession(m.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// FindActiveSessionsByTeacher returns the still-active sessions owned by
// a durable teacher identifier.
func (m *Manager) FindActiveSessionsByTeacher(ctx context.Context, teacherID string) ([]*types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE teacher_id = ? AND is_active = 1`
	return m.querySessions(ctx, query, teacherID)
}

// ListActiveSessions returns every active session.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE is_active = 1`
	return m.querySessions(ctx, query)
}

func (m *Manager) querySessions(ctx context.Context, query string, args ...interface{}) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// AppendTranscript stores one transcript line.
func (m *Manager) AppendTranscript(ctx context.Context, t *types.Transcript) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO transcripts (id, session_id, text, language_code, is_final, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query, t.ID, t.SessionID, t.Text, t.LanguageCode, t.IsFinal, t.Timestamp)
		return err
	})
}

// AppendTranslation stores one delivered translation.
func (m *Manager) AppendTranslation(ctx context.Context, t *types.Translation) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO translations (id, session_id, source_text, translated_text,
				source_language, target_language, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query, t.ID, t.SessionID, t.SourceText, t.TranslatedText,
			t.SourceLanguage, t.TargetLanguage, t.Timestamp)
		return err
	})
}

// HealthCheck verifies connectivity and schema presence.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return dbconfig.ValidateSchema(m.db)
}

// Close drains the writer goroutine and closes the pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
