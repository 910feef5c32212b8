package interfaces

import (
	"context"

	"lingocast/pkg/types"
)

// Storage is the durable persistence collaborator for the session
// directory. Writes on real-time paths are best-effort: callers log
// failures and keep serving rather than block delivery on bookkeeping.
type Storage interface {
	// CreateSession persists a new session record. A concurrent create
	// for the same session id is benign and must not be reported as an
	// error.
	CreateSession(ctx context.Context, session *types.Session) error

	// UpdateSession persists mutated session fields (activity, counts,
	// classroom code).
	UpdateSession(ctx context.Context, session *types.Session) error

	// EndSession marks a session inactive with its end time, quality and
	// reason. Ended sessions remain queryable as historical records.
	EndSession(ctx context.Context, session *types.Session) error

	// GetSession retrieves a session by id, active or ended.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// FindActiveSessionsByTeacher returns all still-active sessions owned
	// by the given durable teacher identifier.
	FindActiveSessionsByTeacher(ctx context.Context, teacherID string) ([]*types.Session, error)

	// ListActiveSessions returns all active sessions, used to warm the
	// in-memory mirror at startup.
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)

	// AppendTranscript stores one transcript line for a session.
	AppendTranscript(ctx context.Context, transcript *types.Transcript) error

	// AppendTranslation stores one delivered translation for a session.
	AppendTranslation(ctx context.Context, translation *types.Translation) error

	// HealthCheck verifies connectivity for the diagnostics surface.
	HealthCheck(ctx context.Context) error

	// Close releases the underlying storage resources.
	Close() error
}
