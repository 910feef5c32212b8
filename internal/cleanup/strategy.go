package cleanup

import (
	"context"
	"log"
	"time"

	"lingocast/pkg/types"
)

// Directory is the slice of the session directory the cleanup strategies
// need: observing active sessions and ending the stale ones.
type Directory interface {
	ActiveSessions() []*types.Session
	GraceDeadline(sessionID string) (time.Time, bool)
	HadStudents(sessionID string) bool
	EndSession(ctx context.Context, sessionID, quality, reason string) error
}

// Strategy is one cleanup rule. Strategies run in a fixed priority order;
// appending a new rule requires no change to the scheduler.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// ShouldRun reports whether any session currently matches the rule.
	ShouldRun(now time.Time) bool

	// Execute ends every matching session and returns how many were
	// cleaned. On context expiry it returns the partial count along with
	// the context error.
	Execute(ctx context.Context, now time.Time) (int, error)
}

// endAll ends each listed session, logging storage failures without
// aborting the rest, and stops early when the pass deadline hits.
func endAll(ctx context.Context, dir Directory, ids []string, quality, reason string) (int, error) {
	cleaned := 0
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return cleaned, ctx.Err()
		default:
		}
		if err := dir.EndSession(ctx, id, quality, reason); err != nil {
			log.Printf("Cleanup failed to end session %s: %v", id, err)
			continue
		}
		cleaned++
	}
	return cleaned, nil
}

// AbandonedStrategy ends sessions whose reconnection grace period expired
// after the last student left. Highest priority: these sessions look
// active but nobody can come back to them.
type AbandonedStrategy struct {
	dir Directory
}

func NewAbandonedStrategy(dir Directory) *AbandonedStrategy {
	return &AbandonedStrategy{dir: dir}
}

func (s *AbandonedStrategy) Name() string { return "abandoned" }

func (s *AbandonedStrategy) matches(now time.Time) []string {
	var ids []string
	for _, sess := range s.dir.ActiveSessions() {
		deadline, running := s.dir.GraceDeadline(sess.SessionID)
		if running && now.After(deadline) {
			ids = append(ids, sess.SessionID)
		}
	}
	return ids
}

func (s *AbandonedStrategy) ShouldRun(now time.Time) bool {
	return len(s.matches(now)) > 0
}

func (s *AbandonedStrategy) Execute(ctx context.Context, now time.Time) (int, error) {
	return endAll(ctx, s.dir, s.matches(now), types.QualityNoActivity,
		"grace period expired after the last student left")
}

// EmptyTeacherStrategy ends sessions where no student ever joined within
// the teacher-wait window.
type EmptyTeacherStrategy struct {
	dir  Directory
	wait time.Duration
}

func NewEmptyTeacherStrategy(dir Directory, wait time.Duration) *EmptyTeacherStrategy {
	return &EmptyTeacherStrategy{dir: dir, wait: wait}
}

func (s *EmptyTeacherStrategy) Name() string { return "empty_teacher" }

func (s *EmptyTeacherStrategy) matches(now time.Time) []string {
	var ids []string
	for _, sess := range s.dir.ActiveSessions() {
		if !s.dir.HadStudents(sess.SessionID) && now.Sub(sess.StartTime) > s.wait {
			ids = append(ids, sess.SessionID)
		}
	}
	return ids
}

func (s *EmptyTeacherStrategy) ShouldRun(now time.Time) bool {
	return len(s.matches(now)) > 0
}

func (s *EmptyTeacherStrategy) Execute(ctx context.Context, now time.Time) (int, error) {
	return endAll(ctx, s.dir, s.matches(now), types.QualityNoStudents,
		"no students joined before the wait window elapsed")
}

// InactivityStrategy is the long fallback: it ends any active session idle
// beyond the inactivity window, whatever its student count.
type InactivityStrategy struct {
	dir    Directory
	window time.Duration
}

func NewInactivityStrategy(dir Directory, window time.Duration) *InactivityStrategy {
	return &InactivityStrategy{dir: dir, window: window}
}

func (s *InactivityStrategy) Name() string { return "general_inactivity" }

func (s *InactivityStrategy) matches(now time.Time) []string {
	var ids []string
	for _, sess := range s.dir.ActiveSessions() {
		if now.Sub(sess.LastActivityAt) > s.window {
			ids = append(ids, sess.SessionID)
		}
	}
	return ids
}

func (s *InactivityStrategy) ShouldRun(now time.Time) bool {
	return len(s.matches(now)) > 0
}

func (s *InactivityStrategy) Execute(ctx context.Context, now time.Time) (int, error) {
	return endAll(ctx, s.dir, s.matches(now), types.QualityNoActivity,
		"idle beyond the inactivity window")
}
