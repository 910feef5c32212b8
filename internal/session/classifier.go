package session

import (
	"time"

	"lingocast/pkg/types"
)

// Classify assigns the final analytics quality label for a session from
// its translation count, student count, and duration. It is idempotent
// and safe to invoke at any time after a session ends; it never changes
// IsActive.
func Classify(s *types.Session, minRealDuration time.Duration, now time.Time) (quality, reason string) {
	if s.TotalTranslations > 0 {
		if s.Duration(now) < minRealDuration {
			return types.QualityTooShort, "ended before reaching the minimum real-session duration"
		}
		return types.QualityReal, "translations were delivered to students"
	}

	// Nothing was ever translated. When a cleanup strategy already
	// recorded why, keep its verdict so repeated classification is stable.
	switch s.Quality {
	case types.QualityNoStudents, types.QualityNoActivity:
		return s.Quality, s.QualityReason
	}

	if s.StudentsCount == 0 {
		return types.QualityNoStudents, "no students joined the session"
	}
	return types.QualityNoActivity, "no translations were delivered"
}
