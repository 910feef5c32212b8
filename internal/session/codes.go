package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"lingocast/pkg/interfaces"
	"lingocast/pkg/types"
)

const maxCodeAttempts = 32

type codeEntry struct {
	sessionID string
	expiresAt time.Time
}

// CodeDirectory maps short classroom codes to session ids. A session holds
// at most one live code at a time; codes expire via a TTL sweep and are
// cleared explicitly when a teacher reconnects so a stale code can never
// route students into a resumed session.
type CodeDirectory struct {
	mu        sync.RWMutex
	codes     map[string]codeEntry
	bySession map[string]string
	ttl       time.Duration
}

// NewCodeDirectory creates an empty directory with the given code TTL.
func NewCodeDirectory(ttl time.Duration) *CodeDirectory {
	return &CodeDirectory{
		codes:     make(map[string]codeEntry),
		bySession: make(map[string]string),
		ttl:       ttl,
	}
}

// Assign generates a fresh unique code for the session, replacing any code
// the session already holds.
func (d *CodeDirectory) Assign(sessionID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.bySession[sessionID]; ok {
		delete(d.codes, old)
		delete(d.bySession, sessionID)
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		if _, taken := d.codes[code]; taken {
			continue
		}
		d.codes[code] = codeEntry{sessionID: sessionID, expiresAt: time.Now().Add(d.ttl)}
		d.bySession[sessionID] = code
		return code, nil
	}
	return "", ErrCodeSpaceExhausted
}

// TTL returns how long a freshly issued code stays valid.
func (d *CodeDirectory) TTL() time.Duration {
	return d.ttl
}

// Resolve returns the session id behind a live code.
func (d *CodeDirectory) Resolve(code string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.codes[code]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", interfaces.ErrCodeNotFound
	}
	return entry.sessionID, nil
}

// Clear drops the session's live code, if any.
func (d *CodeDirectory) Clear(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if code, ok := d.bySession[sessionID]; ok {
		delete(d.codes, code)
		delete(d.bySession, sessionID)
	}
}

// CodeFor returns the session's current live code, or "" when none exists.
func (d *CodeDirectory) CodeFor(sessionID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bySession[sessionID]
}

// SweepExpired removes codes whose TTL elapsed and reports how many were
// dropped.
func (d *CodeDirectory) SweepExpired(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for code, entry := range d.codes {
		if now.After(entry.expiresAt) {
			delete(d.codes, code)
			delete(d.bySession, entry.sessionID)
			removed++
		}
	}
	return removed
}

// generateCode draws each character uniformly from the unambiguous code
// alphabet using crypto/rand.
func generateCode() (string, error) {
	alphabetSize := big.NewInt(int64(len(types.ClassroomCodeAlphabet)))
	code := make([]byte, types.ClassroomCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate classroom code: %w", err)
		}
		code[i] = types.ClassroomCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
