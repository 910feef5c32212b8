package types

import (
	"strings"
)

// ClassroomCodeLength is the fixed length of classroom codes.
const ClassroomCodeLength = 6

// ClassroomCodeAlphabet excludes 0/O and 1/I to keep codes readable when
// written on a whiteboard.
const ClassroomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// IsValidRole reports whether role is one of the two supported roles.
func IsValidRole(role string) bool {
	return role == RoleTeacher || role == RoleStudent
}

// IsValidLanguageCode accepts BCP-47-shaped codes: a 2-8 letter primary
// subtag optionally followed by dash-separated alphanumeric subtags
// ("en", "es", "en-US", "zh-Hant").
func IsValidLanguageCode(code string) bool {
	if code == "" {
		return false
	}
	parts := strings.Split(code, "-")
	primary := parts[0]
	if len(primary) < 2 || len(primary) > 8 {
		return false
	}
	for _, r := range primary {
		if !isLetter(r) {
			return false
		}
	}
	for _, sub := range parts[1:] {
		if len(sub) == 0 || len(sub) > 8 {
			return false
		}
		for _, r := range sub {
			if !isLetter(r) && !isDigit(r) {
				return false
			}
		}
	}
	return true
}

// IsValidClassroomCode reports whether code has the exact generated shape.
func IsValidClassroomCode(code string) bool {
	if len(code) != ClassroomCodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(ClassroomCodeAlphabet, r) {
			return false
		}
	}
	return true
}

// Validate checks the type-specific required fields of an inbound envelope.
func (e *Envelope) Validate() error {
	switch e.Type {
	case MessageTypeRegister:
		if !IsValidRole(e.Role) {
			return ErrInvalidRole
		}
		if !IsValidLanguageCode(e.LanguageCode) {
			return ErrInvalidLanguageCode
		}
		if e.Role == RoleStudent && !IsValidClassroomCode(strings.ToUpper(e.ClassroomCode)) {
			return ErrInvalidClassroomCode
		}
	case MessageTypeTranscription:
		if strings.TrimSpace(e.Text) == "" {
			return ErrEmptyText
		}
	case MessageTypeAudioChunk:
		if e.AudioBase64 == "" {
			return ErrEmptyAudioChunk
		}
	case MessageTypeFinalizeAudio, MessageTypeHeartbeatPong:
		// No payload fields required.
	default:
		return ErrUnknownMessageType
	}
	return nil
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
