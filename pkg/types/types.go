package types

import (
	"time"
)

// Inbound message type discriminators. Every client frame carries one of
// these in its "type" field; anything else is logged and ignored.
const (
	MessageTypeRegister      = "register"
	MessageTypeTranscription = "transcription"
	MessageTypeAudioChunk    = "audio_chunk"
	MessageTypeFinalizeAudio = "finalize_audio"
	MessageTypeHeartbeatPong = "heartbeat_pong"
)

// Outbound message type discriminators.
const (
	MessageTypeConnection          = "connection"
	MessageTypeRegistrationSuccess = "registration_success"
	MessageTypeClassroomCode       = "classroom_code"
	MessageTypeTranslation         = "translation"
	MessageTypeError               = "error"
	MessageTypeHeartbeatPing       = "heartbeat_ping"
)

// Connection roles.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Session quality labels assigned by the classifier after a session ends.
const (
	QualityUnknown    = "unknown"
	QualityReal       = "real"
	QualityNoStudents = "no_students"
	QualityNoActivity = "no_activity"
	QualityTooShort   = "too_short"
)

// Envelope is the inbound wire format. Type selects the handler; the
// remaining fields are populated per type and zero otherwise.
type Envelope struct {
	Type          string              `json:"type"`
	Role          string              `json:"role,omitempty"`
	LanguageCode  string              `json:"languageCode,omitempty"`
	ClassroomCode string              `json:"classroomCode,omitempty"`
	TeacherID     string              `json:"teacherId,omitempty"`
	Text          string              `json:"text,omitempty"`
	AudioBase64   string              `json:"audioBase64,omitempty"`
	IsFirstChunk  bool                `json:"isFirstChunk,omitempty"`
	Settings      *ConnectionSettings `json:"settings,omitempty"`
}

// ConnectionSettings carries optional per-connection client preferences.
type ConnectionSettings struct {
	TTSServiceType string `json:"ttsServiceType,omitempty"`
}

// Session is one teacher-led classroom instance. Ended sessions are kept
// as historical records (IsActive=false), never deleted.
type Session struct {
	SessionID         string     `json:"sessionId" db:"session_id"`
	ClassroomCode     string     `json:"classroomCode,omitempty" db:"classroom_code"`
	TeacherID         string     `json:"teacherId" db:"teacher_id"`
	IsActive          bool       `json:"isActive" db:"is_active"`
	StudentsCount     int        `json:"studentsCount" db:"students_count"`
	TotalTranslations int        `json:"totalTranslations" db:"total_translations"`
	LastActivityAt    time.Time  `json:"lastActivityAt" db:"last_activity_at"`
	StartTime         time.Time  `json:"startTime" db:"start_time"`
	EndTime           *time.Time `json:"endTime,omitempty" db:"end_time"`
	Quality           string     `json:"quality" db:"quality"`
	QualityReason     string     `json:"qualityReason,omitempty" db:"quality_reason"`
}

// Duration returns the session length, using now for still-open sessions.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}

// ConnectionMessage confirms a new socket and assigns its connection id.
type ConnectionMessage struct {
	Type         string    `json:"type"`
	ConnectionID string    `json:"connectionId"`
	Timestamp    time.Time `json:"timestamp"`
}

// RegistrationSuccessMessage acknowledges a register frame.
type RegistrationSuccessMessage struct {
	Type         string `json:"type"`
	Role         string `json:"role"`
	LanguageCode string `json:"languageCode"`
	SessionID    string `json:"sessionId,omitempty"`
}

// ClassroomCodeMessage delivers a freshly generated classroom code to the
// teacher that owns the session.
type ClassroomCodeMessage struct {
	Type      string    `json:"type"`
	Code      string    `json:"code"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TranscriptionMessage carries recognized speech text downstream.
type TranscriptionMessage struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	IsFinal      bool   `json:"isFinal"`
	LanguageCode string `json:"languageCode"`
}

// TranslationMessage carries one translated utterance to a student. The
// TTSAudio payload is optional inline synthesized speech produced by an
// external collaborator.
type TranslationMessage struct {
	Type           string `json:"type"`
	Text           string `json:"text"`
	OriginalText   string `json:"originalText"`
	TargetLanguage string `json:"targetLanguage"`
	TTSAudio       string `json:"ttsAudio,omitempty"`
}

// HeartbeatPingMessage asks a client to prove liveness; clients answer
// with a heartbeat_pong frame.
type HeartbeatPingMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorMessage reports a failure to a single client with a coarse type.
type ErrorMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	ErrorType string `json:"errorType"`
}

// Error type labels used in ErrorMessage.ErrorType.
const (
	ErrorTypeTranscriptionFailed = "transcription_failed"
	ErrorTypeInvalidPayload      = "invalid_payload"
	ErrorTypeRegistrationFailed  = "registration_failed"
	ErrorTypeRateLimited         = "rate_limited"
)

// Transcript is one stored transcript line for a session.
type Transcript struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	Text         string    `json:"text"`
	LanguageCode string    `json:"languageCode"`
	IsFinal      bool      `json:"isFinal"`
	Timestamp    time.Time `json:"timestamp"`
}

// Translation is one stored translation row for a session.
type Translation struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	SourceText     string    `json:"sourceText"`
	TranslatedText string    `json:"translatedText"`
	SourceLanguage string    `json:"sourceLanguage"`
	TargetLanguage string    `json:"targetLanguage"`
	Timestamp      time.Time `json:"timestamp"`
}
