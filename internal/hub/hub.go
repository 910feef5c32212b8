package hub

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"lingocast/internal/audio"
	"lingocast/internal/provider"
	"lingocast/internal/router"
	"lingocast/internal/session"
	"lingocast/internal/websocket"
	"lingocast/pkg/interfaces"
	"lingocast/pkg/types"
)

// Hub wires the router's message types to the session directory, the
// audio pipeline, and the translation chain. It also implements the
// pipeline's downstream sink, so recognized speech flows back out through
// the same fan-out as typed transcriptions.
type Hub struct {
	router     *router.Router
	registry   *websocket.Registry
	sessions   *session.Manager
	translator *provider.TranslationChain
	storage    interfaces.Storage
	pipeline   *audio.Pipeline
}

// NewHub creates the orchestration layer. The audio pipeline is attached
// afterwards with SetPipeline, because the pipeline needs the hub as its
// sink.
func NewHub(r *router.Router, registry *websocket.Registry, sessions *session.Manager, translator *provider.TranslationChain, storage interfaces.Storage) *Hub {
	return &Hub{
		router:     r,
		registry:   registry,
		sessions:   sessions,
		translator: translator,
		storage:    storage,
	}
}

// SetPipeline attaches the audio pipeline once it is constructed over
// this hub.
func (h *Hub) SetPipeline(p *audio.Pipeline) {
	h.pipeline = p
}

// RegisterHandlers attaches every message handler to the router.
func (h *Hub) RegisterHandlers() {
	h.router.RegisterHandler(types.MessageTypeRegister, h.handleRegister)
	h.router.RegisterHandler(types.MessageTypeTranscription, h.handleTranscription)
	h.router.RegisterHandler(types.MessageTypeAudioChunk, h.handleAudioChunk)
	h.router.RegisterHandler(types.MessageTypeFinalizeAudio, h.handleFinalize)
	h.router.RegisterHandler(types.MessageTypeHeartbeatPong, h.handleHeartbeatPong)
	h.router.OnDisconnect(h.handleDisconnect)
}

func (h *Hub) handleRegister(ctx context.Context, conn *websocket.Connection, env *types.Envelope) {
	settings := types.ConnectionSettings{}
	if env.Settings != nil {
		settings = *env.Settings
	}

	switch env.Role {
	case types.RoleTeacher:
		h.registerTeacher(ctx, conn, env, settings)
	case types.RoleStudent:
		h.registerStudent(ctx, conn, env, settings)
	}
}

func (h *Hub) registerTeacher(ctx context.Context, conn *websocket.Connection, env *types.Envelope, settings types.ConnectionSettings) {
	// A stable external identifier enables reconnection matching; an
	// anonymous teacher falls back to the connection id.
	teacherID := env.TeacherID
	if teacherID == "" {
		teacherID = conn.ID()
	}

	sess, code, resumed, err := h.sessions.RegisterTeacher(ctx, teacherID)
	if err != nil {
		log.Printf("Teacher registration failed on connection %s: %v", conn.ID(), err)
		h.router.SendError(conn, "failed to register teacher", types.ErrorTypeRegistrationFailed)
		return
	}

	conn.SetCredentials(types.RoleTeacher, env.LanguageCode, sess.SessionID, settings)
	if err := h.registry.Promote(conn); err != nil {
		h.router.SendError(conn, "failed to register teacher", types.ErrorTypeRegistrationFailed)
		return
	}

	h.router.SendToConnection(conn, types.RegistrationSuccessMessage{
		Type:         types.MessageTypeRegistrationSuccess,
		Role:         types.RoleTeacher,
		LanguageCode: env.LanguageCode,
		SessionID:    sess.SessionID,
	})
	h.router.SendToConnection(conn, types.ClassroomCodeMessage{
		Type:      types.MessageTypeClassroomCode,
		Code:      code,
		SessionID: sess.SessionID,
		ExpiresAt: time.Now().Add(h.sessions.CodeTTL()),
	})
	if resumed {
		log.Printf("Teacher %s rejoined session %s on connection %s", teacherID, sess.SessionID, conn.ID())
	}
}

func (h *Hub) registerStudent(ctx context.Context, conn *websocket.Connection, env *types.Envelope, settings types.ConnectionSettings) {
	code := strings.ToUpper(env.ClassroomCode)
	sess, err := h.sessions.ResolveCode(code)
	if err != nil {
		log.Printf("Student registration with code %s failed: %v", code, err)
		h.router.SendError(conn, "classroom code not found or expired", types.ErrorTypeRegistrationFailed)
		return
	}

	conn.SetCredentials(types.RoleStudent, env.LanguageCode, sess.SessionID, settings)
	if err := h.registry.Promote(conn); err != nil {
		h.router.SendError(conn, "failed to register student", types.ErrorTypeRegistrationFailed)
		return
	}
	if err := h.sessions.StudentJoined(ctx, sess.SessionID); err != nil {
		log.Printf("Failed to record student join for session %s: %v", sess.SessionID, err)
	}

	h.router.SendToConnection(conn, types.RegistrationSuccessMessage{
		Type:         types.MessageTypeRegistrationSuccess,
		Role:         types.RoleStudent,
		LanguageCode: env.LanguageCode,
		SessionID:    sess.SessionID,
	})
}

// handleTranscription relays teacher-provided text: it is persisted,
// echoed to the teacher's displays, and fanned out per student language.
func (h *Hub) handleTranscription(ctx context.Context, conn *websocket.Connection, env *types.Envelope) {
	if conn.Role() != types.RoleTeacher || conn.SessionID() == "" {
		return
	}
	h.deliverTranscript(ctx, audio.TranscriptEvent{
		SessionID:    conn.SessionID(),
		LanguageCode: conn.LanguageCode(),
		Text:         env.Text,
		IsFinal:      true,
	})
}

func (h *Hub) handleAudioChunk(ctx context.Context, conn *websocket.Connection, env *types.Envelope) {
	if conn.Role() != types.RoleTeacher || conn.SessionID() == "" {
		return
	}

	chunk, err := base64.StdEncoding.DecodeString(env.AudioBase64)
	if err != nil {
		log.Printf("Connection %s sent undecodable audio: %v", conn.ID(), err)
		h.router.SendError(conn, "audio payload is not valid base64", types.ErrorTypeInvalidPayload)
		return
	}

	h.sessions.TouchActivity(conn.SessionID())
	h.pipeline.Ingest(conn.SessionID(), conn.LanguageCode(), chunk, env.IsFirstChunk)
}

func (h *Hub) handleFinalize(ctx context.Context, conn *websocket.Connection, env *types.Envelope) {
	if conn.Role() != types.RoleTeacher || conn.SessionID() == "" {
		return
	}
	if err := h.pipeline.Finalize(ctx, conn.SessionID()); err != nil && !errors.Is(err, audio.ErrNoStreamingState) {
		log.Printf("Finalize failed for session %s: %v", conn.SessionID(), err)
	}
}

func (h *Hub) handleHeartbeatPong(ctx context.Context, conn *websocket.Connection, env *types.Envelope) {
	conn.PongReceived()
}

// handleDisconnect starts the reconnection grace period when the last
// student drops, and discards teacher streaming state.
func (h *Hub) handleDisconnect(ctx context.Context, conn *websocket.Connection) {
	if !conn.IsRegistered() {
		return
	}

	switch conn.Role() {
	case types.RoleStudent:
		if err := h.sessions.StudentLeft(ctx, conn.SessionID()); err != nil && !errors.Is(err, interfaces.ErrSessionNotFound) {
			log.Printf("Failed to record student leave for session %s: %v", conn.SessionID(), err)
		}
	case types.RoleTeacher:
		// The session itself stays active awaiting reconnection; only
		// the transient audio state dies with the socket.
		h.pipeline.Discard(conn.SessionID())
	}
}

// HandleTranscript receives recognized speech from the audio pipeline.
func (h *Hub) HandleTranscript(ctx context.Context, event audio.TranscriptEvent) {
	h.deliverTranscript(ctx, event)
}

// HandleTranscriptionError surfaces a terminal transcription failure to
// the teacher that is streaming; the pipeline stays usable.
func (h *Hub) HandleTranscriptionError(ctx context.Context, sessionID string, err error) {
	log.Printf("Transcription failed for session %s: %v", sessionID, err)
	for _, conn := range h.registry.TeachersForSession(sessionID) {
		h.router.SendError(conn, "transcription failed", types.ErrorTypeTranscriptionFailed)
	}
}

// deliverTranscript persists the transcript line, shows it to the
// session's teachers, and fans out one translation per distinct student
// language. Persistence is best-effort; delivery never waits on it.
func (h *Hub) deliverTranscript(ctx context.Context, event audio.TranscriptEvent) {
	if err := h.storage.AppendTranscript(ctx, &types.Transcript{
		ID:           uuid.New().String(),
		SessionID:    event.SessionID,
		Text:         event.Text,
		LanguageCode: event.LanguageCode,
		IsFinal:      event.IsFinal,
		Timestamp:    time.Now(),
	}); err != nil {
		log.Printf("Failed to persist transcript for session %s: %v", event.SessionID, err)
	}

	h.router.SendToTeachers(event.SessionID, types.TranscriptionMessage{
		Type:         types.MessageTypeTranscription,
		Text:         event.Text,
		IsFinal:      event.IsFinal,
		LanguageCode: event.LanguageCode,
	})

	for _, target := range h.registry.StudentLanguages(event.SessionID) {
		h.translateAndSend(ctx, event, target)
	}
}

func (h *Hub) translateAndSend(ctx context.Context, event audio.TranscriptEvent, targetLanguage string) {
	translated, err := h.translator.Translate(ctx, event.Text, event.LanguageCode, targetLanguage)
	if err != nil {
		// The translation chain degrades instead of failing; any error
		// here is a programming bug worth logging.
		log.Printf("Unexpected translation error for session %s: %v", event.SessionID, err)
		translated = event.Text
	}

	h.router.SendToStudentsByLanguage(event.SessionID, targetLanguage, types.TranslationMessage{
		Type:           types.MessageTypeTranslation,
		Text:           translated,
		OriginalText:   event.Text,
		TargetLanguage: targetLanguage,
	})

	if err := h.sessions.RecordTranslation(ctx, event.SessionID); err != nil && !errors.Is(err, interfaces.ErrSessionNotFound) {
		log.Printf("Failed to record translation for session %s: %v", event.SessionID, err)
	}
	if err := h.storage.AppendTranslation(ctx, &types.Translation{
		ID:             uuid.New().String(),
		SessionID:      event.SessionID,
		SourceText:     event.Text,
		TranslatedText: translated,
		SourceLanguage: event.LanguageCode,
		TargetLanguage: targetLanguage,
		Timestamp:      time.Now(),
	}); err != nil {
		log.Printf("Failed to persist translation for session %s: %v", event.SessionID, err)
	}
}
