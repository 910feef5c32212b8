// Package audio implements per-session buffering of streamed audio chunks
// and the triggered transcription pipeline. Streaming state is transient
// and distinct from the durable session record: it is created on the first
// chunk, discarded on finalize, and swept when idle.
package audio

import (
	"context"
	"log"
	"sync"
	"time"

	"lingocast/internal/metrics"
)

// TranscriptEvent is emitted downstream whenever a pass produces text.
type TranscriptEvent struct {
	SessionID    string
	LanguageCode string
	Text         string
	IsFinal      bool
}

// Sink consumes pipeline output. Implementations must not block for long;
// the pipeline calls them from its processing goroutines.
type Sink interface {
	// HandleTranscript receives non-final and final transcript events.
	HandleTranscript(ctx context.Context, event TranscriptEvent)

	// HandleTranscriptionError receives terminal transcription failures
	// for surfacing to the originating connection.
	HandleTranscriptionError(ctx context.Context, sessionID string, err error)
}

// Transcriber is the transcription side of the fallback orchestrator.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, languageCode string) (string, error)
}

// Config bounds the pipeline's buffering behavior.
type Config struct {
	// MinBufferedBytes is the smallest combined buffer worth sending to a
	// provider; passes below it release the in-flight flag and wait.
	MinBufferedBytes int
	// MaxBufferedBytes caps the retained audio context. Concatenations
	// beyond it are truncated to the most recent bytes.
	MaxBufferedBytes int
	// MaxIdle is the age past which the sweep discards a streaming state.
	MaxIdle time.Duration
	// SweepInterval is how often the idle sweep runs.
	SweepInterval time.Duration
}

// streamState is the transient per-session audio accumulation state.
// Invariant: at most one transcription is in flight per state; the
// check-then-set of inFlight always happens under mu.
type streamState struct {
	mu             sync.Mutex
	cond           *sync.Cond
	sessionID      string
	languageCode   string
	pending        [][]byte
	pendingBytes   int
	newData        bool
	lastChunkTime  time.Time
	inFlight       bool
	lastTranscript string
}

func newStreamState(sessionID, languageCode string) *streamState {
	st := &streamState{
		sessionID:    sessionID,
		languageCode: languageCode,
	}
	st.cond = sync.NewCond(&st.mu)
	return st
}

// Pipeline owns all streaming states and the idle sweep.
type Pipeline struct {
	mu     sync.RWMutex
	states map[string]*streamState

	transcriber Transcriber
	sink        Sink
	config      Config
	metrics     *metrics.Metrics

	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	runMu    sync.Mutex
	sweepEnd chan struct{}
}

// NewPipeline creates a pipeline over the given transcription chain and
// downstream sink. The metrics argument may be nil.
func NewPipeline(transcriber Transcriber, sink Sink, config Config, m *metrics.Metrics) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		states:      make(map[string]*streamState),
		transcriber: transcriber,
		sink:        sink,
		config:      config,
		metrics:     m,
		ctx:         ctx,
		cancel:      cancel,
		sweepEnd:    make(chan struct{}),
	}
}

// Start launches the idle sweep. The pipeline accepts chunks before Start,
// but states are only reclaimed while it runs.
func (p *Pipeline) Start() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.running {
		return ErrPipelineRunning
	}
	p.running = true
	go p.sweepLoop()
	return nil
}

// Stop cancels processing and the idle sweep.
func (p *Pipeline) Stop() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if !p.running {
		return ErrPipelineNotRunning
	}
	p.running = false
	p.cancel()
	<-p.sweepEnd
	return nil
}

// Ingest appends a decoded audio chunk to the session's buffer and
// schedules a processing pass when none is in flight. The first chunk for
// a session, or an isFirstChunk marker, initializes fresh state.
func (p *Pipeline) Ingest(sessionID, languageCode string, chunk []byte, isFirstChunk bool) {
	if len(chunk) == 0 {
		return
	}

	st := p.getOrCreateState(sessionID, languageCode, isFirstChunk)

	st.mu.Lock()
	st.pending = append(st.pending, chunk)
	st.pendingBytes += len(chunk)
	st.newData = true
	st.lastChunkTime = time.Now()
	buffered := st.pendingBytes
	schedule := !st.inFlight
	if schedule {
		st.inFlight = true
	}
	st.mu.Unlock()

	p.metrics.AudioChunkReceived(buffered)

	if schedule {
		go p.process(st)
	}
}

// Finalize flushes any remaining buffered audio through the normal pass,
// emits a final transcript event, and discards the streaming state.
func (p *Pipeline) Finalize(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	st, ok := p.states[sessionID]
	if ok {
		delete(p.states, sessionID)
	}
	stateCount := len(p.states)
	p.mu.Unlock()
	if !ok {
		return ErrNoStreamingState
	}
	p.metrics.SetStreamingStates(stateCount)

	// Wait out any pass already in flight, then claim the flag so the
	// flush cannot interleave with it.
	st.mu.Lock()
	for st.inFlight {
		st.cond.Wait()
	}
	st.inFlight = true
	st.mu.Unlock()

	finalText := ""
	if combined, meaningful := p.takeBuffer(st); meaningful {
		text, err := p.transcriber.Transcribe(ctx, combined, st.languageCode)
		switch {
		case err != nil:
			p.metrics.TranscriptionFailed()
			p.sink.HandleTranscriptionError(ctx, sessionID, err)
		case text != "":
			finalText = text
		}
	}

	st.mu.Lock()
	if finalText == "" {
		finalText = st.lastTranscript
	}
	st.inFlight = false
	st.cond.Broadcast()
	st.mu.Unlock()

	if finalText != "" {
		p.metrics.TranscriptEmitted()
		p.sink.HandleTranscript(ctx, TranscriptEvent{
			SessionID:    sessionID,
			LanguageCode: st.languageCode,
			Text:         finalText,
			IsFinal:      true,
		})
	}
	return nil
}

// Discard drops a session's streaming state without emitting anything.
// Used when a session is torn down by cleanup.
func (p *Pipeline) Discard(sessionID string) {
	p.mu.Lock()
	delete(p.states, sessionID)
	stateCount := len(p.states)
	p.mu.Unlock()
	p.metrics.SetStreamingStates(stateCount)
}

// StateCount returns the number of live streaming states.
func (p *Pipeline) StateCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.states)
}

func (p *Pipeline) getOrCreateState(sessionID, languageCode string, replace bool) *streamState {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, exists := p.states[sessionID]
	if !exists || replace {
		st = newStreamState(sessionID, languageCode)
		p.states[sessionID] = st
		p.metrics.SetStreamingStates(len(p.states))
	}
	return st
}

// stateAlive reports whether st is still the registered state for its
// session. Results for torn-down sessions are discarded on completion.
func (p *Pipeline) stateAlive(st *streamState) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.states[st.sessionID] == st
}

// takeBuffer concatenates all pending chunks. Below the minimum
// meaningful size it consumes nothing and reports false. Beyond the
// maximum retained size it keeps only the most recent bytes and leaves
// that tail pending as retained context; otherwise the pending list is
// fully consumed.
func (p *Pipeline) takeBuffer(st *streamState) ([]byte, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.pendingBytes < p.config.MinBufferedBytes {
		return nil, false
	}

	combined := make([]byte, 0, st.pendingBytes)
	for _, chunk := range st.pending {
		combined = append(combined, chunk...)
	}

	if len(combined) > p.config.MaxBufferedBytes {
		tail := make([]byte, p.config.MaxBufferedBytes)
		copy(tail, combined[len(combined)-p.config.MaxBufferedBytes:])
		combined = tail
		st.pending = [][]byte{tail}
		st.pendingBytes = len(tail)
		p.metrics.AudioTruncated()
	} else {
		st.pending = nil
		st.pendingBytes = 0
	}
	st.newData = false

	return combined, true
}

// process runs one transcription pass. The in-flight flag is already held
// by the caller and is released here no matter how the pass ends, so a
// session can never get stuck permanently processing.
func (p *Pipeline) process(st *streamState) {
	defer func() {
		// Lock order is pipeline then state, so check liveness first.
		alive := p.stateAlive(st)
		st.mu.Lock()
		st.inFlight = false
		st.cond.Broadcast()
		reschedule := alive && st.newData && st.pendingBytes >= p.config.MinBufferedBytes
		if reschedule {
			st.inFlight = true
		}
		st.mu.Unlock()
		if reschedule {
			go p.process(st)
		}
	}()

	combined, meaningful := p.takeBuffer(st)
	if !meaningful {
		return
	}

	start := time.Now()
	text, err := p.transcriber.Transcribe(p.ctx, combined, st.languageCode)
	p.metrics.ObserveTranscription(time.Since(start).Seconds())
	if err != nil {
		p.metrics.TranscriptionFailed()
		p.sink.HandleTranscriptionError(p.ctx, st.sessionID, err)
		return
	}
	if text == "" {
		return
	}
	if !p.stateAlive(st) {
		// Session torn down while the call was in flight.
		return
	}

	st.mu.Lock()
	st.lastTranscript = text
	st.mu.Unlock()

	p.metrics.TranscriptEmitted()
	p.sink.HandleTranscript(p.ctx, TranscriptEvent{
		SessionID:    st.sessionID,
		LanguageCode: st.languageCode,
		Text:         text,
		IsFinal:      false,
	})
}

// sweepLoop periodically discards states whose last chunk is older than
// MaxIdle, bounding memory from clients that disconnect without
// finalizing.
func (p *Pipeline) sweepLoop() {
	defer close(p.sweepEnd)

	ticker := time.NewTicker(p.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.sweepIdle(time.Now())
		}
	}
}

func (p *Pipeline) sweepIdle(now time.Time) {
	p.mu.Lock()
	var expired []string
	for sessionID, st := range p.states {
		st.mu.Lock()
		idle := now.Sub(st.lastChunkTime) > p.config.MaxIdle
		st.mu.Unlock()
		if idle {
			expired = append(expired, sessionID)
		}
	}
	for _, sessionID := range expired {
		delete(p.states, sessionID)
	}
	stateCount := len(p.states)
	p.mu.Unlock()

	if len(expired) > 0 {
		log.Printf("audio: swept %d idle streaming states", len(expired))
		p.metrics.SetStreamingStates(stateCount)
	}
}
