package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"lingocast/internal/api"
	"lingocast/internal/audio"
	"lingocast/internal/cleanup"
	"lingocast/internal/config"
	"lingocast/internal/database"
	"lingocast/internal/hub"
	"lingocast/internal/metrics"
	"lingocast/internal/provider"
	"lingocast/internal/router"
	"lingocast/internal/session"
	"lingocast/internal/websocket"
	dbconfig "lingocast/pkg/database"
	"lingocast/pkg/interfaces"
)

// Providers carries the vendor adapters the fallback chains run over, in
// priority order. Deployments plug their transcription and translation
// backends here; the orchestration layer never depends on a concrete
// vendor.
type Providers struct {
	Transcribers []interfaces.Transcriber
	Translators  []interfaces.Translator
}

// Application owns every component and their start/stop ordering.
type Application struct {
	config *config.Config

	storage   *database.Manager
	metrics   *metrics.Metrics
	sessions  *session.Manager
	registry  *websocket.Registry
	pipeline  *audio.Pipeline
	scheduler *cleanup.Scheduler
	router    *router.Router
	hub       *hub.Hub
	server    *http.Server

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// statsAdapter exposes the live counters the diagnostics surface reads.
type statsAdapter struct {
	sessions *session.Manager
	registry *websocket.Registry
}

func (s *statsAdapter) ActiveSessionCount() int    { return s.sessions.ActiveSessionCount() }
func (s *statsAdapter) ActiveConnectionCount() int { return s.registry.ActiveConnectionCount() }

// New builds the full dependency graph: storage, session directory,
// connection registry, audio pipeline, fallback chains, router, hub,
// cleanup scheduler, and the HTTP surface.
func New(cfg *config.Config, providers Providers) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbCfg := dbconfig.DefaultConfig()
	dbCfg.DatabasePath = cfg.Database.Path
	storage, err := database.NewManager(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	m := metrics.NewMetrics()

	codes := session.NewCodeDirectory(cfg.Codes.TTL)
	sessions := session.NewManager(storage, codes, session.Config{
		GraceWindow:     cfg.Cleanup.GraceWindow,
		MinRealDuration: cfg.Cleanup.MinRealDuration,
	}, m)

	registry := websocket.NewRegistry(cfg.WebSocket.PingInterval, m)

	rateLimiter := router.NewRateLimiter(cfg.RateLimit.MaxMessages, cfg.RateLimit.Window)
	msgRouter := router.NewRouter(registry, rateLimiter)

	translationChain := provider.NewTranslationChain(providers.Translators...)
	transcriptionChain := provider.NewTranscriptionChain(providers.Transcribers...)

	h := hub.NewHub(msgRouter, registry, sessions, translationChain, storage)
	pipeline := audio.NewPipeline(transcriptionChain, h, audio.Config{
		MinBufferedBytes: cfg.Audio.MinBufferedBytes,
		MaxBufferedBytes: cfg.Audio.MaxBufferedBytes,
		MaxIdle:          cfg.Audio.MaxIdle,
		SweepInterval:    cfg.Audio.SweepInterval,
	}, m)
	h.SetPipeline(pipeline)
	h.RegisterHandlers()

	scheduler := cleanup.NewScheduler([]cleanup.Strategy{
		cleanup.NewAbandonedStrategy(sessions),
		cleanup.NewEmptyTeacherStrategy(sessions, cfg.Cleanup.TeacherWait),
		cleanup.NewInactivityStrategy(sessions, cfg.Cleanup.InactivityWindow),
	}, cfg.Cleanup.TickInterval, cfg.Cleanup.PassTimeout, m)

	wsHandler := websocket.NewHandler(registry, msgRouter, cfg.WebSocket.WriteTimeout)
	apiServer := api.NewServer(storage, &statsAdapter{sessions: sessions, registry: registry})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	mux.Handle("/", apiServer)

	app := &Application{
		config:   cfg,
		storage:  storage,
		metrics:  m,
		sessions: sessions,
		registry: registry,
		pipeline: pipeline,
		router:   msgRouter,
		hub:      h,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
			Handler:      mux,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		},
		scheduler: scheduler,
	}
	app.rateLimiterCleanup(rateLimiter)
	return app, nil
}

// rateLimiterCleanup folds rate limiter and code expiry into one
// housekeeping ticker owned by the application.
func (a *Application) rateLimiterCleanup(rl *router.RateLimiter) {
	a.sweepStop = make(chan struct{})
	a.sweepDone = make(chan struct{})
	interval := a.config.Codes.SweepInterval

	go func() {
		defer close(a.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.sweepStop:
				return
			case now := <-ticker.C:
				a.sessions.SweepExpiredCodes(now)
				rl.Cleanup()
			}
		}
	}()
}

// Start brings the system up in dependency order and begins serving.
// Blocks until the HTTP server exits.
func (a *Application) Start(ctx context.Context) error {
	if err := a.sessions.LoadActiveSessions(ctx); err != nil {
		return fmt.Errorf("failed to load active sessions: %w", err)
	}
	if err := a.pipeline.Start(); err != nil {
		return err
	}
	if err := a.registry.StartHeartbeat(); err != nil {
		return err
	}
	if err := a.scheduler.Start(); err != nil {
		return err
	}

	log.Printf("Listening on %s", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts components down in reverse dependency order.
func (a *Application) Stop(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(a.server.Shutdown(ctx))
	record(a.scheduler.Stop())
	record(a.registry.StopHeartbeat())
	record(a.pipeline.Stop())

	close(a.sweepStop)
	<-a.sweepDone

	for _, conn := range a.registry.Connections() {
		conn.Close()
	}

	record(a.storage.Close())
	log.Println("Shutdown complete")
	return firstErr
}
