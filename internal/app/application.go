package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"edujam/internal/ai"
	"edujam/internal/api"
	"edujam/internal/auth"
	"edujam/internal/blob"
	"edujam/internal/config"
	"edujam/internal/database"
	"edujam/internal/hub"
	"edujam/internal/metrics"
	"edujam/internal/room"
	"edujam/internal/router"
	"edujam/internal/session"
	"edujam/internal/upload"
	"edujam/internal/websocket"
	pkgdatabase "edujam/pkg/database"
	"edujam/pkg/interfaces"
	"edujam/pkg/types"
)

// OfflineTutorReply answers chat messages when no AI key is configured
const OfflineTutorReply = "The AI tutor is not configured on this server yet. Ask your instructor to add an API key."

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config    *config.Config
	metrics   *metrics.Metrics
	dbManager *database.Manager

	boardHub *hub.Hub
	chatHub  *hub.Hub
	groupHub *hub.Hub

	boards *router.BoardDispatcher
	chat   *router.ChatDispatcher
	groups *router.GroupDispatcher

	sweeper    *hub.Sweeper
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Collaborators → Hubs → Dispatchers → Sweeper → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Chat history store (the only durable state)
	dbManager, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	app, err := assemble(cfg, dbManager)
	if err != nil {
		_ = dbManager.Close()
		return nil, err
	}
	return app, nil
}

func openDatabase(cfg *config.DatabaseConfig) (*database.Manager, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Path
	dbConfig.WriteTimeout = cfg.Timeout

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}
	log.Printf("Chat history database ready: path=%s", cfg.Path)
	return dbManager, nil
}

func assemble(cfg *config.Config, dbManager *database.Manager) (*Application, error) {
	// STEP 2: Collaborators of the chat channel
	responder, err := newResponder(cfg.AI)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.NewLocalStore(cfg.Storage.Dir, cfg.Storage.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}
	verifier, err := newVerifier(cfg.Auth)
	if err != nil {
		return nil, err
	}

	// STEP 3: One hub per channel, each with its own session registry and room directory
	m := metrics.New()
	newHub := func(channel string) *hub.Hub {
		return hub.New(channel, session.NewRegistry(channel), room.NewDirectory(channel), m)
	}
	app := &Application{
		config:    cfg,
		metrics:   m,
		dbManager: dbManager,
		boardHub:  newHub(types.ChannelBoard),
		chatHub:   newHub(types.ChannelChat),
		groupHub:  newHub(types.ChannelGroup),
	}

	// STEP 4: Dispatchers. The board channel opens a group's linked board on first join.
	perMinute := cfg.WebSocket.CommandsPerMinute
	if app.groups, err = router.NewGroupDispatcher(app.groupHub, perMinute, cfg.Groups.MaxParticipants); err != nil {
		return nil, fmt.Errorf("failed to create group dispatcher: %w", err)
	}
	if app.boards, err = router.NewBoardDispatcher(app.boardHub, perMinute, app.groups.HasBoard); err != nil {
		return nil, fmt.Errorf("failed to create board dispatcher: %w", err)
	}
	uploads := upload.NewTracker(cfg.Storage.MaxUploadSize)
	if app.chat, err = router.NewChatDispatcher(app.chatHub, perMinute, dbManager, responder, blobs, uploads); err != nil {
		return nil, fmt.Errorf("failed to create chat dispatcher: %w", err)
	}

	// STEP 5: Sweeper probes and expires sessions on all three channels
	app.sweeper = hub.NewSweeper(cfg.Sweeper.Interval, cfg.Sweeper.SessionTimeout, app.boardHub, app.chatHub, app.groupHub)
	app.sweeper.After(app.boards.Limiter().Cleanup)
	app.sweeper.After(app.chat.Limiter().Cleanup)
	app.sweeper.After(app.groups.Limiter().Cleanup)

	// STEP 6: REST surface plus the three WebSocket endpoints behind one CORS policy
	app.apiServer, err = api.NewServer(api.Deps{
		Boards:         app.boardHub,
		Chat:           app.chatHub,
		Groups:         app.groupHub,
		GroupLister:    app.groups,
		Files:          blobs,
		Database:       dbManager,
		Metrics:        m,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}

	opts := websocket.HandlerOptions{
		Connection: websocket.Options{
			BufferSize:   cfg.WebSocket.BufferSize,
			WriteTimeout: cfg.WebSocket.WriteTimeout,
		},
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}
	endpoints := []struct {
		pattern    string
		hub        *hub.Hub
		dispatcher websocket.Dispatcher
	}{
		{"GET /ws/board", app.boardHub, app.boards},
		{"GET /ws/chat", app.chatHub, app.chat},
		{"GET /ws/study-group", app.groupHub, app.groups},
	}
	for _, ep := range endpoints {
		handler, err := websocket.NewHandler(ep.hub, ep.dispatcher, verifier, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s handler: %w", ep.hub.Channel(), err)
		}
		app.apiServer.Handle(ep.pattern, handler)
	}

	// STEP 7: HTTP server
	app.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           app.apiServer,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	return app, nil
}

func newResponder(cfg *config.AIConfig) (interfaces.AIResponder, error) {
	if cfg.APIKey == "" {
		log.Printf("AI tutor disabled: no API key configured")
		return ai.StaticResponder{Reply: OfflineTutorReply}, nil
	}
	responder, err := ai.NewOpenAIResponder(ai.Config{
		Endpoint:    cfg.Endpoint,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI responder: %w", err)
	}
	return responder, nil
}

// newVerifier returns nil when no secret is configured; every connection is
// then anonymous and the study-group channel rejects all but liveness commands
func newVerifier(cfg *config.AuthConfig) (interfaces.AuthVerifier, error) {
	if cfg.JWTSecret == "" {
		log.Printf("JWT verification disabled: no secret configured")
		return nil, nil
	}
	verifier, err := auth.NewJWTVerifier(cfg.JWTSecret, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT verifier: %w", err)
	}
	return verifier, nil
}

// Start begins application execution
// The sweeper starts first, then the listener is bound so Start reports a
// bad address synchronously instead of from a goroutine
func (app *Application) Start(ctx context.Context) error {
	if err := app.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.sweeper.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("EduJam started on %s", listener.Addr())
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → live sessions → Sweeper → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down EduJam")

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	// Hijacked WebSocket connections are not covered by Shutdown
	for _, h := range []*hub.Hub{app.boardHub, app.chatHub, app.groupHub} {
		if n := h.CloseAll(metrics.ReasonShutdown); n > 0 {
			log.Printf("[%s] Closed %d sessions on shutdown", h.Channel(), n)
		}
	}

	if err := app.sweeper.Stop(); err != nil && !errors.Is(err, hub.ErrSweeperNotRunning) {
		errs = append(errs, fmt.Errorf("sweeper shutdown: %w", err))
	}

	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	log.Printf("EduJam shutdown complete")
	return errors.Join(errs...)
}

// Addr returns the bound address once started, else the configured one
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the root HTTP handler, for tests that drive it without a listener
func (app *Application) Handler() http.Handler {
	return app.apiServer
}
