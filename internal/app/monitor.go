package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"examwatch/internal/api"
	"examwatch/internal/config"
	"examwatch/internal/connection"
	"examwatch/internal/database"
	"examwatch/internal/reducer"
	"examwatch/internal/router"
	"examwatch/internal/stats"
	"examwatch/internal/websocket"
	pkgdatabase "examwatch/pkg/database"
	"examwatch/pkg/interfaces"
)

// Monitor wires the full proctoring monitor for one exam: metadata store,
// reducer, router, connection manager and the snapshot API.
type Monitor struct {
	config      *config.Config
	dbManager   *database.Manager
	state       *reducer.Reducer
	eventRouter *router.Router
	connections *connection.Manager
	statsEngine *stats.Engine
	apiServer   *api.Server
	httpServer  *http.Server
}

// NewMonitor creates a monitor with all components initialized.
// Initialization order: Database → Metadata → Reducer → Router →
// Connections → Stats → API → HTTP.
func NewMonitor(cfg *config.Config) (*Monitor, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Metadata store / violation archive.
	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: Exam metadata, queried exactly once, never on the event path.
	totalQuestions := 0
	metaCtx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	meta, err := dbManager.GetExamMetadata(metaCtx, cfg.Monitor.ExamID)
	cancel()
	switch {
	case err == nil:
		totalQuestions = meta.TotalQuestions
		log.Printf("Monitoring exam: id=%s title=%q questions=%d", meta.ExamID, meta.Title, meta.TotalQuestions)
	case errors.Is(err, interfaces.ErrExamNotFound):
		// Progress percentages stay unavailable but monitoring proceeds.
		log.Printf("No metadata for exam %s; progress reported without totals", cfg.Monitor.ExamID)
	default:
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to load exam metadata: %w", err)
	}

	// STEP 3: Session state reducer, the single state authority.
	state := reducer.New(totalQuestions)

	// STEP 4: Event router with the bounded logs and optional archiver.
	var archiver interfaces.ViolationArchiver
	if cfg.Monitor.ArchiveViolations {
		archiver = dbManager
	}
	eventRouter, err := router.NewRouter(state, archiver)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to initialize event router: %w", err)
	}

	// STEP 5: Connection manager over the websocket dialer.
	dialer := websocket.NewDialer(websocket.Config{
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		ReadTimeout:      cfg.WebSocket.ReadTimeout,
		WriteTimeout:     cfg.WebSocket.WriteTimeout,
		PingInterval:     cfg.WebSocket.PingInterval,
		MaxMessageSize:   cfg.WebSocket.MaxMessageSize,
	})
	connections := connection.NewManager(
		cfg.Monitor.UpstreamURL, cfg.Monitor.ExamID, cfg.Monitor.Credential,
		dialer, eventRouter, state)

	// STEP 6: Roster announcements drive the connection set.
	eventRouter.SetRosterHandler(connections)

	// STEP 7: Read-side projections and the snapshot API.
	statsEngine := stats.NewEngine(state)
	apiServer := api.NewServer(statsEngine, eventRouter, connections)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Monitor{
		config:      cfg,
		dbManager:   dbManager,
		state:       state,
		eventRouter: eventRouter,
		connections: connections,
		statsEngine: statsEngine,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

// Start opens the roster connection and begins serving the snapshot API.
// Per-session connections follow from roster announcements.
func (m *Monitor) Start(ctx context.Context) error {
	log.Printf("Starting examwatch monitor for exam %s on %s", m.config.Monitor.ExamID, m.httpServer.Addr)

	// STEP 1: Roster connection; joins/leaves drive everything else.
	if err := m.connections.OpenRoster(); err != nil {
		return fmt.Errorf("failed to open roster connection: %w", err)
	}

	// STEP 2: Snapshot API.
	serverErrCh := make(chan error, 1)
	go func() {
		if err := m.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		m.connections.CloseAll()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Monitor started")
		return nil
	case <-ctx.Done():
		m.connections.CloseAll()
		return ctx.Err()
	}
}

// Stop tears the monitor down in reverse order: HTTP → connections →
// database. After Stop, no connection remains open and the in-memory
// state map is released with the monitor.
func (m *Monitor) Stop(ctx context.Context) error {
	log.Printf("Shutting down examwatch monitor")

	if err := m.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	m.connections.CloseAll()

	if err := m.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("Monitor shutdown complete")
	return nil
}

// GetAddr returns the snapshot API address.
func (m *Monitor) GetAddr() string {
	return m.httpServer.Addr
}
