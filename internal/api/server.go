// Package api provides the HTTP REST API and WebSocket server for
// FleetGlass Core.
//
// It exposes the live fleet snapshot, device toggle and batch-toggle
// dispatch, operation lookups, and history queries to dashboards, and
// pushes merged snapshots and operation updates over WebSocket.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetglass/fleetglass-core/internal/command"
	"github.com/fleetglass/fleetglass-core/internal/history"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/config"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/database"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/logging"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/metrics"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/mqtt"
	"github.com/fleetglass/fleetglass-core/internal/ledger"
	"github.com/fleetglass/fleetglass-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config         config.APIConfig
	WS             config.WebSocketConfig
	Logger         *logging.Logger
	Telemetry      *telemetry.Store
	Dispatcher     *command.Dispatcher
	Batch          *command.BatchCoordinator
	Ledger         *ledger.Ledger
	History        *history.Store
	MQTT           *mqtt.Client
	DB             *database.DB
	Metrics        *metrics.Registry
	CommandTimeout time.Duration
	ExternalHub    *Hub // If set, the server uses this hub instead of creating its own
	Version        string
}

// Server is the HTTP API server for FleetGlass Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	telemetry  *telemetry.Store
	dispatcher *command.Dispatcher
	batch      *command.BatchCoordinator
	ledger     *ledger.Ledger
	history    *history.Store
	mqtt       *mqtt.Client
	db         *database.DB
	metrics    *metrics.Registry
	cmdTimeout time.Duration
	version    string

	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, stores, dispatchers)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Telemetry == nil {
		return nil, fmt.Errorf("telemetry store is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("command dispatcher is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("operation ledger is required")
	}

	cmdTimeout := deps.CommandTimeout
	if cmdTimeout <= 0 {
		cmdTimeout = 5 * time.Second
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		telemetry:  deps.Telemetry,
		dispatcher: deps.Dispatcher,
		batch:      deps.Batch,
		ledger:     deps.Ledger,
		history:    deps.History,
		mqtt:       deps.MQTT,
		db:         deps.DB,
		metrics:    deps.Metrics,
		cmdTimeout: cmdTimeout,
		version:    deps.Version,
	}

	// Use externally-provided hub if available (needed when the batch
	// coordinator also requires the hub for operation broadcasts).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the
// HTTP listener in a background goroutine. The server can be stopped
// with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger, s.metrics)
		go s.hub.Run(srvCtx)
	}

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// Hub returns the WebSocket hub, creating it lazily when the server was
// constructed without an external one and has not started yet.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger, s.metrics)
	}
	return s.hub
}
