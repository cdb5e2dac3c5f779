// Package api provides the HTTP REST API and WebSocket server for fanlink.
//
// It exposes fan state reads and writes, the IR signal catalog, the
// transmission history, and runtime metrics, plus a WebSocket event
// stream carrying settled state changes.
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

	"github.com/nerrad567/fanlink/internal/catalog"
	"github.com/nerrad567/fanlink/internal/fan"
	"github.com/nerrad567/fanlink/internal/infrastructure/config"
	"github.com/nerrad567/fanlink/internal/infrastructure/logging"
	"github.com/nerrad567/fanlink/internal/serial"
	"github.com/nerrad567/fanlink/internal/transmit"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// FanController is the fan surface the API drives.
// Implemented by fan.Accessory.
type FanController interface {
	SetOn(on bool) error
	SetSpeed(speed float64) error
	State() fan.State
	Band() fan.Band
}

// TransmissionLog provides read access to the transmission history.
// Implemented by fan.SQLiteStore.
type TransmissionLog interface {
	RecentTransmissions(ctx context.Context, fanID string, limit int) ([]fan.TransmissionRecord, error)
}

// LinkStats provides serial link statistics for the metrics endpoint.
type LinkStats interface {
	Stats() serial.Stats
}

// EngineStats provides transmission engine statistics for the metrics endpoint.
type EngineStats interface {
	Stats() transmit.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	FanID   string
	Fan     FanController
	Catalog *catalog.Catalog
	Log     TransmissionLog
	Link    LinkStats
	Engine  EngineStats
	Hub     *Hub // If set, the server uses this hub instead of creating its own
	Version string
}

// Server is the HTTP API server for fanlink.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	fanID       string
	fc          FanController
	catalog     *catalog.Catalog
	txLog       TransmissionLog
	link        LinkStats
	engine      EngineStats
	version     string
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
//   - deps: Required dependencies (config, logger, fan controller)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Fan == nil {
		return nil, fmt.Errorf("fan controller is required")
	}
	if deps.FanID == "" {
		return nil, fmt.Errorf("fan ID is required")
	}
	// Catalog, transmission log, and stats sources are optional; their
	// endpoints return empty results when absent.

	s := &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		fanID:   deps.FanID,
		fc:      deps.Fan,
		catalog: deps.Catalog,
		txLog:   deps.Log,
		link:    deps.Link,
		engine:  deps.Engine,
		version: deps.Version,
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub. It is nil until Start() unless
// a hub was injected via Deps.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.cfg.WebSocket, s.logger)
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
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
