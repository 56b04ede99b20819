package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/garagegate/internal/adapters"
	"github.com/nerrad567/garagegate/internal/auth"
	"github.com/nerrad567/garagegate/internal/coordinator"
	"github.com/nerrad567/garagegate/internal/door"
	"github.com/nerrad567/garagegate/internal/history"
	"github.com/nerrad567/garagegate/internal/infrastructure/config"
	"github.com/nerrad567/garagegate/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Door is the coordinator as seen by the API.
type Door interface {
	Submit(ctx context.Context, cmd door.Command) error
	Snapshot() coordinator.Snapshot
}

// HistoryReader serves the local audit trail.
type HistoryReader interface {
	Transitions(ctx context.Context, limit int) ([]history.Transition, error)
	Decisions(ctx context.Context, limit int) ([]history.Decision, error)
}

// PlateAdmin lists, counts and adds authorised plates.
type PlateAdmin interface {
	List(ctx context.Context) ([]door.AuthorizationRecord, error)
	Count(ctx context.Context) (int, error)
	Upsert(ctx context.Context, plate string, metadata map[string]string) (string, error)
}

// HealthChecker is implemented by infrastructure with an active probe
// (database, MQTT, InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	SharedSecret string
	Logger       *logging.Logger

	Door    Door
	History HistoryReader
	Plates  PlateAdmin
	Status  *adapters.StatusBoard

	// Metrics serves the Prometheus exposition format. Optional.
	Metrics http.Handler

	// Checks are probed by GET /health. Optional; keyed by component.
	Checks map[string]HealthChecker

	// Hub broadcasts door events. If nil the server creates its own.
	Hub *Hub

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secret    []byte
	issuer    *auth.Issuer
	logger    *logging.Logger
	door      Door
	history   HistoryReader
	plates    PlateAdmin
	status    *adapters.StatusBoard
	metrics   http.Handler
	checks    map[string]HealthChecker
	version   string
	startTime time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc // stops the hub on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, door); the rest are optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Door == nil {
		return nil, fmt.Errorf("door is required")
	}
	if deps.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secret:    []byte(deps.SharedSecret),
		issuer:    auth.NewIssuer(deps.SharedSecret),
		logger:    deps.Logger,
		door:      deps.Door,
		history:   deps.History,
		plates:    deps.Plates,
		status:    deps.Status,
		metrics:   deps.Metrics,
		checks:    deps.Checks,
		version:   deps.Version,
		hub:       deps.Hub,
		startTime: time.Now(),
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub, so it can be registered as a publisher
// observer.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The listener is bound before Start returns so a
// port conflict is reported to the caller.
//
// Parameters:
//   - ctx: Parent context for the hub; the listener lives until Close()
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("API server starting", "address", s.server.Addr)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
