package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/keymux/internal/device"
	"github.com/nerrad567/keymux/internal/engine"
	"github.com/nerrad567/keymux/internal/infrastructure/config"
	"github.com/nerrad567/keymux/internal/infrastructure/logging"
	"github.com/nerrad567/keymux/internal/infrastructure/metrics"
	"github.com/nerrad567/keymux/internal/worker"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 5 * time.Second

// EngineView is the read side of the engine. *engine.Engine satisfies it.
type EngineView interface {
	Snapshot() (engine.Snapshot, error)
	Poisoned() bool
}

// WorkerView lists reader goroutines. *worker.Registry satisfies it.
type WorkerView interface {
	Stats() []worker.Stats
}

// HealthChecker is implemented by the infrastructure clients
// (database, MQTT, InfluxDB) and by Server itself.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Check names a HealthChecker reported by /api/v1/health.
type Check struct {
	Name    string
	Checker HealthChecker
}

// Deps holds the collaborators of the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Engine  EngineView
	Workers WorkerView

	// Optional.
	Sessions device.SessionRepository
	Metrics  *metrics.Metrics
	Hub      *Hub
	Checks   []Check

	Version string
}

// Server is the status HTTP server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	engine   EngineView
	workers  WorkerView
	sessions device.SessionRepository
	metrics  *metrics.Metrics
	hub      *Hub
	checks   []Check
	version  string

	startTime time.Time
	server    *http.Server
	listener  net.Listener
	cancel    context.CancelFunc
}

// New validates deps. The server does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Workers == nil {
		return nil, fmt.Errorf("worker registry is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Logger)
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		engine:    deps.Engine,
		workers:   deps.Workers,
		sessions:  deps.Sessions,
		metrics:   deps.Metrics,
		hub:       hub,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Hub returns the websocket hub, for wiring notifications into it.
func (s *Server) Hub() *Hub { return s.hub }

// Start binds the listener and serves in the background. The bind happens
// synchronously so a busy port is reported to the caller.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close shuts the server down, waiting briefly for in-flight requests.
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

// HealthCheck reports an error before Start or after cancellation.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
