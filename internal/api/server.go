package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/indi-bridge/internal/device"
	"github.com/nerrad567/indi-bridge/internal/indi"
	"github.com/nerrad567/indi-bridge/internal/indiserver"
	"github.com/nerrad567/indi-bridge/internal/infrastructure/config"
	"github.com/nerrad567/indi-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// PropertySetter sends property changes to the INDI server.
// Satisfied by *bridges/indi.Bridge.
type PropertySetter interface {
	SetProperty(ctx context.Context, device, property string, kind indi.Kind, values map[string]any) error
}

// HistoryReader is the read half of device.HistoryRepository.
type HistoryReader interface {
	GetHistory(ctx context.Context, device, property string, limit int) ([]device.HistoryEntry, error)
}

// StatusReporter reports a connection's liveness. Satisfied by
// *mqtt.Client and indi.Client.
type StatusReporter interface {
	IsConnected() bool
}

// DBStatsProvider is satisfied by *sql.DB.
type DBStatsProvider interface {
	Stats() sql.DBStats
}

// ServerStatsProvider is satisfied by *indiserver.Supervisor.
type ServerStatsProvider interface {
	Stats() indiserver.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *device.Registry

	// Optional. Without Setter, property writes return 503; without
	// History, history reads return 503.
	Setter  PropertySetter
	History HistoryReader
	INDI    indi.Client
	MQTT    StatusReporter
	DB      DBStatsProvider
	Server  ServerStatsProvider

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	registry   *device.Registry
	setter     PropertySetter
	history    HistoryReader
	indi       indi.Client
	mqtt       StatusReporter
	db         DBStatsProvider
	supervisor ServerStatsProvider
	version    string
	startTime  time.Time

	server   *http.Server
	listener net.Listener
	hub      *Hub
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		registry:   deps.Registry,
		setter:     deps.Setter,
		history:    deps.History,
		indi:       deps.INDI,
		mqtt:       deps.MQTT,
		db:         deps.DB,
		supervisor: deps.Server,
		version:    deps.Version,
		startTime:  time.Now(),
	}
	s.hub = NewHub(s.wsCfg, s.registry, s.setter, s.logger)
	s.registry.OnChange(s.hub.BroadcastChange)
	return s, nil
}

// Start binds the listener and serves in a background goroutine. The hub
// runs until ctx is cancelled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running.
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
