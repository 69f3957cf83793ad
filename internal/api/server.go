// Package api provides the HTTP REST API and WebSocket server for the arbiter.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-arbiter/internal/activity"
	"github.com/nerrad567/gray-logic-arbiter/internal/arbitration"
	"github.com/nerrad567/gray-logic-arbiter/internal/audit"
	"github.com/nerrad567/gray-logic-arbiter/internal/catalog"
	"github.com/nerrad567/gray-logic-arbiter/internal/command"
	"github.com/nerrad567/gray-logic-arbiter/internal/dispatch"
	"github.com/nerrad567/gray-logic-arbiter/internal/frontend"
	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// LockService grants and removes command locks. *arbitration.Service
// satisfies it.
type LockService interface {
	Select(ctx context.Context, commandIDs []string, agentID string, ttl time.Duration) (*arbitration.CommandLock, error)
	BlockAs(ctx context.Context, commandIDs []string, agentID string, ttl time.Duration) (*arbitration.CommandLock, error)
	Delete(ctx context.Context, lockID string) error
	DeleteMany(ctx context.Context, lockIDs []string) ([]string, error)
	Get(ctx context.Context, lockID string) (*arbitration.CommandLock, error)
	List(ctx context.Context) []*arbitration.CommandLock
	CoveringLock(commandID string) (*arbitration.CommandLock, bool)
}

// Dispatcher issues commands. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Issue(ctx context.Context, req command.Request, opts ...dispatch.Option) command.Result
}

// Catalog reads endpoints and commands. *catalog.Registry satisfies it.
type Catalog interface {
	ListEndpoints(ctx context.Context) ([]catalog.Endpoint, error)
	ListCommands(endpointID string) []catalog.Command
	ResolveCommand(commandID string) (catalog.Command, catalog.Endpoint, error)
	Stats() catalog.Stats
}

// HandlerLookup reports live front-end handlers. *frontend.Registry
// satisfies it.
type HandlerLookup interface {
	Lookup(endpointID string) (*frontend.Instance, bool)
	Len() int
}

// HealthChecker is any component that can report its health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Locks      LockService
	Dispatcher Dispatcher
	Catalog    Catalog
	Handlers   HandlerLookup

	Audit   audit.Repository // optional: /audit returns 503 without it
	Metrics *metrics.Metrics // optional: /metrics/prometheus returns 404 without it
	DB      *sql.DB          // optional: connection stats in /metrics

	// Checks are reported by /health. A failing check makes the response 503.
	Checks map[string]HealthChecker

	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for the arbiter.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	locks      LockService
	dispatcher Dispatcher
	catalog    Catalog
	handlers   HandlerLookup
	auditRepo  audit.Repository
	metrics    *metrics.Metrics
	db         *sql.DB
	checks     map[string]HealthChecker
	version    string
	startTime  time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	tickets     *ticketStore       // single-use WebSocket tickets
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Locks == nil {
		return nil, fmt.Errorf("lock service is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Handlers == nil {
		return nil, fmt.Errorf("handler registry is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger.Component("api"),
		locks:      deps.Locks,
		dispatcher: deps.Dispatcher,
		catalog:    deps.Catalog,
		handlers:   deps.Handlers,
		auditRepo:  deps.Audit,
		metrics:    deps.Metrics,
		db:         deps.DB,
		checks:     deps.Checks,
		version:    deps.Version,
		startTime:  time.Now(),
		tickets:    newTicketStore(),
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, s.logger,
			activity.ChannelLocks, activity.ChannelCommands, activity.ChannelEndpoints)
	}

	return s, nil
}

// Hub returns the WebSocket hub, for wiring as an activity broadcaster.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired HTTP handler. Start uses it; tests can
// serve it with httptest.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless injected), the ticket cleanup loop,
// and the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
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
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
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
