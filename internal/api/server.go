package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-twin/internal/history"
	"github.com/nerrad567/gray-logic-twin/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-twin/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-twin/internal/session"
	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

const gracefulShutdownTimeout = 10 * time.Second

// HistoryReader reads local attribute history. *history.SQLiteRepository
// implements it.
type HistoryReader interface {
	GetHistory(ctx context.Context, deviceID uuid.UUID, scope twin.Scope, key string, limit int) ([]history.Entry, error)
}

// ConnectionChecker reports whether an upstream connection is live.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds what the server needs. Session and Logger are required.
type Deps struct {
	Config         config.APIConfig
	WS             config.WebSocketConfig
	Logger         *logging.Logger
	Session        *session.Session
	History        HistoryReader     // nil disables /history
	MQTT           ConnectionChecker // nil reports disconnected
	DB             *sql.DB           // nil omits database metrics
	Hub            *Hub              // shared with the session; created when nil
	IgnoreTwinNull bool              // default diff mode when the query omits it
	Version        string
}

// Server is the HTTP server for the inspection API.
type Server struct {
	cfg            config.APIConfig
	wsCfg          config.WebSocketConfig
	logger         *logging.Logger
	session        *session.Session
	history        HistoryReader
	mqtt           ConnectionChecker
	db             *sql.DB
	hub            *Hub
	externalHub    bool
	ignoreTwinNull bool
	version        string
	startTime      time.Time

	server *http.Server
	cancel context.CancelFunc
}

// New validates deps and returns a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session is required")
	}

	s := &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		logger:         deps.Logger,
		session:        deps.Session,
		history:        deps.History,
		mqtt:           deps.MQTT,
		db:             deps.DB,
		ignoreTwinNull: deps.IgnoreTwinNull,
		version:        deps.Version,
		startTime:      time.Now(),
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}
	return s, nil
}

// Start begins serving in the background. ctx bounds the hub, not the
// listener; use Close to stop the listener.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close stops the hub and waits up to 10 seconds for in-flight requests.
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

// Hub returns the server's WebSocket hub, nil before Start when none was
// injected.
func (s *Server) Hub() *Hub {
	return s.hub
}
