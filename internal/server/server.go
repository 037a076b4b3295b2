// Package server exposes the host over HTTP and WebSocket: the pairing
// endpoints, the local utilities, and one WebSocket endpoint per role.
package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/remotekeys/host/internal/auth"
	"github.com/remotekeys/host/internal/broker"
	"github.com/remotekeys/host/internal/input"
	"github.com/remotekeys/host/internal/keepawake"
	"github.com/remotekeys/host/internal/logging"
	"github.com/remotekeys/host/internal/netinfo"
	"github.com/remotekeys/host/internal/pairing"
)

// Route paths.
const (
	PathHealth           = "/health"
	PathChallenge        = "/auth/challenge"
	PathChallengeQR      = "/auth/challenge/{id}/qr"
	PathVerify           = "/auth/verify"
	PathLANIP            = "/utils/get-lan-ip"
	PathWaiting          = "/ws/waiting"
	PathPanel            = "/ws/panel"
	PathControlPanel     = "/ws/control-panel"
	deviceTokenQueryName = "device_token"
)

// ControlOwner labels the Input Controller claim held by a control panel.
const ControlOwner = "Client Control Panel"

// Config holds server settings.
type Config struct {
	// Addr is the listen address, e.g. "0.0.0.0:8000".
	Addr string

	// CORSAllowedOrigins lists origins allowed for browser calls and
	// WebSocket upgrades. "*" allows any.
	CORSAllowedOrigins []string

	// VerifyRatePerMinute caps /auth/verify across all callers. Zero disables.
	VerifyRatePerMinute int

	// ControlRatePerSecond caps control messages per connection. Zero disables.
	ControlRatePerSecond int

	// Logger receives server events. Default: discard.
	Logger logrus.FieldLogger
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Broker     *broker.Broker
	Pairing    *pairing.Service
	Rotator    *pairing.Rotator
	Tokens     *auth.TokenStore
	Controller *input.Controller
	Guard      *netinfo.Guard

	// KeepAwake is optional. When set, it is enabled for as long as a
	// control panel owns the keyboard.
	KeepAwake *keepawake.Manager
}

// Server is the HTTP and WebSocket front of the host.
type Server struct {
	config Config
	deps   Deps
	log    logrus.FieldLogger

	upgrader websocket.Upgrader

	// ctx is cancelled on Stop and parents every rotation loop.
	ctx    context.Context
	cancel context.CancelFunc

	// conns tracks running connection loops so Stop can wait for them.
	conns sync.WaitGroup

	mu         sync.Mutex
	httpServer *http.Server
	listenAddr string
	stopped    bool
}

// New creates a server. Call StartAsync to begin accepting connections.
func New(cfg Config, deps Deps) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if deps.Guard == nil {
		deps.Guard = netinfo.NewGuard(cfg.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		deps:       deps,
		log:        logging.Component(cfg.Logger, "server"),
		ctx:        ctx,
		cancel:     cancel,
		listenAddr: cfg.Addr,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return s
}

// Handler returns the full route tree wrapped in CORS.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc(PathHealth, handleHealth).Methods(http.MethodGet)
	router.Handle(PathVerify, pairing.NewVerifyHandler(s.deps.Pairing, s.config.VerifyRatePerMinute, s.config.Logger)).Methods(http.MethodPost)
	router.HandleFunc(PathControlPanel, s.handleControlPanel).Methods(http.MethodGet)

	local := router.NewRoute().Subrouter()
	local.Use(s.localOnly)
	local.Handle(PathChallenge, pairing.NewChallengeHandler(s.deps.Pairing, s.config.Logger)).Methods(http.MethodPost)
	local.HandleFunc(PathChallengeQR, s.handleChallengeQR).Methods(http.MethodGet)
	local.HandleFunc(PathLANIP, s.handleLANIP).Methods(http.MethodGet)
	local.HandleFunc(PathWaiting, s.handleWaiting).Methods(http.MethodGet)
	local.HandleFunc(PathPanel, s.handlePanel).Methods(http.MethodGet)

	co := cors.New(cors.Options{
		AllowedOrigins: s.config.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return co.Handler(router)
}

// checkOrigin admits WebSocket upgrades from the configured CORS origins.
// Native clients send no Origin header and are always admitted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.CORSAllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	s.log.WithField("origin", origin).Warn("websocket origin rejected")
	return false
}

// Addr returns the bound listen address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

// shutdownGrace bounds how long Stop waits for connection loops.
const shutdownGrace = 5 * time.Second
