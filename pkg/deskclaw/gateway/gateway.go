// Package gateway exposes the agent over HTTP: a chat endpoint, task and
// transcript views, the guarded disk browser, and a websocket that pushes
// background results as they finish.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/diskscan"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/store"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/tasks"
)

// Config configures the HTTP gateway.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`

	// AuthToken, when set, is required as "Authorization: Bearer <token>"
	// on every route except /health. Websocket clients may pass it as the
	// token query parameter.
	AuthToken string `yaml:"auth_token"`

	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultConfig listens on loopback only.
func DefaultConfig() Config {
	return Config{Enabled: true, Address: "127.0.0.1:8085"}
}

// Backend is what the gateway serves. *agent.Agent implements it.
type Backend interface {
	HandleMessage(ctx context.Context, text string, sink tasks.Sink) string
	Tasks() *tasks.Executor
	Disk() *diskscan.Service
	Transcript(ctx context.Context, limit int) ([]store.Message, error)
	Actions(ctx context.Context, limit int) ([]store.Action, error)
}

// Gateway is the HTTP API server.
type Gateway struct {
	backend   Backend
	config    Config
	version   string
	server    *http.Server
	hub       *hub
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a Gateway. Task state changes are pushed to websocket
// clients from then on.
func New(backend Backend, cfg Config, version string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = DefaultConfig().Address
	}
	logger = logger.With("component", "gateway")
	g := &Gateway{
		backend:   backend,
		config:    cfg,
		version:   version,
		hub:       newHub(logger),
		logger:    logger,
		startedAt: time.Now(),
	}
	if ex := backend.Tasks(); ex != nil {
		ex.SetObserver(func(r tasks.Record) {
			g.hub.broadcast(Event{Type: EventTask, Task: &r})
		})
	}
	return g
}

// Handler returns the routed handler wrapped in the middleware chain.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("POST /api/chat", g.handleChat)
	mux.HandleFunc("GET /api/tasks", g.handleTasks)
	mux.HandleFunc("GET /api/tasks/{id}", g.handleTask)
	mux.HandleFunc("GET /api/transcript", g.handleTranscript)
	mux.HandleFunc("GET /api/actions", g.handleActions)
	mux.HandleFunc("GET /api/diskscan/status", g.handleDiskStatus)
	mux.HandleFunc("GET /api/diskscan/roots", g.handleDiskRoots)
	mux.HandleFunc("GET /api/diskscan/browse", g.handleDiskBrowse)
	mux.HandleFunc("GET /api/diskscan/info", g.handleDiskInfo)
	mux.HandleFunc("GET /api/diskscan/search", g.handleDiskSearch)
	mux.HandleFunc("GET /ws", g.handleWebSocket)

	return g.securityHeadersMiddleware(g.corsMiddleware(g.authMiddleware(mux)))
}

// Start binds the listen address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Address)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.config.Address, err)
	}

	if g.config.AuthToken == "" && !isLoopback(g.config.Address) {
		g.logger.Warn("gateway has no auth token and is bound to a non-loopback address; anyone on the network can control this PC",
			"address", g.config.Address)
	}

	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", ln.Addr().String())
	return nil
}

// Stop closes websocket clients and shuts the server down.
func (g *Gateway) Stop(ctx context.Context) error {
	g.hub.close()
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping")
	return g.server.Shutdown(ctx)
}

func isLoopback(address string) bool {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
