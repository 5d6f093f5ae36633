// Package gateway serves the HTTP introspection API and the plugin event
// stream.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/depot/internal/config"
	"github.com/soyeahso/depot/internal/hooks"
	"github.com/soyeahso/depot/internal/logging"
	"github.com/soyeahso/depot/internal/plugin"
	"github.com/soyeahso/depot/internal/store"
	"github.com/soyeahso/depot/internal/version"
	"golang.org/x/sync/errgroup"
)

const (
	readTimeout     = 30 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Server exposes a plugin.Loader over HTTP and WebSocket.
type Server struct {
	cfg     config.ServerConfig
	loader  *plugin.Loader
	roots   map[plugin.Kind]string
	version string
	log     *logging.Logger

	hooks *hooks.Manager  // nil disables /ws/events
	runs  *store.RunStore // nil disables history

	clients     *ClientRegistry
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter

	startedAt  time.Time
	httpServer *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHooks streams lifecycle events from hm and announces start and stop.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithRuns records reload reports in rs and serves them as history.
func WithRuns(rs *store.RunStore) ServerOption {
	return func(s *Server) { s.runs = rs }
}

// WithRoot sets the directory POST /api/{kind}/reload rescans.
func WithRoot(kind plugin.Kind, root string) ServerOption {
	return func(s *Server) { s.roots[kind] = root }
}

// New returns a Server over loader. It does not listen until Start or Serve.
func New(cfg config.ServerConfig, loader *plugin.Loader, log *logging.Logger, opts ...ServerOption) *Server {
	glog := log.Sub("gateway")
	s := &Server{
		cfg:         cfg,
		loader:      loader,
		roots:       make(map[plugin.Kind]string),
		version:     version.Version,
		log:         glog,
		clients:     NewClientRegistry(glog.Sub("clients")),
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkWebSocketOrigin admits non-browser clients, which send no Origin,
// and browsers whose origin is allowed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

// resolveBindAddr maps the bind mode onto a listen address.
func resolveBindAddr(cfg config.ServerConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// Handler returns the routed mux wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.AllowedOrigins)
}

// Start listens on the configured address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then closes event
// streams and drains in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	addr := ln.Addr().String()
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout, // no write timeout, event streams stay open
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.startedAt = time.Now()

	if s.cfg.Auth.Token == "" {
		s.log.Warn().Msg("no server token configured, mutating endpoints are disabled")
	}
	s.log.Info().Str("addr", addr).Str("bind", s.cfg.Bind).Msg("gateway listening")
	s.emit(ctx, hooks.EventServerStart, map[string]any{"addr": addr})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Int("clients", s.clients.Count()).Msg("gateway shutting down")
		s.emit(context.Background(), hooks.EventServerStop, nil)
		s.clients.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Addr returns the listen address once serving, otherwise "".
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(ctx, event, data)
	}
}
