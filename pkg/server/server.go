package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"mercator-hq/relay/pkg/archive"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/proxy/handlers"
	"mercator-hq/relay/pkg/proxy/middleware"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// drainPollInterval is how often streams registered after shutdown began
// are swept while the listener drains.
const drainPollInterval = 100 * time.Millisecond

// Sessions is the session registry as seen by the server: the admin API
// plus draining on shutdown.
type Sessions interface {
	handlers.SessionAdmin
	ShutdownAll(ctx context.Context) error
}

// Dependencies are the collaborators the server routes to. Archive, Health
// and Metrics are optional.
type Dependencies struct {
	Relay    *handlers.Relay
	Sessions Sessions
	Archive  archive.Storage
	Health   *health.Checker
	Metrics  http.Handler

	Version   string
	Commit    string
	BuildTime string
}

// Server is the relay's HTTP server.
type Server struct {
	config     *config.Config
	deps       Dependencies
	handler    http.Handler
	httpServer *http.Server

	shutdownOnce sync.Once
	shutdownErr  error

	mu        sync.RWMutex
	listener  net.Listener
	isRunning bool
}

// New creates a server for cfg. Routes are built immediately.
func New(cfg *config.Config, deps Dependencies) *Server {
	s := &Server{config: cfg, deps: deps}
	s.handler = s.setupRoutes()
	return s
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully. It returns early if the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	proxyCfg := &s.config.Proxy
	tlsCfg := &s.config.Security.TLS

	s.httpServer = &http.Server{
		Addr:              proxyCfg.ListenAddress,
		Handler:           s.handler,
		ReadHeaderTimeout: proxyCfg.ReadTimeout,
		ReadTimeout:       proxyCfg.ReadTimeout,
		WriteTimeout:      proxyCfg.WriteTimeout,
		IdleTimeout:       proxyCfg.IdleTimeout,
		MaxHeaderBytes:    proxyCfg.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	if tlsCfg.Enabled {
		reloader := newCertReloader(tlsCfg.CertFile, tlsCfg.KeyFile, certReloadInterval)
		if err := reloader.start(ctx); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = newTLSConfig(tlsCfg, reloader)
	}

	ln, err := net.Listen("tcp", proxyCfg.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", proxyCfg.ListenAddress, err)
	}
	s.listener = ln
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting relay server",
			"address", ln.Addr().String(),
			"tls_enabled", tlsCfg.Enabled,
			"path_prefix", proxyCfg.PathPrefix,
		)

		var err error
		if tlsCfg.Enabled {
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown stops accepting connections, ends every active stream with a
// terminal event and waits for handlers to return. When the shutdown
// timeout expires remaining connections are closed. Only the first call
// has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		slog.Info("initiating graceful shutdown", "timeout", s.config.Proxy.ShutdownTimeout.String())

		if s.deps.Health != nil {
			s.deps.Health.SetDraining(true)
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Proxy.ShutdownTimeout)
		defer cancel()

		serverDone := make(chan error, 1)
		go func() {
			serverDone <- s.httpServer.Shutdown(shutdownCtx)
		}()

		s.drainSessions(shutdownCtx)

		ticker := time.NewTicker(drainPollInterval)
		defer ticker.Stop()

	wait:
		for {
			select {
			case err := <-serverDone:
				if err != nil {
					slog.Error("error during server shutdown", "error", err)
					_ = s.httpServer.Close()
					s.shutdownErr = fmt.Errorf("server shutdown error: %w", err)
				}
				break wait
			case <-ticker.C:
				s.drainSessions(shutdownCtx)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("relay server stopped")
	})

	return s.shutdownErr
}

func (s *Server) drainSessions(ctx context.Context) {
	if s.deps.Sessions == nil {
		return
	}
	if err := s.deps.Sessions.ShutdownAll(ctx); err != nil {
		slog.Warn("active streams did not end before the shutdown deadline", "error", err)
	}
}

// setupRoutes builds the router and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	// Recovery is outermost so panics in later middleware are caught too.
	r.Use(
		middleware.RecoveryMiddleware,
		middleware.RequestIDMiddleware,
		tracing.HTTPMiddleware,
		middleware.LoggingMiddleware,
		middleware.CORSMiddleware(s.convertCORSConfig()),
	)

	if h := s.deps.Health; h != nil {
		r.Get("/health", h.LivenessHandler())
		r.Get("/ready", h.ReadinessHandler())
	}
	r.Get("/version", health.VersionHandler(s.deps.Version, s.deps.Commit, s.deps.BuildTime))

	if s.deps.Metrics != nil {
		r.Handle(s.config.Telemetry.Metrics.Path, s.deps.Metrics)
	}

	if s.deps.Sessions != nil {
		admin := handlers.NewAdminHandler(s.deps.Sessions, s.deps.Archive)
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuthMiddleware(s.config.Security.AdminToken))
			r.Get("/sessions", admin.ListSessions)
			r.Delete("/sessions/{id}", admin.AbortSession)
			r.Get("/transcripts", admin.ListTranscripts)
			r.Get("/transcripts/{id}", admin.GetTranscript)
		})
	}

	if s.deps.Relay != nil {
		prefix := strings.TrimSuffix(s.config.Proxy.PathPrefix, "/")
		r.Handle(prefix+"/*", s.relayHandler())
	}

	return r
}

// relayHandler dispatches WebSocket upgrades on paths ending in /ws to the
// WebSocket transport and everything else to the HTTP proxy.
func (s *Server) relayHandler() http.Handler {
	proxyHandler := handlers.NewProxyHandler(s.deps.Relay)
	wsHandler := handlers.NewWebSocketHandler(s.deps.Relay, s.config.Proxy.CORS.AllowedOrigins)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/ws") && websocket.IsWebSocketUpgrade(r) {
			wsHandler.ServeHTTP(w, r)
			return
		}
		proxyHandler.ServeHTTP(w, r)
	})
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// convertCORSConfig converts config.CORSConfig to middleware.CORSConfig.
func (s *Server) convertCORSConfig() *middleware.CORSConfig {
	cors := s.config.Proxy.CORS
	return &middleware.CORSConfig{
		Enabled:          cors.Enabled,
		AllowedOrigins:   cors.AllowedOrigins,
		AllowedMethods:   cors.AllowedMethods,
		AllowedHeaders:   cors.AllowedHeaders,
		ExposedHeaders:   cors.ExposedHeaders,
		MaxAge:           cors.MaxAge,
		AllowCredentials: cors.AllowCredentials,
	}
}
