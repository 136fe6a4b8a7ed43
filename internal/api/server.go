package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"grimm.is/tunnelgate/internal/auth"
	"grimm.is/tunnelgate/internal/clock"
	"grimm.is/tunnelgate/internal/config"
	"grimm.is/tunnelgate/internal/logging"
	"grimm.is/tunnelgate/internal/metrics"
	"grimm.is/tunnelgate/internal/ratelimit"
	"grimm.is/tunnelgate/internal/roster"
)

// Login throttling: attempts allowed per client IP per window.
const (
	loginAttempts = 10
	loginWindow   = time.Minute
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 5 * time.Second

// ServerConfig holds HTTP server limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
}

// DefaultServerConfig returns the default server limits.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,  // 64KB
		MaxBodyBytes:      10 << 20, // 10MB, enough for a restore
	}
}

// ClientService is the roster as the API uses it.
type ClientService interface {
	GetClients(ctx context.Context) ([]roster.ClientView, error)
	GetClient(ctx context.Context, id roster.ClientID) (*roster.Client, error)
	GetClientConfiguration(ctx context.Context, id roster.ClientID) (string, error)
	GetClientQRCodeSVG(ctx context.Context, id roster.ClientID) (string, error)
	CreateClient(ctx context.Context, name, expiredDate string) (*roster.Client, error)
	DeleteClient(ctx context.Context, id roster.ClientID) error
	EnableClient(ctx context.Context, id roster.ClientID) error
	DisableClient(ctx context.Context, id roster.ClientID) error
	UpdateClientName(ctx context.Context, id roster.ClientID, name string) error
	UpdateClientAddress(ctx context.Context, id roster.ClientID, address string) error
	UpdateClientExpireDate(ctx context.Context, id roster.ClientID, expireDate string) error
	GenerateOneTimeLink(ctx context.Context, id roster.ClientID) (string, error)
	BackupConfiguration(ctx context.Context) (string, error)
	RestoreConfiguration(ctx context.Context, data string) error
	GetMetricsJSON(ctx context.Context) (*roster.MetricsJSON, error)
}

// ServerOptions holds dependencies for the API server.
type ServerOptions struct {
	Config  *config.Config
	Roster  ClientService
	Links   *roster.LinkRegistry
	Auth    *auth.Authenticator
	Metrics *metrics.Registry // Optional: nil disables request metrics and /metrics output
	Static  http.Handler      // Optional: nil serves 404 for unknown paths
	Clock   clock.Clock
	Logger  *logging.Logger
	Limits  *ServerConfig
}

// Server handles API requests.
type Server struct {
	cfg         *config.Config
	roster      ClientService
	links       *roster.LinkRegistry
	auth        *auth.Authenticator
	metricsGate *auth.BasicGate
	metrics     *metrics.Registry
	static      http.Handler
	limiter     *ratelimit.Limiter
	clock       clock.Clock
	logger      *logging.Logger
	limits      *ServerConfig
	debug       bool

	mux *http.ServeMux
}

// NewServer creates a new API server with the provided options.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("api: config is required")
	}
	if opts.Roster == nil || opts.Auth == nil || opts.Links == nil {
		return nil, errors.New("api: roster, links and auth are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	limits := opts.Limits
	if limits == nil {
		limits = DefaultServerConfig()
	}
	clk := clock.OrReal(opts.Clock)

	s := &Server{
		cfg:         opts.Config,
		roster:      opts.Roster,
		links:       opts.Links,
		auth:        opts.Auth,
		metricsGate: auth.NewBasicGate(opts.Config.Metrics.PasswordHash, "metrics"),
		metrics:     opts.Metrics,
		static:      opts.Static,
		limiter:     ratelimit.NewLimiter(loginAttempts, loginWindow, clk),
		clock:       clk,
		logger:      logger,
		limits:      limits,
		debug:       logger.GetLevel() <= logging.LevelDebug,
	}
	if s.static == nil {
		s.static = http.NotFoundHandler()
	}

	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	mux := http.NewServeMux()
	protect := s.auth.RequireAuth

	// Public feature flags
	mux.Handle("GET /api/release", s.handle(s.handleRelease))
	mux.Handle("GET /api/lang", s.handle(s.handleLang))
	mux.Handle("GET /api/remember-me", s.handle(s.handleRememberMe))
	mux.Handle("GET /api/ui-traffic-stats", s.handle(s.handleTrafficStats))
	mux.Handle("GET /api/ui-chart-type", s.handle(s.handleChartType))
	mux.Handle("GET /api/wg-enable-one-time-links", s.handle(s.handleOneTimeLinksEnabled))
	mux.Handle("GET /api/ui-sort-clients", s.handle(s.handleSortClients))
	mux.Handle("GET /api/wg-enable-expire-time", s.handle(s.handleExpireTimeEnabled))

	// Session
	mux.Handle("GET /api/session", s.handle(s.handleGetSession))
	mux.Handle("POST /api/session", s.handle(s.handleLogin))
	mux.Handle("DELETE /api/session", protect(s.handle(s.handleLogout)))

	// One-time config links
	mux.Handle("GET /cnf/{token}", s.handle(s.handleOneTimeLink))

	// Clients
	mux.Handle("GET /api/wireguard/client", protect(s.handle(s.handleListClients)))
	mux.Handle("POST /api/wireguard/client", protect(s.handle(s.handleCreateClient)))
	mux.Handle("DELETE /api/wireguard/client/{clientId}", protect(s.handle(s.handleDeleteClient)))
	mux.Handle("POST /api/wireguard/client/{clientId}/enable", protect(s.handle(s.handleEnableClient)))
	mux.Handle("POST /api/wireguard/client/{clientId}/disable", protect(s.handle(s.handleDisableClient)))
	mux.Handle("POST /api/wireguard/client/{clientId}/generateOneTimeLink", protect(s.handle(s.handleGenerateOneTimeLink)))
	mux.Handle("PUT /api/wireguard/client/{clientId}/name", protect(s.handle(s.handleUpdateName)))
	mux.Handle("PUT /api/wireguard/client/{clientId}/address", protect(s.handle(s.handleUpdateAddress)))
	mux.Handle("PUT /api/wireguard/client/{clientId}/expireDate", protect(s.handle(s.handleUpdateExpireDate)))
	mux.Handle("GET /api/wireguard/client/{clientId}/qrcode.svg", protect(s.handle(s.handleQRCode)))
	mux.Handle("GET /api/wireguard/client/{clientId}/configuration", protect(s.handle(s.handleConfiguration)))

	// Backup
	mux.Handle("GET /api/wireguard/backup", protect(s.handle(s.handleBackup)))
	mux.Handle("PUT /api/wireguard/restore", protect(s.handle(s.handleRestore)))

	// Prometheus
	mux.Handle("GET /metrics", s.metricsGate.Wrap(s.handle(s.handleMetrics)))
	mux.Handle("GET /metrics/json", s.metricsGate.Wrap(s.handle(s.handleMetricsJSON)))

	// Static UI
	mux.Handle("GET /", s.static)

	s.mux = mux
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	// Chain: AccessLog -> Recover -> MaxBody -> Mux
	return s.accessLog(s.recoverPanics(maxBody(s.limits.MaxBodyBytes)(s.mux)))
}

func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.limits.ReadHeaderTimeout,
		ReadTimeout:       s.limits.ReadTimeout,
		WriteTimeout:      s.limits.WriteTimeout,
		IdleTimeout:       s.limits.IdleTimeout,
		MaxHeaderBytes:    s.limits.MaxHeaderBytes,
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := s.httpServer()

	go s.limiter.RunCleanup(ctx, 10*time.Minute, time.Hour)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
