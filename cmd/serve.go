package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"grimm.is/tunnelgate/internal/api"
	"grimm.is/tunnelgate/internal/auth"
	"grimm.is/tunnelgate/internal/brand"
	"grimm.is/tunnelgate/internal/config"
	"grimm.is/tunnelgate/internal/logging"
	"grimm.is/tunnelgate/internal/metrics"
	"grimm.is/tunnelgate/internal/roster"
	"grimm.is/tunnelgate/internal/scheduler"
	"grimm.is/tunnelgate/internal/state"
	"grimm.is/tunnelgate/internal/ui/web"
	"grimm.is/tunnelgate/internal/vpn"
)

// RunServe loads the configuration and runs the gateway until SIGINT or
// SIGTERM.
func RunServe(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(logging.Config{Level: level, Output: os.Stderr, JSON: cfg.LogJSON})
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.StateDB), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	st, err := state.NewSQLiteStore(state.DefaultOptions(cfg.StateDB))
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer st.Close()

	sessionStore, err := auth.NewStateSessionStore(st, nil)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	sessions := auth.NewSessions(sessionStore, cfg.Auth.MaxAge, nil)
	authenticator := auth.NewAuthenticator(cfg.Auth.PasswordHash, sessions, logger.WithComponent("auth"))
	proxies, err := auth.ParseTrustedProxies(cfg.Auth.TrustedProxies)
	if err != nil {
		return err
	}
	authenticator.SetTrustedProxies(proxies)
	if !authenticator.RequiresPassword() {
		logger.Warn("PASSWORD_HASH is not set: the web UI is open to anyone who can reach it")
	}

	var device vpn.Device
	if cfg.WireGuard.DeviceSync {
		device = vpn.NewWireGuardDevice(logger.WithComponent("vpn"))
	} else {
		logger.Info("WireGuard device sync disabled; peers are kept in memory only")
		device = vpn.NewMemoryDevice()
	}

	r, err := roster.New(rosterConfig(cfg), st, device, nil, logger.WithComponent("roster"))
	if err != nil {
		return err
	}
	if err := r.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize WireGuard: %w", err)
	}
	defer func() {
		if err := r.Shutdown(); err != nil {
			logger.Warn("Failed to bring WireGuard down", "error", err)
		}
	}()

	reg := metrics.NewRegistry(nil)
	reg.MustRegister(metrics.NewRosterCollector(r))

	sched := scheduler.New(logger.WithComponent("scheduler"))
	maintenance := scheduler.NewMaintenanceTask(func(ctx context.Context) error {
		err := r.CronJobEveryMinute(ctx)
		reg.RecordCronRun(err)
		return err
	}, scheduler.MaintenanceInterval)
	if err := sched.AddTask(maintenance); err != nil {
		return err
	}
	sched.Start(ctx)
	defer func() {
		sched.Stop()
		if st, ok := sched.GetTaskStatus(maintenance.ID); ok {
			logger.Info("Maintenance summary",
				"runs", st.RunCount,
				"errors", st.ErrorCount,
				"last_error", st.LastError)
		}
	}()

	static, err := web.NewHandler(cfg.WebRoot, logger.WithComponent("web"))
	if err != nil {
		logger.Warn("Web UI unavailable", "root", cfg.WebRoot, "error", err)
		static = nil
	}

	opts := api.ServerOptions{
		Config:  cfg,
		Roster:  r,
		Links:   roster.NewLinkRegistry(cfg.WireGuard.EnableOneTimeLinks, r),
		Auth:    authenticator,
		Metrics: reg,
		Logger:  logger.WithComponent("api"),
	}
	if static != nil {
		opts.Static = static
	}
	srv, err := api.NewServer(opts)
	if err != nil {
		return err
	}

	logger.Info("Starting "+brand.Name,
		"version", brand.Version,
		"listen", cfg.ListenAddr(),
		"interface", cfg.WireGuard.Interface,
		"metrics", cfg.Metrics.Enabled)

	err = srv.ListenAndServe(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// rosterConfig maps the WireGuard settings onto the roster.
func rosterConfig(cfg *config.Config) roster.Config {
	wg := cfg.WireGuard
	return roster.Config{
		Interface:           wg.Interface,
		Path:                wg.Path,
		Host:                wg.Host,
		Port:                wg.Port,
		ConfigPort:          wg.ConfigPort,
		MTU:                 wg.MTU,
		PersistentKeepalive: wg.PersistentKeepalive,
		DefaultAddress:      wg.DefaultAddress,
		DefaultDNS:          wg.DefaultDNS,
		AllowedIPs:          wg.AllowedIPs,
		PreUp:               wg.PreUp,
		PostUp:              wg.PostUp,
		PreDown:             wg.PreDown,
		PostDown:            wg.PostDown,
		EnableExpireTime:    wg.EnableExpireTime,
	}
}
