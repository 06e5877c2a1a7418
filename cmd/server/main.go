package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/lyehe/porterminal/internal/config"
	"github.com/lyehe/porterminal/internal/metrics"
	"github.com/lyehe/porterminal/internal/pty"
	"github.com/lyehe/porterminal/internal/realtime"
	"github.com/lyehe/porterminal/internal/session"
	"github.com/lyehe/porterminal/internal/terminal"
	"github.com/lyehe/porterminal/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

type flags struct {
	configPath string
	host       string
	port       int
	workDir    string
	logLevel   string
}

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:          "porterminal",
		Short:        "Serve a shell to the browser over websockets",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to config.yaml (default $PORTERMINAL_CONFIG_PATH or ./config.yaml)")
	cmd.Flags().StringVar(&f.host, "host", "", "listen host")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "listen port")
	cmd.Flags().StringVar(&f.workDir, "cwd", "", "working directory for new shells")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")

	return cmd
}

// loadConfig reads file and environment settings, then applies flags that
// were given explicitly.
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("host") {
		cfg.Server.Host = f.host
	}
	if changed("port") {
		cfg.Server.Port = f.port
	}
	if changed("cwd") {
		cfg.Terminal.WorkDir = f.workDir
	}
	if changed("log-level") {
		cfg.Server.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sessions := session.NewManager(pty.Spawn, session.ManagerConfig{
		Limits:          cfg.SessionLimits(),
		WorkDir:         cfg.Terminal.WorkDir,
		CleanupInterval: cfg.Limits.CleanupInterval,
	}, session.WithLogger(logger), session.WithMetrics(m))
	tabs := session.NewTabService(session.NewMemoryTabRepository(), session.NewTabLimits(cfg.TabLimits()))
	term := terminal.NewService(cfg.TerminalService(), terminal.WithLogger(logger), terminal.WithMetrics(m))

	store := config.NewStore(cfg, logger)

	srv := realtime.New(sessions, tabs, term, store,
		realtime.WithLogger(logger),
		realtime.WithMetrics(m, reg),
		realtime.WithShutdown(stop),
	)
	sessions.OnRemove(srv.OnSessionRemoved)
	sessions.Start()

	fileWatch := watcher.New(func(string) { store.Reload() }, watcher.WithLogger(logger))
	if err := fileWatch.Watch(cfg.Path); err != nil {
		logger.Warn("config hot reload disabled", "path", cfg.Path, "error", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("porterminal listening",
			"addr", "http://"+cfg.Addr(),
			"shells", len(cfg.Terminal.Shells),
			"default_shell", cfg.Terminal.DefaultShell,
		)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	fileWatch.Shutdown()
	sessions.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}
