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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hyperengineering/till/internal/api"
	"github.com/hyperengineering/till/internal/config"
	"github.com/hyperengineering/till/internal/connectivity"
	"github.com/hyperengineering/till/internal/localstore"
	"github.com/hyperengineering/till/internal/metrics"
	"github.com/hyperengineering/till/internal/session"
	"github.com/hyperengineering/till/internal/snapshot"
	"github.com/hyperengineering/till/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "till",
	Short:        "Till - offline-first point-of-sale sync core",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (overrides TILL_CONFIG_PATH)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig honours --config, falling back to TILL_CONFIG_PATH.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	logger, logCloser := newLogger(cfg.Log, os.Stdout)
	defer logCloser.Close()
	slog.SetDefault(logger)
	slog.Info("configuration loaded", "terminal_id", cfg.Terminal.ID)
	slog.Info("logger initialized", "level", cfg.Log.Level, "file", cfg.Log.File)

	// 4. Local store (migrations, WAL mode)
	local, err := localstore.Open(cfg.Local.Path)
	if err != nil {
		return err
	}
	defer local.Close()
	slog.Info("local store initialized", "path", cfg.Local.Path)

	// 5. Remote store. An unreachable backend is not fatal; the till
	// starts offline-capable either way.
	rs, err := openRemote(ctx, cfg.Remote)
	if err != nil {
		return err
	}
	defer rs.Close()
	slog.Info("remote store initialized", "driver", cfg.Remote.Driver)

	// 6. Connectivity
	oracle := connectivity.New(cfg.Connectivity.InitialOnline)
	if cfg.Connectivity.StatusFile != "" {
		src, err := connectivity.NewFileSource(cfg.Connectivity.StatusFile, oracle, logger)
		if err != nil {
			return err
		}
		if err := src.Start(); err != nil {
			return err
		}
		defer src.Stop()
		slog.Info("connectivity source initialized", "status_file", cfg.Connectivity.StatusFile)
	}

	// 7. Core session
	opts := session.Options{
		RemoteTimeout:   time.Duration(cfg.Remote.Timeout),
		SyncOnReconnect: cfg.Sync.OnReconnect,
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		opts.Recorder = m
	}
	sess := session.New(local, rs, oracle, opts)
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Close()
	slog.Info("session started",
		"online", sess.IsOnline(),
		"pending", sess.PendingCount(),
	)

	uploader, err := snapshot.NewUploader(cfg.Backup)
	if err != nil {
		return err
	}

	// 8. HTTP router
	routerOpts := api.RouterOptions{}
	if m != nil {
		routerOpts.MetricsHandler = m.Handler()
		routerOpts.MetricsPath = cfg.Metrics.Path
		routerOpts.Observer = m
	}
	router := api.NewRouter(api.NewHandler(sess, Version), routerOpts)
	slog.Info("router initialized")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 9. Workers and server share one lifecycle; the first failure
	// cancels the rest.
	g, gctx := errgroup.WithContext(ctx)

	retry := worker.NewSyncRetryWorker(sess, time.Duration(cfg.Sync.RetryInterval))
	backup := worker.NewBackupWorker(local, uploader, cfg.Terminal.ID, time.Duration(cfg.Backup.Interval))
	if m != nil {
		backup.SetRecorder(m)
	}
	startWorker(gctx, g, retry.Run)
	startWorker(gctx, g, backup.Run)

	g.Go(func() error {
		slog.Info("server starting", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown initiated")

		shutdownCtx, shutdownCancel := context.WithTimeout(
			context.Background(),
			time.Duration(cfg.Server.ShutdownTimeout))
		defer shutdownCancel()

		// Drains in-flight requests
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		slog.Error("service stopped with error", "error", err)
	}
	slog.Info("shutdown complete")
	return err
}

// startWorker runs a background worker in the group. Workers log their
// own lifecycle and return once ctx is cancelled.
func startWorker(ctx context.Context, g *errgroup.Group, fn func(ctx context.Context)) {
	g.Go(func() error {
		fn(ctx)
		return nil
	})
}
