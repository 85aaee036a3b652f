package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/vyotiq-ai/codesearchd/internal/config"
	"github.com/vyotiq-ai/codesearchd/internal/embed"
	"github.com/vyotiq-ai/codesearchd/internal/events"
	"github.com/vyotiq-ai/codesearchd/internal/index"
	"github.com/vyotiq-ai/codesearchd/internal/logging"
	"github.com/vyotiq-ai/codesearchd/internal/scanner"
	"github.com/vyotiq-ai/codesearchd/internal/server"
	"github.com/vyotiq-ai/codesearchd/internal/vector"
	"github.com/vyotiq-ai/codesearchd/internal/watcher"
	"github.com/vyotiq-ai/codesearchd/internal/workspace"
)

// shutdownGrace bounds how long in-flight requests may drain at shutdown.
const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the code-search daemon",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logger, cleanupLogs, err := logging.Setup(logging.DefaultConfig(cfg.LogDir))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanupLogs()
	slog.SetDefault(logger)

	// One daemon per data directory.
	lock := flock.New(filepath.Join(cfg.DataDir, "codesearchd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire data directory lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another codesearchd instance is using %s", cfg.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	slog.Info("codesearchd starting",
		slog.String("listen_addr", cfg.ListenAddr),
		slog.String("data_dir", cfg.DataDir),
		slog.String("log_dir", cfg.LogDir),
		slog.Int("max_index_size_mb", cfg.MaxIndexSizeMB),
		slog.Int64("max_file_size_bytes", cfg.MaxFileSizeBytes),
		slog.Int("watcher_debounce_ms", cfg.WatcherDebounceMS),
		slog.Int("index_batch_size", cfg.IndexBatchSize),
		slog.Bool("file_watcher", cfg.EnableFileWatcher))

	bus := events.NewBus(events.DefaultCapacity)

	filter := &scanner.Filter{
		MaxFileSize:     cfg.MaxFileSizeBytes,
		ExcludePatterns: cfg.ExcludePatterns,
		IncludePatterns: cfg.IncludePatterns,
	}
	scan := scanner.New(filter, cfg.MaxIndexedFiles)

	catalog := workspace.NewManager(cfg.DataDir, cfg.ExcludePatterns)
	indexes := index.NewManager(filepath.Join(cfg.DataDir, "indexes"), scan, cfg.IndexBatchSize, bus)
	defer indexes.Close()

	embedder := embed.NewHashingEmbedder()
	defer embedder.Close()
	vectors, err := vector.NewManager(cfg.DataDir, scan, embedder, bus)
	if err != nil {
		return err
	}

	watchers := watcher.NewManager(
		time.Duration(cfg.WatcherDebounceMS)*time.Millisecond,
		filter, bus, indexes, vectors)

	srv := server.New(cfg, catalog, indexes, vectors, watchers, scan, bus)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", slog.String("addr", cfg.ListenAddr))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// The listener is bound, so requests are already being accepted.
	// Watchers restore in the background so liveness probes never block
	// on startup work.
	srv.RestoreWatchers()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
	case <-srv.ShutdownRequested():
		slog.Info("shutdown endpoint triggered, shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", slog.String("error", err.Error()))
	}

	watchers.StopAll()
	vectors.FlushAll()

	slog.Info("codesearchd stopped")
	return nil
}
