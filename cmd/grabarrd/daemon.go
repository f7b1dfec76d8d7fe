package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vmunix/grabarr/internal/config"
	"github.com/vmunix/grabarr/internal/download"
	"github.com/vmunix/grabarr/internal/server"
	"github.com/vmunix/grabarr/internal/store"
)

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildLogger writes to stdout, and to a rotated log file when one is
// configured.
func buildLogger(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Server.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Server.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
}

func runCheck(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "config: %s\n", p)
		}
		return fmt.Errorf("%d problem(s) found", len(problems))
	}
	fmt.Println("config ok")
	return nil
}

func runDaemon(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}

	logger := buildLogger(cfg)

	// One daemon per data directory.
	lockPath := cfg.Server.LockFile
	if lockPath == "" {
		lockPath = filepath.Join(filepath.Dir(cfg.Database.Path), "grabarrd.lock")
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another instance holds %s", lockPath)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	client := download.NewBlackholeClient(cfg.Downloads.WatchDir, cfg.Downloads.CompleteDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("daemon starting",
		"version", version,
		"database", cfg.Database.Path,
		"libraries", len(cfg.Libraries),
		"indexers", len(cfg.Indexers),
		"torznab", cfg.Torznab.Enabled,
	)

	runner := server.NewRunner(db, cfg, client, logger)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("daemon stopped")
	return nil
}
