// CLAUDE:SUMMARY Entry point for the coursesync HTTP daemon: config file + env, Google backends, run lock, routes watcher, graceful shutdown.
// Command coursesync serves the course-material re-hosting API.
//
// Usage:
//
//	coursesync -config coursesync.yaml
//	coursesync -db data/coursesync.db -listen :8080
//
// Environment overrides: COURSESYNC_DB, LISTEN, LOG_LEVEL, LOG_FILE,
// GOOGLE_APPLICATION_CREDENTIALS, GOOGLE_CLIENT_EMAIL, GOOGLE_PRIVATE_KEY,
// REDIS_ADDR, REDIS_PASSWORD, DESTINATION_FOLDER_ID, VIDEO_FOLDER_ID.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/coursesync/coursesync"
	"github.com/hazyhaar/coursesync/shield"
)

func main() {
	configPath := flag.String("config", "", "path to coursesync.yaml config file")
	dbPath := flag.String("db", "", "path to SQLite database")
	listen := flag.String("listen", "", "listen address (default :8080)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "also write logs to this file, rotated")
	flag.Parse()

	cfg, err := resolveConfig(*configPath, flags{db: *dbPath, listen: *listen, logLevel: *logLevel, logFile: *logFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, "coursesync:", err)
		os.Exit(1)
	}

	logger, closeLog := newLogger(cfg.Log, os.Stdout)
	defer closeLog.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("coursesync: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *coursesync.Config, logger *slog.Logger) error {
	backends, err := coursesync.GoogleBackends(ctx, cfg.Google, logger)
	switch {
	case errors.Is(err, coursesync.ErrNoCredentials):
		logger.Warn("coursesync: no Google credentials, processing disabled")
	case err != nil:
		return fmt.Errorf("google backends: %w", err)
	}

	locker, closeLocker, err := coursesync.NewLocker(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	svc, err := coursesync.New(cfg, logger,
		coursesync.WithBackends(backends),
		coursesync.WithLocker(locker))
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()
	svc.RegisterConnectivity(svc.Router())
	svc.Start(ctx)

	var rl *shield.RateLimiter
	if len(cfg.RateLimits) > 0 {
		rl = shield.NewRateLimiter(cfg.RateLimits...)
		rl.StartGC(ctx.Done(), time.Minute)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           svc.Handler(rl),
		ReadHeaderTimeout: 10 * time.Second,
		// A run holds its request until the whole sheet is processed.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("coursesync: server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("coursesync: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("coursesync: shutdown", "error", err)
	}
	logger.Info("coursesync: server stopped")
	return nil
}

type flags struct {
	db, listen, logLevel, logFile string
}

// resolveConfig loads the config file when given, then applies the
// environment, then the flags.
func resolveConfig(configPath string, f flags) (*coursesync.Config, error) {
	cfg := &coursesync.Config{}
	if configPath != "" {
		loaded, err := coursesync.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.DBPath = env("COURSESYNC_DB", cfg.DBPath)
	cfg.Listen = env("LISTEN", cfg.Listen)
	cfg.Log.Level = env("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = env("LOG_FILE", cfg.Log.File)
	cfg.Google.File = env("GOOGLE_APPLICATION_CREDENTIALS", cfg.Google.File)
	cfg.Google.ClientEmail = env("GOOGLE_CLIENT_EMAIL", cfg.Google.ClientEmail)
	cfg.Google.PrivateKey = env("GOOGLE_PRIVATE_KEY", cfg.Google.PrivateKey)
	cfg.Redis.Addr = env("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = env("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Pipeline.DestinationFolderID = env("DESTINATION_FOLDER_ID", cfg.Pipeline.DestinationFolderID)
	cfg.Pipeline.VideoFolderID = env("VIDEO_FOLDER_ID", cfg.Pipeline.VideoFolderID)

	if f.db != "" {
		cfg.DBPath = f.db
	}
	if f.listen != "" {
		cfg.Listen = f.listen
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFile != "" {
		cfg.Log.File = f.logFile
	}
	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
