// Command evalrecv is the submission receiver daemon.
//
// Usage:
//
//	evalrecv -config evalwatch.yaml
//	evalrecv -addr :8077 -db evalwatch.db
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/evalwatch/config"
	"github.com/hazyhaar/evalwatch/dbopen"
	"github.com/hazyhaar/evalwatch/observability"
	"github.com/hazyhaar/evalwatch/receiver"
)

func main() {
	configPath := flag.String("config", "", "path to evalwatch.yaml config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *addr, *dbPath); err != nil {
		logger.Error("evalrecv: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, addr, dbPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if addr == "" {
		addr = cfg.Receiver.Addr
	}
	if dbPath == "" {
		dbPath = cfg.Receiver.DBPath
	}

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
	if err != nil {
		return err
	}
	defer db.Close()

	journal := observability.NewJournal(db, observability.WithJournalLogger(logger))
	observability.NewHeartbeatWriter(db, "evalrecv", 15*time.Second).Start(ctx)

	svc, err := receiver.New(receiver.Config{
		DB:      db,
		Labels:  cfg.Receiver.Labels,
		Journal: journal,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("evalrecv: listening", "addr", addr, "db", dbPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("evalrecv: stopped")
	return nil
}
