// Command evalwatch is the observation-driven extraction and submission
// engine.
//
// Usage:
//
//	evalwatch -config evalwatch.yaml        # observe the configured page
//	evalwatch -url https://example.com      # quick single-page run
//	evalwatch -replay batches.jsonl         # replay a recorded batch stream
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/evalwatch/config"
	"github.com/hazyhaar/evalwatch/extract"
	"github.com/hazyhaar/evalwatch/lifecycle"
	"github.com/hazyhaar/evalwatch/page"
	"github.com/hazyhaar/evalwatch/reconcile"
	"github.com/hazyhaar/evalwatch/source"
	"github.com/hazyhaar/evalwatch/transport"
	"github.com/hazyhaar/evalwatch/watch"
)

func main() {
	configPath := flag.String("config", "", "path to evalwatch.yaml config file")
	singleURL := flag.String("url", "", "observe a single URL with defaults")
	replayPath := flag.String("replay", "", "replay a JSONL batch stream instead of a browser")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *replayPath); err != nil {
		logger.Error("evalwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
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

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, replayPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if singleURL != "" {
		cfg.Page.URL = singleURL
	}

	src, err := openSource(ctx, logger, cfg, replayPath)
	if err != nil {
		return err
	}
	defer src.Close()

	pg, err := page.New("<html><head></head><body></body></html>", logger)
	if err != nil {
		return fmt.Errorf("init page: %w", err)
	}

	rec := reconcile.New(pg,
		reconcile.WithSelectors(cfg.Selectors),
		reconcile.WithSliderOptions(cfg.SliderOptions()),
		reconcile.WithLogger(logger),
	)

	extractor := extract.New(
		extract.WithSchema(cfg.Schema),
		extract.WithLogger(logger),
	)

	client := transport.NewClient(cfg.Submit.URL,
		transport.WithHTTPClient(&http.Client{Timeout: cfg.Submit.Timeout}),
		transport.WithNotifier(transport.LogNotifier(logger)),
		transport.WithLogger(logger),
	)

	lc := lifecycle.New(
		func() (*extract.Record, error) {
			var out *extract.Record
			var extractErr error
			pg.With(func(doc *goquery.Document) {
				out, extractErr = extractor.Extract(doc)
			})
			return out, extractErr
		},
		client,
		lifecycle.WithInterval(cfg.Autosave.Interval),
		lifecycle.WithLogger(logger),
	)

	w := watch.New(watch.Config{
		Page:       pg,
		Reconciler: rec,
		Lifecycle:  lc,
		Source:     src,
		Controls:   cfg.Controls,
		Logger:     logger,
	})

	logger.Info("evalwatch: running",
		"url", cfg.Page.URL,
		"submit", cfg.Submit.URL,
		"autosave", cfg.Autosave.Interval.String())

	w.Run(ctx)
	return nil
}

func openSource(ctx context.Context, logger *slog.Logger, cfg *config.Config, replayPath string) (source.Source, error) {
	if replayPath != "" {
		f, err := os.Open(replayPath)
		if err != nil {
			return nil, fmt.Errorf("open replay: %w", err)
		}
		return source.NewReplayFile(f, logger), nil
	}

	if cfg.Page.URL == "" {
		return nil, fmt.Errorf("no page URL configured (use -config, -url, or -replay)")
	}

	src, err := source.NewBrowser(ctx, source.BrowserConfig{
		URL:    cfg.Page.URL,
		PageID: cfg.Page.ID,
		Remote: cfg.Page.Remote,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("attach browser: %w", err)
	}
	return src, nil
}
