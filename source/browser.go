package source

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/evalwatch/idgen"
	"github.com/hazyhaar/evalwatch/mutation"
)

//go:embed observer.js
var observerJS []byte

const bindingName = "__evalwatch_binding"

// BrowserConfig configures a live-page source.
type BrowserConfig struct {
	URL    string
	PageID string
	Remote string // CDP control URL; empty launches a local browser
	Logger *slog.Logger
}

// Browser observes a live page: it navigates, injects an observer script
// (MutationObserver plus click/input forwarding over a Runtime binding),
// and converts binding payloads into mutation batches. The first batch is
// always a doc_reset carrying the loaded document, so the consumer's
// mirror starts from the real initial state.
type Browser struct {
	browser *rod.Browser
	page    *rod.Page
	ch      chan mutation.Batch
	seq     atomic.Uint64
	cancel  context.CancelFunc
	pageURL string
	pageID  string
	logger  *slog.Logger
}

// NewBrowser connects, navigates, and starts observing.
func NewBrowser(ctx context.Context, cfg BrowserConfig) (*Browser, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageID == "" {
		cfg.PageID = idgen.New()
	}

	b := rod.New()
	if cfg.Remote != "" {
		b = b.ControlURL(cfg.Remote)
	}
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("source: connect browser: %w", err)
	}

	pg, err := stealth.Page(b)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("source: create page: %w", err)
	}

	navCtx, navCancel := context.WithTimeout(ctx, 30*time.Second)
	defer navCancel()
	if err := pg.Context(navCtx).Navigate(cfg.URL); err != nil {
		pg.Close()
		b.Close()
		return nil, fmt.Errorf("source: navigate %s: %w", cfg.URL, err)
	}
	if err := pg.Context(navCtx).WaitLoad(); err != nil {
		logger.Warn("source: wait load timeout", "url", cfg.URL, "error", err)
	}

	s := &Browser{
		browser: b,
		page:    pg,
		ch:      make(chan mutation.Batch, 256),
		pageURL: cfg.URL,
		pageID:  cfg.PageID,
		logger:  logger,
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(pg); err != nil {
		s.logger.Warn("source: add binding failed (may already exist)", "error", err)
	}

	lctx, lcancel := context.WithCancel(ctx)
	s.cancel = lcancel
	go s.listen(lctx)

	// Seed the consumer's mirror with the loaded document.
	res, err := pg.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("source: initial snapshot: %w", err)
	}
	s.emit([]mutation.Record{{Op: mutation.OpDocReset, HTML: res.Value.Str()}})

	if _, err := pg.Eval(string(observerJS)); err != nil {
		s.Close()
		return nil, fmt.Errorf("source: inject observer: %w", err)
	}

	s.logger.Info("source: observing page", "url", cfg.URL, "id", cfg.PageID)
	return s, nil
}

// Batches implements Source.
func (s *Browser) Batches() <-chan mutation.Batch { return s.ch }

// Close stops listening and shuts the browser down.
func (s *Browser) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.page != nil {
		s.page.Close()
	}
	return s.browser.Close()
}

// listen receives observer payloads via Runtime.bindingCalled.
func (s *Browser) listen(ctx context.Context) {
	s.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var records []mutation.Record
		if err := json.Unmarshal([]byte(e.Payload), &records); err != nil {
			s.logger.Warn("source: parse binding payload", "error", err)
			return
		}
		s.emit(records)
	})()
}

func (s *Browser) emit(records []mutation.Record) {
	if len(records) == 0 {
		return
	}
	batch := mutation.Batch{
		ID:        idgen.New(),
		PageURL:   s.pageURL,
		PageID:    s.pageID,
		Seq:       s.seq.Add(1),
		Records:   records,
		Timestamp: time.Now().UnixMilli(),
	}
	select {
	case s.ch <- batch:
	default:
		s.logger.Warn("source: batch channel full, dropping", "seq", batch.Seq)
	}
}
