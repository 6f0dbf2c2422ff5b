// Package lifecycle owns the timer-gated submission state machine.
//
// Two states: Idle and Autosaving. A "message sent" trigger starts the
// autosave ticker (re-triggering while running is a no-op, so a
// double-bound control cannot spawn duplicate timers). Submit and clear
// triggers stop it. Each tick extracts and submits silently; an explicit
// submit does the same with user-visible alerts.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/evalwatch/extract"
)

// DefaultInterval is the autosave heartbeat period.
const DefaultInterval = 30 * time.Second

// ExtractFunc produces a fresh record from the current mirror state.
type ExtractFunc func() (*extract.Record, error)

// Submitter hands a record to the transport.
type Submitter interface {
	Submit(ctx context.Context, rec *extract.Record, notify bool) error
}

// Lifecycle is the submission state machine. Safe for concurrent use:
// control handlers and the ticker goroutine share it.
type Lifecycle struct {
	extract   ExtractFunc
	submitter Submitter
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc // non-nil exactly while Autosaving
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithInterval overrides the autosave period. Default: 30s.
func WithInterval(d time.Duration) Option {
	return func(l *Lifecycle) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Lifecycle) { l.logger = lg }
}

// New creates an Idle Lifecycle.
func New(fn ExtractFunc, sub Submitter, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		extract:   fn,
		submitter: sub,
		interval:  DefaultInterval,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// StartAutosave transitions Idle → Autosaving. Returns false (and does
// nothing) if a timer is already running.
func (l *Lifecycle) StartAutosave(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.logger.Debug("lifecycle: autosave already running")
		return false
	}

	tctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	go l.run(tctx)
	l.logger.Info("lifecycle: autosave started", "interval", l.interval)
	return true
}

// StopAutosave transitions to Idle, cancelling the timer if one runs.
func (l *Lifecycle) StopAutosave() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
		l.logger.Info("lifecycle: autosave stopped")
	}
}

// Running reports whether the autosave timer is active.
func (l *Lifecycle) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Submit runs one extraction-and-submit cycle with alerts enabled, then
// transitions to Idle.
func (l *Lifecycle) Submit(ctx context.Context) {
	l.cycle(ctx, true)
	l.StopAutosave()
}

func (l *Lifecycle) run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cycle(ctx, false)
		}
	}
}

// cycle extracts and submits once. A failed extraction abandons the cycle:
// nothing is sent and the lifecycle itself stays healthy.
func (l *Lifecycle) cycle(ctx context.Context, notify bool) {
	rec, err := l.extract()
	if err != nil {
		l.logger.Warn("lifecycle: extraction failed, cycle abandoned", "error", err)
		return
	}

	l.logger.Debug("lifecycle: submitting record",
		"session_id", rec.SessionID, "user_id", rec.UserID, "notify", notify)

	if err := l.submitter.Submit(ctx, rec, notify); err != nil {
		l.logger.Warn("lifecycle: submission failed", "error", err)
	}
}
