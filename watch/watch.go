// Package watch drives reconciliation from the mutation stream.
//
// The watcher applies every batch to the mirror in record order, runs the
// subtree initializer on each freshly grafted subtree, and forwards UI
// event records to their bound handlers. Independently, it looks for the
// three control buttons (send message, submit evaluation, clear) after the
// initial pass and after every batch, binding each exactly once to the
// submission lifecycle with the same one-time marker the reconciler uses
// for widgets.
package watch

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/net/html"

	"github.com/hazyhaar/evalwatch/lifecycle"
	"github.com/hazyhaar/evalwatch/mutation"
	"github.com/hazyhaar/evalwatch/page"
	"github.com/hazyhaar/evalwatch/reconcile"
	"github.com/hazyhaar/evalwatch/source"
)

// Controls are the CSS selectors of the three interactive controls.
type Controls struct {
	SendMessage string `yaml:"send_message"`
	Submit      string `yaml:"submit"`
	Clear       string `yaml:"clear"`
}

// DefaultControls returns the canonical control selectors.
func DefaultControls() Controls {
	return Controls{
		SendMessage: ".send_message",
		Submit:      ".send_evaluate",
		Clear:       "button[aria-label='Clear']",
	}
}

// Config wires a Watcher.
type Config struct {
	Page       *page.Page
	Reconciler *reconcile.Reconciler
	Lifecycle  *lifecycle.Lifecycle
	Source     source.Source
	Controls   Controls
	Logger     *slog.Logger
}

// Watcher is the engine loop. Create one per observed page.
type Watcher struct {
	page     *page.Page
	rec      *reconcile.Reconciler
	lc       *lifecycle.Lifecycle
	src      source.Source
	controls Controls
	logger   *slog.Logger

	// Counters for observability (exported via Stats).
	batches atomic.Int64
	grafts  atomic.Int64
	resets  atomic.Int64
	errors  atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Batches int64 `json:"batches"`
	Grafts  int64 `json:"grafts"`
	Resets  int64 `json:"resets"`
	Errors  int64 `json:"errors"`
}

// New creates a Watcher.
func New(cfg Config) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Controls == (Controls{}) {
		cfg.Controls = DefaultControls()
	}
	return &Watcher{
		page:     cfg.Page,
		rec:      cfg.Reconciler,
		lc:       cfg.Lifecycle,
		src:      cfg.Source,
		controls: cfg.Controls,
		logger:   cfg.Logger,
	}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Batches: w.batches.Load(),
		Grafts:  w.grafts.Load(),
		Resets:  w.resets.Load(),
		Errors:  w.errors.Load(),
	}
}

// Run performs the initial pass over the existing document, then blocks
// consuming batches until ctx is cancelled or the source closes. The
// lifecycle's autosave timer is stopped on the way out.
func (w *Watcher) Run(ctx context.Context) {
	w.initialPass(ctx)
	w.logger.Info("watch: started")

	defer w.lc.StopAutosave()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch: stopped")
			return
		case batch, ok := <-w.src.Batches():
			if !ok {
				w.logger.Info("watch: source closed")
				return
			}
			w.apply(ctx, batch)
		}
	}
}

// initialPass reconciles content present before any mutation is observed.
func (w *Watcher) initialPass(ctx context.Context) {
	if root := documentElement(w.page.Root()); root != nil {
		w.rec.Apply(root)
	}
	w.bindControls(ctx)
}

// apply processes one batch in record order. Inserts are reconciled as
// soon as they land so that a later record in the same batch can already
// target handlers on the new nodes.
func (w *Watcher) apply(ctx context.Context, batch mutation.Batch) {
	w.batches.Add(1)

	for _, r := range batch.Records {
		switch r.Op {
		case mutation.OpDocReset:
			if err := w.page.Reset(r.HTML); err != nil {
				w.errors.Add(1)
				w.logger.Error("watch: document reset failed", "error", err)
				continue
			}
			w.rec.Reset()
			w.resets.Add(1)
			w.initialPass(ctx)

		case mutation.OpInsert:
			added, err := w.page.Graft(r.XPath, r.HTML)
			if err != nil {
				w.errors.Add(1)
				w.logger.Debug("watch: graft failed", "xpath", r.XPath, "error", err)
				continue
			}
			for _, n := range added {
				w.rec.Apply(n)
			}
			w.grafts.Add(int64(len(added)))

		case mutation.OpResync:
			parent, err := w.page.ReplaceChildren(r.XPath, r.HTML)
			if err != nil {
				w.errors.Add(1)
				w.logger.Debug("watch: resync failed", "xpath", r.XPath, "error", err)
				continue
			}
			w.rec.Apply(parent)

		case mutation.OpRemove:
			w.page.Remove(r.XPath)

		case mutation.OpAttr:
			w.page.SetAttrPath(r.XPath, r.Name, r.Value)

		case mutation.OpText:
			w.page.SetText(r.XPath, r.Value)

		case mutation.OpClick:
			w.page.DispatchPath(r.XPath, page.Event{Type: "click"})

		case mutation.OpInput:
			w.page.DispatchPath(r.XPath, page.Event{Type: "input", Value: r.Value})

		default:
			w.logger.Debug("watch: unknown op", "op", string(r.Op))
		}
	}

	w.bindControls(ctx)
}

// bindControls binds each control button exactly once when it appears.
func (w *Watcher) bindControls(ctx context.Context) {
	w.bindControl(w.controls.SendMessage, func() {
		w.lc.StartAutosave(ctx)
	})
	w.bindControl(w.controls.Submit, func() {
		w.lc.Submit(ctx)
	})
	w.bindControl(w.controls.Clear, func() {
		w.lc.StopAutosave()
	})
}

func (w *Watcher) bindControl(selector string, action func()) {
	if selector == "" {
		return
	}
	n := w.page.FindNode(selector)
	if n == nil || !w.rec.Mark(n, reconcile.BehaviorControl) {
		return
	}
	w.page.Bind(n, "click", func(page.Event) { action() })
	w.logger.Debug("watch: control bound", "selector", selector)
}

// documentElement returns the <html> element of a document node.
func documentElement(doc *html.Node) *html.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}
