// Package reconcile attaches behaviors to mirror elements exactly once.
//
// The rendering framework rewrites the tree piecemeal, and the same element
// can be observed by any number of mutation batches. The reconciler keeps
// an identity-keyed marker map (element pointer → behaviors already bound)
// so that re-observing an element is a no-op: at most one click handler,
// at most one widget instance per element, no matter how often Apply runs.
package reconcile

import (
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/evalwatch/page"
	"github.com/hazyhaar/evalwatch/widget"
)

// Behavior identifies a bindable behavior for marker bookkeeping.
type Behavior uint8

const (
	BehaviorToggle Behavior = 1 << iota
	BehaviorSlider
	BehaviorControl // one-time control button bindings, marked by the watcher
)

// Selectors are the fixed structural patterns the subtree initializer
// scans for. Defaults match the canonical chat/survey markup.
type Selectors struct {
	SubjectSliders string `yaml:"subject_sliders"`
	RatingSliders  string `yaml:"rating_sliders"`
	SkillToggles   string `yaml:"skill_toggles"`
}

// DefaultSelectors returns the canonical structural patterns.
func DefaultSelectors() Selectors {
	return Selectors{
		SubjectSliders: "div.subject-info > div.info > div.range > div.subject_relevance",
		RatingSliders:  "div.add-range > div.range > div.slider-container",
		SkillToggles:   "div.subject-info > div.info > div.info-skills > span.value > span.skill",
	}
}

// Reconciler binds widgets and handlers to newly observed elements.
// Not safe for concurrent use; the tree watcher is its only caller.
type Reconciler struct {
	page       *page.Page
	selectors  Selectors
	sliderOpts widget.Options
	marks      map[*html.Node]Behavior
	widgets    map[*html.Node]*widget.Widget
	logger     *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithSelectors overrides the structural patterns.
func WithSelectors(s Selectors) Option {
	return func(r *Reconciler) { r.selectors = s }
}

// WithSliderOptions overrides the widget construction options used at
// reconcile sites. Default: {min: 1, max: 7, value: 4}.
func WithSliderOptions(o widget.Options) Option {
	return func(r *Reconciler) { r.sliderOpts = o }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// New creates a Reconciler bound to a page.
func New(p *page.Page, opts ...Option) *Reconciler {
	r := &Reconciler{
		page:       p,
		selectors:  DefaultSelectors(),
		sliderOpts: widget.Options{Min: 1, Max: 7, Value: 4},
		marks:      make(map[*html.Node]Behavior),
		widgets:    make(map[*html.Node]*widget.Widget),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Mark records that behavior b is bound on n. It returns false if the mark
// was already set, in which case the caller skips the binding.
func (r *Reconciler) Mark(n *html.Node, b Behavior) bool {
	if r.marks[n]&b != 0 {
		return false
	}
	r.marks[n] |= b
	return true
}

// Marked reports whether behavior b is already bound on n.
func (r *Reconciler) Marked(n *html.Node, b Behavior) bool {
	return r.marks[n]&b != 0
}

// Toggle binds the skill deleted-flag click handler on n, once. The handler
// flips the "deleted" class and mirrors it into a highlight style.
func (r *Reconciler) Toggle(n *html.Node) bool {
	if !r.Mark(n, BehaviorToggle) {
		return false
	}
	r.page.Bind(n, "click", func(page.Event) {
		if r.page.ToggleClass(n, "deleted") {
			r.page.SetAttr(n, "style", "background-color: red")
		} else {
			r.page.SetAttr(n, "style", "")
		}
	})
	return true
}

// Slider constructs a RangeWidget inside n, once, and returns it. Repeated
// calls return the original widget.
func (r *Reconciler) Slider(n *html.Node, opts widget.Options) *widget.Widget {
	if !r.Mark(n, BehaviorSlider) {
		return r.widgets[n]
	}
	w := widget.New(r.page, n, opts)
	r.widgets[n] = w
	return w
}

// WidgetAt returns the widget bound inside n, or nil.
func (r *Reconciler) WidgetAt(n *html.Node) *widget.Widget {
	return r.widgets[n]
}

// WidgetCount returns how many widgets exist.
func (r *Reconciler) WidgetCount() int {
	return len(r.widgets)
}

// Apply runs the subtree initializer on every descendant of root: sliders
// at the two fixed structural patterns, toggles on skill tags. Safe to call
// any number of times on overlapping subtrees.
func (r *Reconciler) Apply(root *html.Node) {
	doc := goquery.NewDocumentFromNode(root)

	for _, sel := range []string{r.selectors.SubjectSliders, r.selectors.RatingSliders} {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			r.Slider(s.Get(0), r.sliderOpts)
		})
	}
	doc.Find(r.selectors.SkillToggles).Each(func(_ int, s *goquery.Selection) {
		r.Toggle(s.Get(0))
	})
}

// Reset drops all markers and widgets. Call after a document replacement:
// the old nodes are gone and the new tree starts clean.
func (r *Reconciler) Reset() {
	r.marks = make(map[*html.Node]Behavior)
	r.widgets = make(map[*html.Node]*widget.Widget)
}
