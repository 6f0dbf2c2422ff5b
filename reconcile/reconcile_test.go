package reconcile_test

import (
	"testing"

	"github.com/hazyhaar/evalwatch/page"
	"github.com/hazyhaar/evalwatch/reconcile"
	"github.com/hazyhaar/evalwatch/widget"
)

const fixture = `<html><body>
<div class="subject-info">
  <div class="info">
    <div class="range"><div class="subject_relevance"></div></div>
    <div class="info-skills"><span class="value">
      <span class="skill">Go</span>
      <span class="skill">SQL</span>
    </span></div>
  </div>
</div>
<div class="add-range">
  <div class="range"><div class="slider-container"></div></div>
</div>
</body></html>`

func setup(t *testing.T) (*page.Page, *reconcile.Reconciler) {
	t.Helper()
	p, err := page.New(fixture, nil)
	if err != nil {
		t.Fatalf("page.New: %v", err)
	}
	return p, reconcile.New(p)
}

func TestApplyBindsWidgets(t *testing.T) {
	p, r := setup(t)

	r.Apply(p.Root())

	if got := r.WidgetCount(); got != 2 {
		t.Fatalf("WidgetCount = %d, want 2", got)
	}

	host := p.FindNode("div.subject_relevance")
	w := r.WidgetAt(host)
	if w == nil {
		t.Fatal("no widget on subject relevance host")
	}
	if w.Value() != 4 {
		t.Fatalf("initial value = %d, want 4", w.Value())
	}
	input := p.FindNode("div.subject_relevance input[type=range]")
	if input == nil {
		t.Fatal("widget artifacts missing under host")
	}
	if got := p.Attr(input, "max"); got != "7" {
		t.Fatalf("max = %q, want 7", got)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	p, r := setup(t)

	for i := 0; i < 3; i++ {
		r.Apply(p.Root())
	}

	if got := r.WidgetCount(); got != 2 {
		t.Fatalf("WidgetCount after repeated Apply = %d, want 2", got)
	}

	// Exactly one range input per host even after three passes.
	var count int
	host := p.FindNode("div.slider-container")
	for c := host.FirstChild; c != nil; c = c.NextSibling {
		count++
	}
	if count != 1 {
		t.Fatalf("host has %d children, want 1 slider container", count)
	}

	// Toggles bound once: a single click flips the class exactly once.
	skill := p.FindNode("span.skill")
	p.Dispatch(skill, page.Event{Type: "click"})
	if !p.HasClass(skill, "deleted") {
		t.Fatal("skill not marked deleted after one click")
	}
}

func TestToggleFlipsClassAndStyle(t *testing.T) {
	p, r := setup(t)
	r.Apply(p.Root())

	skill := p.FindNode("span.skill")

	p.Dispatch(skill, page.Event{Type: "click"})
	if !p.HasClass(skill, "deleted") {
		t.Fatal("first click should add deleted class")
	}
	if got := p.Attr(skill, "style"); got != "background-color: red" {
		t.Fatalf("style after delete = %q", got)
	}

	p.Dispatch(skill, page.Event{Type: "click"})
	if p.HasClass(skill, "deleted") {
		t.Fatal("second click should remove deleted class")
	}
	if got := p.Attr(skill, "style"); got != "" {
		t.Fatalf("style after restore = %q", got)
	}
}

func TestSliderOptionsOverride(t *testing.T) {
	p, err := page.New(fixture, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := reconcile.New(p, reconcile.WithSliderOptions(widget.Options{Min: 1, Max: 10, Value: 5}))
	r.Apply(p.Root())

	input := p.FindNode("div.subject_relevance input[type=range]")
	if got := p.Attr(input, "max"); got != "10" {
		t.Fatalf("max = %q, want 10", got)
	}
	if got := p.Attr(input, "value"); got != "5" {
		t.Fatalf("value = %q, want 5", got)
	}
}

func TestResetForgetsMarks(t *testing.T) {
	p, r := setup(t)
	r.Apply(p.Root())
	if r.WidgetCount() != 2 {
		t.Fatalf("WidgetCount = %d, want 2", r.WidgetCount())
	}

	r.Reset()
	if r.WidgetCount() != 0 {
		t.Fatalf("WidgetCount after Reset = %d, want 0", r.WidgetCount())
	}

	skill := p.FindNode("span.skill")
	if r.Marked(skill, reconcile.BehaviorToggle) {
		t.Fatal("marks should be empty after Reset")
	}
}

func TestMark(t *testing.T) {
	p, r := setup(t)
	n := p.FindNode("span.skill")

	if !r.Mark(n, reconcile.BehaviorControl) {
		t.Fatal("first Mark should return true")
	}
	if r.Mark(n, reconcile.BehaviorControl) {
		t.Fatal("second Mark should return false")
	}
	// Independent behaviors on the same node do not collide.
	if !r.Mark(n, reconcile.BehaviorToggle) {
		t.Fatal("different behavior should mark independently")
	}
}
