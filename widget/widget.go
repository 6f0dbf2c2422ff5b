// Package widget implements the digit-rolling range control attached to
// rating elements in the mirror document.
//
// A widget owns three presentation artifacts under its host element: a
// continuous range input, a hidden mirror input, and a fixed-width digit
// display. All three always agree with the current value. The digit display
// renders one column per decimal digit of max; each column is a vertical
// 0–9 strip offset so the active digit shows, and non-significant leading
// columns are faded out rather than removed so the width never changes.
package widget

import (
	"strconv"

	"golang.org/x/net/html"

	"github.com/hazyhaar/evalwatch/page"
)

// Options bound the widget value. Zero fields fall back to the defaults
// {min: 0, max: 100, value: min, step: 1}; a max not above min is treated
// as malformed and the whole range falls back. The widget never re-clamps
// a value moved by interaction; that is the caller's contract.
type Options struct {
	Min, Max, Value, Step int
}

func (o Options) withDefaults() Options {
	d := o
	if d.Max == 0 {
		d.Max = 100
	}
	if d.Max <= d.Min {
		d.Min, d.Max = 0, 100
		d.Value = 0
	}
	if d.Step <= 0 {
		d.Step = 1
	}
	if d.Value == 0 {
		d.Value = d.Min
	}
	return d
}

// Widget is one range control instance. Create at most one per host
// element; the reconciler enforces that.
type Widget struct {
	page  *page.Page
	opts  Options
	value int

	input   *html.Node   // type=range
	hidden  *html.Node   // type=hidden mirror
	columns []*html.Node // one <ul> per digit column
	width   int          // decimal digit count of max
}

// New builds the control inside host and binds the input-event handler.
func New(p *page.Page, host *html.Node, opts Options) *Widget {
	opts = opts.withDefaults()

	w := &Widget{
		page:  p,
		opts:  opts,
		value: opts.Value,
		width: len(strconv.Itoa(opts.Max)),
	}
	w.build(host)

	p.Bind(w.input, "input", func(ev page.Event) {
		v, err := strconv.Atoi(ev.Value)
		if err != nil {
			return
		}
		w.SetValue(v)
	})

	return w
}

// Value returns the current value.
func (w *Widget) Value() int { return w.value }

// SetValue applies a new value: internal state, the range input, the hidden
// mirror, the digit columns, and the proportional background fill.
func (w *Widget) SetValue(v int) {
	w.value = v
	w.page.SetAttr(w.input, "value", strconv.Itoa(v))
	w.page.SetAttr(w.hidden, "value", strconv.Itoa(v))
	w.updateDigits()
	w.updateFill()
}

// Percent returns the fill proportion of the continuous input, 0–100.
func (w *Widget) Percent() float64 {
	return float64((w.value-w.opts.Min)*100) / float64(w.opts.Max-w.opts.Min)
}

func (w *Widget) build(host *html.Node) {
	container := newElem("div", "class", "slider")

	w.input = newElem("input",
		"type", "range",
		"min", strconv.Itoa(w.opts.Min),
		"max", strconv.Itoa(w.opts.Max),
		"value", strconv.Itoa(w.value),
		"step", strconv.Itoa(w.opts.Step),
	)
	w.hidden = newElem("input", "type", "hidden", "value", strconv.Itoa(w.value))
	valueBox := newElem("div", "class", "slider-value")

	for i := 0; i < w.width; i++ {
		col := newElem("div", "class", "slider-value-number")
		ul := newElem("ul")
		for d := 0; d <= 9; d++ {
			li := newElem("li")
			li.AppendChild(&html.Node{Type: html.TextNode, Data: strconv.Itoa(d)})
			ul.AppendChild(li)
		}
		col.AppendChild(ul)
		valueBox.AppendChild(col)
		w.columns = append(w.columns, ul)
	}

	container.AppendChild(w.input)
	container.AppendChild(w.hidden)
	container.AppendChild(valueBox)
	w.page.Append(host, container)

	w.updateDigits()
	w.updateFill()
}

// updateDigits rolls each column to the digit of the current value at that
// position. Columns left of the most significant digit park at a neutral
// offset with zero opacity so the display keeps its width.
func (w *Widget) updateDigits() {
	raw := strconv.Itoa(w.value)
	lead := w.width - len(raw)

	for i, ul := range w.columns {
		if i < lead {
			w.page.SetAttr(ul, "style", "transform: translateY(10%); opacity: 0")
			continue
		}
		d := int(raw[i-lead] - '0')
		w.page.SetAttr(ul, "style",
			"transform: translateY(-"+strconv.Itoa(d*10)+"%); opacity: 1")
	}
}

func (w *Widget) updateFill() {
	pct := strconv.FormatFloat(w.Percent(), 'f', -1, 64)
	w.page.SetAttr(w.input, "style", "background-size: "+pct+"% 100%")
}

func newElem(tag string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}
