package page

import "golang.org/x/net/html"

// Event is a discrete UI interaction delivered to a bound handler.
// There is no bubbling: an event reaches exactly the node it targets.
type Event struct {
	Type  string // "click", "input"
	Value string // new value for input events
}

// Handler reacts to an Event. Handlers run with the page lock released;
// mutations they perform must go through the locked helpers.
type Handler func(Event)

// Bind registers a handler for an event type on a node. Binding is
// unconditional; idempotency is the reconciler's concern, enforced via
// its marker set before calling Bind.
func (p *Page) Bind(n *html.Node, event string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.handlers[n]
	if m == nil {
		m = make(map[string][]Handler)
		p.handlers[n] = m
	}
	m[event] = append(m[event], h)
}

// Dispatch delivers an event to all handlers bound on n for ev.Type and
// returns how many ran. Handlers are invoked outside the lock.
func (p *Page) Dispatch(n *html.Node, ev Event) int {
	p.mu.Lock()
	var hs []Handler
	if m := p.handlers[n]; m != nil {
		hs = append(hs, m[ev.Type]...)
	}
	p.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
	return len(hs)
}

// DispatchPath resolves an XPath and dispatches the event there.
func (p *Page) DispatchPath(xpath string, ev Event) int {
	n := p.Resolve(xpath)
	if n == nil {
		p.logger.Debug("page: dispatch target not found", "xpath", xpath, "event", ev.Type)
		return 0
	}
	return p.Dispatch(n, ev)
}

// Click finds the first node matching a CSS selector and dispatches a
// click event to it. Convenience for tests and replay tooling.
func (p *Page) Click(selector string) int {
	n := p.FindNode(selector)
	if n == nil {
		return 0
	}
	return p.Dispatch(n, Event{Type: "click"})
}
