// Package page owns the in-process mirror of the rendered document.
//
// The rendering framework lives elsewhere; evalwatch only ever sees its
// output as mutation records. This package turns that stream back into a
// queryable tree: inserted fragments are grafted at their XPath position,
// removed subtrees are pruned, and forwarded UI events are dispatched to
// handlers bound on mirror nodes.
//
// A single mutex serializes all access. Handlers run with the lock
// released, so they may call back into the locked helpers (SetAttr,
// ToggleClass) or trigger an extraction via With.
package page

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Page is the mirror document plus its event surface.
type Page struct {
	mu       sync.Mutex
	doc      *html.Node
	handlers map[*html.Node]map[string][]Handler
	logger   *slog.Logger
}

// New parses the initial document HTML and returns a Page. An empty string
// yields a minimal html/body skeleton.
func New(initial string, logger *slog.Logger) (*Page, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if initial == "" {
		initial = "<html><head></head><body></body></html>"
	}
	doc, err := html.Parse(strings.NewReader(initial))
	if err != nil {
		return nil, fmt.Errorf("page: parse document: %w", err)
	}
	return &Page{
		doc:      doc,
		handlers: make(map[*html.Node]map[string][]Handler),
		logger:   logger,
	}, nil
}

// Reset replaces the whole document. All bound handlers are dropped; the
// nodes they were bound to no longer exist.
func (p *Page) Reset(initial string) error {
	doc, err := html.Parse(strings.NewReader(initial))
	if err != nil {
		return fmt.Errorf("page: parse document: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = doc
	p.handlers = make(map[*html.Node]map[string][]Handler)
	return nil
}

// Root returns the document root node. The pointer is stable until Reset.
func (p *Page) Root() *html.Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

// With runs fn with exclusive access to the document. Extraction and any
// other multi-step read go through here.
func (p *Page) With(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(goquery.NewDocumentFromNode(p.doc))
}

// FindNode returns the first node matching a CSS selector, or nil.
func (p *Page) FindNode(selector string) *html.Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := goquery.NewDocumentFromNode(p.doc).Find(selector)
	if sel.Length() == 0 {
		return nil
	}
	return sel.Get(0)
}

// Graft parses fragment in the context of the element at parentXPath and
// appends the resulting nodes to it. It returns the added element nodes.
func (p *Page) Graft(parentXPath, fragment string) ([]*html.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	parent := p.resolve(parentXPath)
	if parent == nil {
		return nil, fmt.Errorf("page: graft: no element at %q", parentXPath)
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return nil, fmt.Errorf("page: parse fragment: %w", err)
	}

	var added []*html.Node
	for _, n := range nodes {
		parent.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, n)
		}
	}
	return added, nil
}

// ReplaceChildren drops every child of the element at xpath and grafts
// fragment in their place. Handlers bound inside the old subtree are
// dropped. Returns the parent element.
func (p *Page) ReplaceChildren(xpath, fragment string) (*html.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	parent := p.resolve(xpath)
	if parent == nil {
		return nil, fmt.Errorf("page: replace: no element at %q", xpath)
	}

	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		p.dropHandlers(c)
		parent.RemoveChild(c)
		c = next
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return nil, fmt.Errorf("page: parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return parent, nil
}

// Remove prunes the subtree at xpath. Handlers bound inside it are dropped.
func (p *Page) Remove(xpath string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.resolve(xpath)
	if n == nil || n.Parent == nil {
		return false
	}
	p.dropHandlers(n)
	n.Parent.RemoveChild(n)
	return true
}

// SetText replaces the text content of the element at xpath.
func (p *Page) SetText(xpath, value string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.resolve(xpath)
	if n == nil {
		return false
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	return true
}

// SetAttrPath sets an attribute on the element at xpath.
func (p *Page) SetAttrPath(xpath, name, value string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.resolve(xpath)
	if n == nil {
		return false
	}
	setAttr(n, name, value)
	return true
}

// Resolve returns the element at an absolute XPath, or nil.
func (p *Page) Resolve(xpath string) *html.Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolve(xpath)
}

// dropHandlers removes handler registrations for n and all descendants.
// Caller holds the lock.
func (p *Page) dropHandlers(n *html.Node) {
	delete(p.handlers, n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.dropHandlers(c)
	}
}
