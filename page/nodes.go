package page

import (
	"strings"

	"golang.org/x/net/html"
)

// Locked per-node helpers. Handlers and widgets mutate mirror nodes through
// these so attribute state never races an extraction in progress.

// Attr returns the value of an attribute on n, or "".
func (p *Page) Attr(n *html.Node, key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return getAttr(n, key)
}

// SetAttr sets an attribute on n, replacing any existing value.
func (p *Page) SetAttr(n *html.Node, key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	setAttr(n, key, value)
}

// Append attaches a detached subtree as the last child of parent.
func (p *Page) Append(parent, child *html.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	parent.AppendChild(child)
}

// HasClass reports whether n carries the given class.
func (p *Page) HasClass(n *html.Node, class string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return hasClass(n, class)
}

// ToggleClass flips class membership on n and returns the new membership.
func (p *Page) ToggleClass(n *html.Node, class string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	classes := strings.Fields(getAttr(n, "class"))
	for i, c := range classes {
		if c == class {
			setAttr(n, "class", strings.Join(append(classes[:i], classes[i+1:]...), " "))
			return false
		}
	}
	setAttr(n, "class", strings.Join(append(classes, class), " "))
	return true
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
