package page

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// resolve walks an absolute XPath of the form produced by the observer
// script: /html/body/div[2]/span. Indexes are 1-based among same-tag
// element siblings; a missing index means the first. text() and comment()
// steps resolve to their parent element. Caller holds the lock.
func (p *Page) resolve(xpath string) *html.Node {
	path := strings.Trim(xpath, "/")
	if path == "" {
		return documentElement(p.doc)
	}

	cur := p.doc
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if strings.HasSuffix(seg, "()") {
			// text()/comment() tail: the element itself is the target.
			break
		}
		tag, idx := parseStep(seg)
		cur = nthChildElement(cur, tag, idx)
		if cur == nil {
			return nil
		}
	}
	if cur == p.doc {
		return documentElement(p.doc)
	}
	return cur
}

// parseStep splits "div[2]" into ("div", 2). No bracket means index 1.
func parseStep(seg string) (string, int) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, 1
	}
	tag := seg[:open]
	num := strings.TrimRight(seg[open+1:], "]")
	idx, err := strconv.Atoi(num)
	if err != nil || idx < 1 {
		return tag, 1
	}
	return tag, idx
}

// nthChildElement returns the idx-th child element of n with the given tag.
func nthChildElement(n *html.Node, tag string, idx int) *html.Node {
	seen := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != tag {
			continue
		}
		seen++
		if seen == idx {
			return c
		}
	}
	return nil
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

// XPathFor computes the absolute XPath of a node in the mirror, matching
// the step format resolve consumes. Used by tests and diagnostics.
func (p *Page) XPathFor(n *html.Node) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if cur.Parent == nil {
			parts = append(parts, cur.Data)
			break
		}
		idx, total := 1, 0
		for sib := cur.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
			if sib.Type != html.ElementNode || sib.Data != cur.Data {
				continue
			}
			total++
			if sib == cur {
				idx = total
			}
		}
		step := cur.Data
		if total > 1 {
			step += "[" + strconv.Itoa(idx) + "]"
		}
		parts = append(parts, step)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}
