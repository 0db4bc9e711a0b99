// Package richtext reads and rewrites the HTML markup produced by the
// browser editor. It knows about inline comment anchors and nothing else of
// the editor schema; unknown elements are carried through untouched.
package richtext

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// AnchorAttr marks a span as the anchor of an inline comment thread.
	AnchorAttr = "data-thread-id"

	// Attributes of the older encodings that embedded the thread itself in
	// the markup. They are read for migration and never written.
	LegacyListAttr = "data-comments"
	LegacyTextAttr = "data-comment"
	LegacyTimeAttr = "data-timestamp"
	LegacyIDAttr   = "data-comment-id"
)

// Anchor is one inline thread anchor found in a document.
type Anchor struct {
	ThreadID string
	Quote    string
}

// parse loads a markup fragment under a detached container so top level
// nodes can be rewritten like any other.
func parse(content string) (*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

func render(root *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render markup: %w", err)
		}
	}
	return buf.String(), nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttrs(n *html.Node, keys ...string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		drop := false
		for _, k := range keys {
			if a.Namespace == "" && a.Key == k {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// collect returns every element below root matching keep, in document order.
func collect(root *html.Node, keep func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && keep(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

// unwrap replaces n with its children.
func unwrap(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// Anchors lists the thread anchors in content in document order. A thread
// whose anchor spans several elements is reported once with the quotes
// joined.
func Anchors(content string) ([]Anchor, error) {
	root, err := parse(content)
	if err != nil {
		return nil, err
	}
	var out []Anchor
	index := map[string]int{}
	for _, n := range collect(root, func(n *html.Node) bool { _, ok := attr(n, AnchorAttr); return ok }) {
		id, _ := attr(n, AnchorAttr)
		if id == "" {
			continue
		}
		if i, ok := index[id]; ok {
			out[i].Quote += textOf(n)
			continue
		}
		index[id] = len(out)
		out = append(out, Anchor{ThreadID: id, Quote: textOf(n)})
	}
	return out, nil
}

// RemoveAnchor strips every anchor of threadID from content. Anchor spans
// are unwrapped so the quoted text stays; on other elements only the
// attribute is dropped. The bool reports whether anything changed.
func RemoveAnchor(content, threadID string) (string, bool, error) {
	root, err := parse(content)
	if err != nil {
		return "", false, err
	}
	nodes := collect(root, func(n *html.Node) bool {
		v, ok := attr(n, AnchorAttr)
		return ok && v == threadID
	})
	if len(nodes) == 0 {
		return content, false, nil
	}
	for _, n := range nodes {
		removeAttrs(n, AnchorAttr)
		if n.DataAtom == atom.Span && len(n.Attr) == 0 {
			unwrap(n)
		}
	}
	out, err := render(root)
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Blockquote: true, atom.Pre: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true,
}

// PlainText flattens markup into text with one line per block element.
func PlainText(content string) (string, error) {
	root, err := parse(content)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			if s := sb.String(); s != "" && !strings.HasSuffix(s, "\n") {
				sb.WriteByte('\n')
			}
		}
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
