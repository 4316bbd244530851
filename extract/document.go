// Package extract pulls product fields out of retailer pages.
//
// Structured sources are tried first because they drift far less between
// site releases than visual markup:
//
//  1. price meta tags (product:price:amount, og:price:amount, itemprop meta)
//  2. application/ld+json Product blocks
//  3. inline script state, pattern matched
//
// Selector search over the markup is the fallback, driven by ranked selector
// lists from the selector store. The selector grammar is deliberately small:
// class-containment, attribute equality, bare tag and itemprop.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed page. It is safe for concurrent reads.
type Document struct {
	doc    *goquery.Document
	logger *slog.Logger
}

// Option configures Parse.
type Option func(*Document)

// WithLogger sets the logger used to report skipped selectors.
func WithLogger(l *slog.Logger) Option {
	return func(d *Document) { d.logger = l }
}

// Parse builds a Document from raw HTML.
func Parse(raw []byte, opts ...Option) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("extract: parse HTML: %w", err)
	}
	d := &Document{doc: doc, logger: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Match is the outcome of a selector search.
type Match struct {
	Text     string // matched text, whitespace collapsed
	Selector string // the alternative that matched
}

// Select tries each comma-separated alternative in order and returns the
// first non-empty matched text. Invalid alternatives are logged and skipped.
func (d *Document) Select(alternatives string) (Match, bool) {
	return d.SelectFunc(alternatives, nil)
}

// SelectFunc is Select with an acceptance check: a match whose text accept
// rejects does not count, and the search moves on. A nil accept takes any
// non-empty text.
func (d *Document) SelectFunc(alternatives string, accept func(string) bool) (Match, bool) {
	for _, alt := range SplitAlternatives(alternatives) {
		sel, err := ParseSelector(alt)
		if err != nil {
			d.logger.Warn("extract: selector skipped", "selector", alt, "error", err)
			continue
		}
		if text, ok := d.matchOne(sel, accept); ok {
			return Match{Text: text, Selector: sel.Raw}, true
		}
	}
	return Match{}, false
}

func (d *Document) matchOne(sel Selector, accept func(string) bool) (string, bool) {
	var found string
	d.doc.Find(sel.css()).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := selectionText(s)
		if text == "" {
			return true
		}
		if accept != nil && !accept(text) {
			return true
		}
		found = text
		return false
	})
	return found, found != ""
}

// Title returns the page <title>, used as a last resort for the title field.
func (d *Document) Title() string {
	return collapse(d.doc.Find("title").First().Text())
}

// selectionText prefers the content attribute (meta and itemprop markup) and
// falls back to the visible text of the first node.
func selectionText(s *goquery.Selection) string {
	if v, ok := s.Attr("content"); ok && strings.TrimSpace(v) != "" {
		return collapse(v)
	}
	if len(s.Nodes) == 0 {
		return ""
	}
	return collapse(collectText(s.Nodes[0]))
}

// collectText extracts visible text from a node subtree.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
