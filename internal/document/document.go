// Package document is the loaded-page model extraction runs against: an
// element tree queried with CSS or XPath, the raw source text, and the
// structured-data blocks embedded in the page.
//
// The extraction core depends only on the Document and Element interfaces;
// HTML is the goquery-backed implementation used by the commands.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Element is one match of a selector or path query.
type Element interface {
	// Attr returns the named attribute, ok=false when it is missing.
	Attr(name string) (string, bool)
	// Text returns the trimmed visible text.
	Text() string
}

// Document is everything an extraction adapter may read from a page.
type Document interface {
	SelectCSS(selector string) ([]Element, error)
	SelectXPath(expr string) ([]Element, error)

	// StructuredBlock returns the page's structured data block
	// (the __NEXT_DATA__ script, or the whole body for JSON documents).
	StructuredBlock() (any, bool)

	// LinkedData returns every parseable application/ld+json block in
	// document order.
	LinkedData() []any

	// Source is the raw document text.
	Source() string

	// URL is where the document came from, "" when unknown.
	URL() string
}

// HTML implements Document over a parsed HTML (or JSON) source.
type HTML struct {
	doc    *goquery.Document
	src    string
	url    string
	block  any
	hasBlk bool
	linked []any
}

var _ Document = (*HTML)(nil)

// Parse builds a document from src. pageURL is kept for resolving relative
// links and may be empty.
//
// A source that is a JSON value as a whole (an API response rather than a
// page) becomes the structured block; the element tree is then empty.
// Unparseable embedded blocks are ignored.
func Parse(src, pageURL string) (*HTML, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	h := &HTML{doc: doc, src: src, url: pageURL}

	trimmed := bytes.TrimSpace([]byte(src))
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if v, err := decodeJSON(trimmed); err == nil {
			h.block, h.hasBlk = v, true
			return h, nil
		}
	}

	if raw := doc.Find(`script#__NEXT_DATA__`).First(); raw.Length() > 0 {
		if v, err := decodeJSON([]byte(raw.Text())); err == nil {
			h.block, h.hasBlk = v, true
		}
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if v, err := decodeJSON([]byte(s.Text())); err == nil {
			h.linked = append(h.linked, v)
		}
	})

	return h, nil
}

// decodeJSON decodes one JSON value keeping numbers as json.Number, so
// large integer IDs survive unchanged.
func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// Goquery exposes the underlying goquery document.
func (h *HTML) Goquery() *goquery.Document { return h.doc }

func (h *HTML) Source() string { return h.src }

func (h *HTML) URL() string { return h.url }

func (h *HTML) StructuredBlock() (any, bool) { return h.block, h.hasBlk }

func (h *HTML) LinkedData() []any { return h.linked }

// SelectCSS returns all elements matching selector in document order.
// An invalid selector is an error rather than an empty match.
func (h *HTML) SelectCSS(selector string) ([]Element, error) {
	sel, err := h.find(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, selElement{s})
	})
	return out, nil
}

func (h *HTML) find(selector string) (*goquery.Selection, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("css selector %q: %w", selector, err)
	}
	return h.doc.FindMatcher(m), nil
}

// SelectXPath evaluates expr against the document root.
//
// Node results become elements; attribute nodes and scalar results
// (string(), count(), ...) become value elements whose Text is the value.
func (h *HTML) SelectXPath(expr string) (out []Element, err error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	if len(h.doc.Nodes) == 0 {
		return nil, nil
	}

	// The xpath package panics on some argument type mismatches.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("xpath %q: %v", expr, r)
		}
	}()

	switch v := compiled.Evaluate(htmlquery.CreateXPathNavigator(h.doc.Nodes[0])).(type) {
	case *xpath.NodeIterator:
		for v.MoveNext() {
			nav, ok := v.Current().(*htmlquery.NodeNavigator)
			if !ok {
				continue
			}
			if nav.NodeType() == xpath.AttributeNode {
				out = append(out, valueElement(nav.Value()))
				continue
			}
			out = append(out, nodeElement{nav.Current()})
		}
	case string:
		out = append(out, valueElement(v))
	case float64:
		out = append(out, valueElement(strconv.FormatFloat(v, 'f', -1, 64)))
	case bool:
		out = append(out, valueElement(strconv.FormatBool(v)))
	}
	return out, nil
}

type selElement struct{ s *goquery.Selection }

func (e selElement) Attr(name string) (string, bool) { return e.s.Attr(name) }

func (e selElement) Text() string { return strings.TrimSpace(e.s.Text()) }

type nodeElement struct{ n *html.Node }

func (e nodeElement) Attr(name string) (string, bool) {
	for _, a := range e.n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e nodeElement) Text() string { return strings.TrimSpace(htmlquery.InnerText(e.n)) }

// valueElement is a query result that is a plain value, not a node.
type valueElement string

func (e valueElement) Attr(string) (string, bool) { return "", false }

func (e valueElement) Text() string { return strings.TrimSpace(string(e)) }
