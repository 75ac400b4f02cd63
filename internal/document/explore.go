package document

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	exploreLinks  = 10
	exploreImages = 5
)

// Overview is a quick survey of a page, used when authoring a schema for a
// site that has not been looked at yet.
type Overview struct {
	Title      []string          `json:"title"`
	H1         []string          `json:"h1"`
	Meta       map[string]string `json:"meta"`
	Links      []string          `json:"links"`
	Images     []string          `json:"images"`
	LinkedData []any             `json:"json_ld"`
	NextData   any               `json:"next_data"`
}

// Explore collects titles, headings, meta tags, the first links and images,
// and every structured block the page carries.
func (h *HTML) Explore() Overview {
	ov := Overview{
		Title:      texts(h.doc.Find("title")),
		H1:         texts(h.doc.Find("h1")),
		Meta:       map[string]string{},
		Links:      attrs(h.doc.Find("a"), "href", exploreLinks),
		Images:     attrs(h.doc.Find("img"), "src", exploreImages),
		LinkedData: h.linked,
	}
	if h.hasBlk {
		ov.NextData = h.block
	}

	h.doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, _ := s.Attr("content")
		if name, ok := s.Attr("name"); ok && name != "" {
			ov.Meta[name] = content
			return
		}
		if prop, ok := s.Attr("property"); ok && prop != "" {
			ov.Meta[prop] = content
		}
	})
	return ov
}

func texts(sel *goquery.Selection) []string {
	out := []string{}
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}

func attrs(sel *goquery.Selection, name string, limit int) []string {
	out := []string{}
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr(name); ok && strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
		return len(out) < limit
	})
	return out
}
