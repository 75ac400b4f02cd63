package extract

import (
	"context"
	"strings"

	"scrape/internal/document"
	"scrape/internal/schema"
)

func fromCSS(_ context.Context, doc document.Document, src schema.SourceSpec, _ Env) ([]any, error) {
	els, err := doc.SelectCSS(src.Selector)
	if err != nil {
		return nil, err
	}
	return elementValues(els, src.Attribute), nil
}

func fromXPath(_ context.Context, doc document.Document, src schema.SourceSpec, _ Env) ([]any, error) {
	els, err := doc.SelectXPath(src.Selector)
	if err != nil {
		return nil, err
	}
	return elementValues(els, src.Attribute), nil
}

// elementValues reads attr from each element, or its text when attr is empty.
// Elements without the attribute, or with a blank one, are skipped.
func elementValues(els []document.Element, attr string) []any {
	out := make([]any, 0, len(els))
	for _, el := range els {
		if attr == "" {
			out = append(out, el.Text())
			continue
		}
		v, ok := el.Attr(attr)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
