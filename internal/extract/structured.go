package extract

import (
	"context"
	"fmt"
	"regexp"

	"scrape/internal/document"
	"scrape/internal/jsonpath"
	"scrape/internal/schema"
)

// fromStructured resolves the selector as a dotted path over the page's
// structured block. A page without one yields nothing.
func fromStructured(_ context.Context, doc document.Document, src schema.SourceSpec, _ Env) ([]any, error) {
	block, ok := doc.StructuredBlock()
	if !ok {
		return nil, nil
	}
	v, ok := jsonpath.Resolve(block, src.Selector)
	if !ok {
		return nil, nil
	}
	return spread(v), nil
}

// fromLinkedData reads the selector as a top-level key of the first JSON-LD
// block.
func fromLinkedData(_ context.Context, doc document.Document, src schema.SourceSpec, _ Env) ([]any, error) {
	blocks := doc.LinkedData()
	if len(blocks) == 0 {
		return nil, nil
	}
	first, ok := blocks[0].(map[string]any)
	if !ok {
		return nil, nil
	}
	v, ok := first[src.Selector]
	if !ok || v == nil {
		return nil, nil
	}
	return spread(v), nil
}

// spread turns a list value into one raw value per element.
func spread(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

// fromRegex applies the selector to the raw source with "." matching
// newlines. Group > 0 takes that capture group from every match, otherwise
// the whole match.
func fromRegex(_ context.Context, doc document.Document, src schema.SourceSpec, _ Env) ([]any, error) {
	re, err := regexp.Compile("(?s)" + src.Selector)
	if err != nil {
		return nil, fmt.Errorf("regex %q: %w", src.Selector, err)
	}
	if src.Group > re.NumSubexp() {
		return nil, fmt.Errorf("regex %q has no group %d", src.Selector, src.Group)
	}

	var out []any
	for _, m := range re.FindAllStringSubmatch(doc.Source(), -1) {
		out = append(out, m[src.Group])
	}
	return out, nil
}
