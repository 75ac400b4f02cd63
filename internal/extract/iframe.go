package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"scrape/internal/document"
	"scrape/internal/schema"
)

// fromIframe loads every document referenced by the iframes src.Selector
// matches and collects src.Inner from each of them. A nested document that
// fails to load is reported, but values from the others are kept.
func fromIframe(ctx context.Context, doc document.Document, src schema.SourceSpec, env Env) ([]any, error) {
	if env.Loader == nil {
		return nil, nil
	}
	frames, err := doc.SelectCSS(src.Selector)
	if err != nil {
		return nil, err
	}

	base := doc.URL()
	if base == "" {
		base = env.Site
	}

	var (
		out  []any
		errs []error
	)
	for _, f := range frames {
		ref, ok := f.Attr("src")
		if !ok {
			continue
		}
		target, ok := resolveFrame(base, ref)
		if !ok {
			continue
		}

		nested, err := env.Loader.Load(ctx, target)
		if err != nil {
			errs = append(errs, fmt.Errorf("iframe %s: %w", target, err))
			continue
		}
		if nested == nil {
			continue
		}
		els, err := nested.SelectCSS(src.Inner)
		if err != nil {
			return out, err
		}
		out = append(out, elementValues(els, src.Attribute)...)

		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}
	return out, errors.Join(errs...)
}

// resolveFrame makes ref absolute against base and keeps only http(s) URLs.
func resolveFrame(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() && base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", false
		}
		u = b.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}
