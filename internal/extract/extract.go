// Package extract turns a schema.SourceSpec into raw values read from a
// document.Document.
//
// There is one adapter per schema.SourceKind. "Not found" is never an error:
// an adapter returns an empty slice. Errors are reserved for selectors or
// patterns that cannot be evaluated at all, and for nested documents that
// failed to load.
package extract

import (
	"context"
	"fmt"

	"scrape/internal/document"
	"scrape/internal/schema"
)

// NestedLoader loads the document an iframe points at. It is the only
// side-effecting collaborator of this package.
type NestedLoader interface {
	Load(ctx context.Context, url string) (document.Document, error)
}

// Env carries what adapters need beyond the document itself.
type Env struct {
	// Loader fetches iframe documents. Nil disables the iframe kind: it then
	// yields no values.
	Loader NestedLoader

	// Site is the base URL used for relative iframe sources when the
	// document has no URL of its own.
	Site string
}

type adapter func(ctx context.Context, doc document.Document, src schema.SourceSpec, env Env) ([]any, error)

// adapters is the closed dispatch table, one entry per schema.Kinds value.
var adapters = map[schema.SourceKind]adapter{
	schema.KindCSS:    fromCSS,
	schema.KindXPath:  fromXPath,
	schema.KindJSON:   fromStructured,
	schema.KindJSONLD: fromLinkedData,
	schema.KindRegex:  fromRegex,
	schema.KindIframe: fromIframe,
}

// Values returns the raw values src selects from doc. Elements yield strings;
// structured kinds may also yield json.Number, bool, map[string]any or []any.
func Values(ctx context.Context, doc document.Document, src schema.SourceSpec, env Env) ([]any, error) {
	fn, ok := adapters[src.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported source type %q", src.Kind)
	}
	return fn(ctx, doc, src, env)
}
