package extract

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"scrape/internal/document"
	"scrape/internal/schema"
)

const recipePage = `<html><head>
<script type="application/ld+json">{"@type":"Recipe","name":"Caesar Salad","recipeIngredient":["Romaine","Croutons"],"totalTime":"PT20M"}</script>
<script id="__NEXT_DATA__" type="application/json">{"props":{"recipe":{"title":"Caesar","steps":[{"text":"Chop"},{"text":"Toss"}],"kcal":320}}}</script>
<script>var cfg = {"price": "12.50",
"sku": "CS-1"};</script>
</head><body>
<h1> Caesar Salad </h1>
<ul><li>Romaine</li><li>Croutons</li><li>Parmesan</li></ul>
<a class="src" href="/orig">Original</a><a class="src">No link</a>
<iframe class="nut" src="/frames/nutrition"></iframe>
<iframe class="nut" src="javascript:void(0)"></iframe>
<iframe class="nut"></iframe>
</body></html>`

func parse(t *testing.T, src, pageURL string) *document.HTML {
	t.Helper()
	doc, err := document.Parse(src, pageURL)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

type stubLoader struct {
	pages map[string]string
	calls []string
}

func (l *stubLoader) Load(_ context.Context, url string) (document.Document, error) {
	l.calls = append(l.calls, url)
	src, ok := l.pages[url]
	if !ok {
		return nil, errors.New("status 404")
	}
	return document.Parse(src, url)
}

// TestValues_Kinds covers each adapter against the same page.
func TestValues_Kinds(t *testing.T) {
	t.Parallel()

	doc := parse(t, recipePage, "https://example.com/recipes/caesar")

	tests := []struct {
		name string
		src  schema.SourceSpec
		want []any
	}{
		{"css text", schema.SourceSpec{Kind: schema.KindCSS, Selector: "li"}, []any{"Romaine", "Croutons", "Parmesan"}},
		{"css attr skips missing", schema.SourceSpec{Kind: schema.KindCSS, Selector: "a.src", Attribute: "href"}, []any{"/orig"}},
		{"css no match", schema.SourceSpec{Kind: schema.KindCSS, Selector: "table td"}, []any{}},
		{"xpath text", schema.SourceSpec{Kind: schema.KindXPath, Selector: "//h1"}, []any{"Caesar Salad"}},
		{"xpath attr", schema.SourceSpec{Kind: schema.KindXPath, Selector: "//a", Attribute: "href"}, []any{"/orig"}},
		{"json scalar", schema.SourceSpec{Kind: schema.KindJSON, Selector: "props.recipe.kcal"}, []any{json.Number("320")}},
		{"json projection", schema.SourceSpec{Kind: schema.KindJSON, Selector: "props.recipe.steps.text"}, []any{"Chop", "Toss"}},
		{"json missing", schema.SourceSpec{Kind: schema.KindJSON, Selector: "props.nope"}, nil},
		{"json-ld key", schema.SourceSpec{Kind: schema.KindJSONLD, Selector: "name"}, []any{"Caesar Salad"}},
		{"json-ld list", schema.SourceSpec{Kind: schema.KindJSONLD, Selector: "recipeIngredient"}, []any{"Romaine", "Croutons"}},
		{"json-ld missing", schema.SourceSpec{Kind: schema.KindJSONLD, Selector: "author"}, nil},
		{"regex whole", schema.SourceSpec{Kind: schema.KindRegex, Selector: `CS-\d`}, []any{"CS-1"}},
		{"regex group across lines", schema.SourceSpec{Kind: schema.KindRegex, Selector: `"price": "([\d.]+)",.*?"sku"`, Group: 1}, []any{"12.50"}},
	}

	for _, tt := range tests {
		got, err := Values(context.Background(), doc, tt.src, Env{})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%s: want %#v got %#v", tt.name, tt.want, got)
		}
	}
}

// TestValues_StructuredKindsWithoutBlocks verifies a page lacking the block
// a kind reads from yields no value rather than an error.
func TestValues_StructuredKindsWithoutBlocks(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<h1>plain</h1>`, "")
	for _, kind := range []schema.SourceKind{schema.KindJSON, schema.KindJSONLD} {
		got, err := Values(context.Background(), doc, schema.SourceSpec{Kind: kind, Selector: "a"}, Env{})
		if err != nil || len(got) != 0 {
			t.Fatalf("%s: want no values, got %#v err=%v", kind, got, err)
		}
	}
}

// TestValues_Errors verifies unusable selectors are reported.
func TestValues_Errors(t *testing.T) {
	t.Parallel()

	doc := parse(t, recipePage, "")
	for _, src := range []schema.SourceSpec{
		{Kind: schema.KindCSS, Selector: "li[[["},
		{Kind: schema.KindXPath, Selector: "//li[("},
		{Kind: schema.KindRegex, Selector: "(unclosed"},
		{Kind: schema.KindRegex, Selector: "CS-(\\d)", Group: 2},
		{Kind: "jq", Selector: "."},
	} {
		if _, err := Values(context.Background(), doc, src, Env{}); err == nil {
			t.Fatalf("%s %q: expected error", src.Kind, src.Selector)
		}
	}
}

// TestValues_Iframe verifies relative sources are resolved against the page
// URL, non-http sources are ignored, and the inner selector runs in the
// nested document.
func TestValues_Iframe(t *testing.T) {
	t.Parallel()

	loader := &stubLoader{pages: map[string]string{
		"https://example.com/frames/nutrition": `<table><td class="kcal">320 kcal</td><td class="kcal">12 g</td></table>`,
	}}
	doc := parse(t, recipePage, "https://example.com/recipes/caesar")

	src := schema.SourceSpec{Kind: schema.KindIframe, Selector: "iframe.nut", Inner: "td.kcal"}
	got, err := Values(context.Background(), doc, src, Env{Loader: loader})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []any{"320 kcal", "12 g"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("want %#v got %#v", want, got)
	}
	if want := []string{"https://example.com/frames/nutrition"}; !reflect.DeepEqual(loader.calls, want) {
		t.Fatalf("loader calls: want %v got %v", want, loader.calls)
	}
}

// TestValues_IframeSiteFallbackAndFailure verifies Env.Site is the base for
// documents without a URL and a failed load is reported.
func TestValues_IframeSiteFallbackAndFailure(t *testing.T) {
	t.Parallel()

	loader := &stubLoader{pages: map[string]string{}}
	doc := parse(t, `<iframe src="/embed/1"></iframe>`, "")

	src := schema.SourceSpec{Kind: schema.KindIframe, Selector: "iframe", Inner: "p"}
	got, err := Values(context.Background(), doc, src, Env{Loader: loader, Site: "https://cdn.example.org/"})
	if err == nil {
		t.Fatalf("expected load error")
	}
	if len(got) != 0 {
		t.Fatalf("unexpected values: %#v", got)
	}
	if len(loader.calls) != 1 || loader.calls[0] != "https://cdn.example.org/embed/1" {
		t.Fatalf("unexpected calls: %v", loader.calls)
	}

	got, err = Values(context.Background(), doc, src, Env{})
	if err != nil || got != nil {
		t.Fatalf("nil loader: want no values, got %#v err=%v", got, err)
	}
}
