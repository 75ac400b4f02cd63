package transform

import (
	"encoding/json"
	"errors"
	"testing"

	"scrape/internal/schema"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

// TestFormat_NilSpecOnlyTrims verifies that without a recipe the only
// processing is trimming.
func TestFormat_NilSpecOnlyTrims(t *testing.T) {
	t.Parallel()

	got, err := Format("  Caesar  Salad \n", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Caesar  Salad" {
		t.Fatalf("want %q got %#v", "Caesar  Salad", got)
	}

	if got, _ := Format(nil, nil); got != nil {
		t.Fatalf("nil input should stay nil, got %#v", got)
	}
}

// TestFormat_StepOrder runs a value through every string and numeric step.
func TestFormat_StepOrder(t *testing.T) {
	t.Parallel()

	spec := &schema.FormatSpec{
		NormalizeWhitespace: true,
		RemoveFragments:     []string{"Price:", "руб."},
		RegexPattern:        `(\d+[.,]\d+)`,
		RegexGroup:          1,
		ConvertToNumber:     true,
		MultiplyBy:          f64(3),
		DivideBy:            f64(2),
		RoundTo:             intp(1),
	}

	got, err := Format("  Price:   1 234,5   руб. ", spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// "1 234,5" -> regex "234,5" -> 234.5 * 3 / 2 = 351.75 -> 351.8
	if got != 351.8 {
		t.Fatalf("want 351.8 got %#v", got)
	}
}

// TestFormat_NoConvertNeverNumeric verifies numeric steps do not touch a
// value that was never converted.
func TestFormat_NoConvertNeverNumeric(t *testing.T) {
	t.Parallel()

	specs := []*schema.FormatSpec{
		nil,
		{},
		{MultiplyBy: f64(2), RoundTo: intp(0)},
		{RegexPattern: `\d+`, DivideBy: f64(0)},
	}
	for _, in := range []any{"42", 42.0, " 3,5 ", []any{"1", 2.0}} {
		for i, spec := range specs {
			got, _ := Format(in, spec)
			if _, ok := got.(float64); ok {
				t.Fatalf("spec %d input %#v: got numeric %#v", i, in, got)
			}
		}
	}
}

// TestFormat_DivideByZero verifies division by zero yields nil rather than
// infinity, and skips rounding.
func TestFormat_DivideByZero(t *testing.T) {
	t.Parallel()

	spec := &schema.FormatSpec{ConvertToNumber: true, DivideBy: f64(0), RoundTo: intp(1)}
	got, err := Format("12", spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil got %#v", got)
	}
}

// TestFormat_Overflow verifies a product too large for float64 yields nil
// instead of infinity, like division by zero.
func TestFormat_Overflow(t *testing.T) {
	t.Parallel()

	for _, spec := range []*schema.FormatSpec{
		{ConvertToNumber: true, MultiplyBy: f64(1e308)},
		{ConvertToNumber: true, MultiplyBy: f64(1e308), RoundTo: intp(2)},
		{ConvertToNumber: true, DivideBy: f64(1e-308)},
	} {
		got, err := Format("10", spec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Fatalf("want nil got %#v", got)
		}
	}

	// Overflowing elements are dropped from a list like any other nil.
	got, _ := Format([]any{"10", "20"}, &schema.FormatSpec{ConvertToNumber: true, MultiplyBy: f64(1e308)})
	if got != "" {
		t.Fatalf("want empty join got %#v", got)
	}
}

// TestFormat_ConvertFailureKeepsString verifies a value without digits stays
// the string produced by the earlier steps.
func TestFormat_ConvertFailureKeepsString(t *testing.T) {
	t.Parallel()

	got, _ := Format(" n/a ", &schema.FormatSpec{ConvertToNumber: true, MultiplyBy: f64(10)})
	if got != "n/a" {
		t.Fatalf("want %q got %#v", "n/a", got)
	}
}

// TestFormat_Regex covers search semantics, group selection, no-match and
// malformed patterns.
func TestFormat_Regex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    schema.FormatSpec
		in      string
		want    string
		wantErr bool
	}{
		{"whole match", schema.FormatSpec{RegexPattern: `\d+ min`}, "Cook 25 min total", "25 min", false},
		{"group", schema.FormatSpec{RegexPattern: `(\d+) min`, RegexGroup: 1}, "Cook 25 min", "25", false},
		{"no match unchanged", schema.FormatSpec{RegexPattern: `\d+`}, "none", "none", false},
		{"bad pattern skipped", schema.FormatSpec{RegexPattern: `(`}, "keep", "keep", true},
		{"missing group skipped", schema.FormatSpec{RegexPattern: `\d+`, RegexGroup: 2}, "a 1", "a 1", true},
	}

	for _, tt := range tests {
		spec := tt.spec
		got, err := Format(tt.in, &spec)
		if got != tt.want {
			t.Fatalf("%s: want %q got %#v", tt.name, tt.want, got)
		}
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: wantErr=%v got %v", tt.name, tt.wantErr, err)
		}
		var se *StepError
		if tt.wantErr && !errors.As(err, &se) {
			t.Fatalf("%s: expected *StepError, got %T", tt.name, err)
		}
	}
}

// TestFormat_ListJoin verifies element-wise formatting and joining.
func TestFormat_ListJoin(t *testing.T) {
	t.Parallel()

	spec := &schema.FormatSpec{Separator: ", ", RemoveFragments: []string{"*"}}
	in := []string{" Romaine* ", "Croutons", "*Parmesan"}

	got, _ := Format(in, spec)
	want := "Romaine, Croutons, Parmesan"
	if got != want {
		t.Fatalf("want %q got %#v", want, got)
	}

	one, _ := Format([]string{" Romaine* "}, spec)
	alone, _ := Format(" Romaine* ", spec)
	if one != alone {
		t.Fatalf("one-element list %#v differs from scalar %#v", one, alone)
	}

	def, _ := Format([]any{"a", nil, 2.0}, nil)
	if def != "a | 2" {
		t.Fatalf("default separator: got %#v", def)
	}
}

// TestJoin_SpecialSeparators verifies counter prefixes.
func TestJoin_SpecialSeparators(t *testing.T) {
	t.Parallel()

	parts := []string{"x", "y", "z"}
	tests := map[string]string{
		schema.SeparatorNumbered: "1. x 2. y 3. z",
		schema.SeparatorCyrillic: "а. x б. y в. z",
		schema.SeparatorLatin:    "a. x b. y c. z",
		"; ":                     "x; y; z",
	}
	for sep, want := range tests {
		if got := Join(parts, sep); got != want {
			t.Fatalf("sep %q: want %q got %q", sep, want, got)
		}
	}

	long := make([]string, 28)
	for i := range long {
		long[i] = "v"
	}
	got := Join(long, schema.SeparatorLatin)
	if want := "z. v aa. v bb. v"; got[len(got)-len(want):] != want {
		t.Fatalf("latin overflow: got suffix of %q", got)
	}
}

func TestParseNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"250 g", 250, true},
		{"1,5 kg", 1.5, true},
		{"≈ 3.25 cups", 3.25, true},
		{"7.", 7, true},
		{"none", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("%q: want (%v,%v) got (%v,%v)", tt.in, tt.want, tt.ok, got, ok)
		}
	}
}

func TestRound(t *testing.T) {
	t.Parallel()

	if got := Round(2.675, 1); got != 2.7 {
		t.Fatalf("want 2.7 got %v", got)
	}
	if got := Round(1234, -2); got != 1200 {
		t.Fatalf("want 1200 got %v", got)
	}
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	for _, v := range []any{nil, "", 0.0, 0, false, json.Number("0")} {
		if !Empty(v) {
			t.Fatalf("%#v should be empty", v)
		}
	}
	for _, v := range []any{" ", "0", 1.0, true, json.Number("9007199254740993")} {
		if Empty(v) {
			t.Fatalf("%#v should not be empty", v)
		}
	}
}
