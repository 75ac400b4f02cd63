// Package transform normalizes raw extracted values according to a
// schema.FormatSpec.
//
// The result of Format is always nil, a string or a float64. Lists are
// flattened into one joined string; no structured value leaves this package.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"scrape/internal/schema"
)

// StepError is a diagnostic from a formatting step that could not run.
// The step is skipped and the value it received is carried on.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

var numberRe = regexp.MustCompile(`(\d+\.?\d*)`)

// Format applies spec to v. A []any or []string is formatted element by
// element and joined with spec.ListSeparator(); elements that format to nil
// are dropped.
//
// The returned error only carries step diagnostics (errors.Join of
// *StepError). The value is meaningful either way.
func Format(v any, spec *schema.FormatSpec) (any, error) {
	if v == nil {
		return nil, nil
	}

	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []string:
		items = make([]any, len(list))
		for i, s := range list {
			items[i] = s
		}
	default:
		return formatScalar(v, spec)
	}

	var (
		parts []string
		errs  []error
	)
	for _, it := range items {
		out, err := formatScalar(it, spec)
		if err != nil {
			errs = append(errs, err)
		}
		if out == nil {
			continue
		}
		parts = append(parts, Stringify(out))
	}
	return Join(parts, spec.ListSeparator()), errors.Join(errs...)
}

func formatScalar(v any, spec *schema.FormatSpec) (any, error) {
	if v == nil {
		return nil, nil
	}

	s := strings.TrimSpace(Stringify(v))
	if spec == nil {
		return s, nil
	}

	if spec.NormalizeWhitespace {
		s = strings.Join(strings.Fields(s), " ")
	}

	if len(spec.RemoveFragments) > 0 {
		for _, frag := range spec.RemoveFragments {
			if frag == "" {
				continue
			}
			s = strings.ReplaceAll(s, frag, "")
		}
		s = strings.TrimSpace(s)
	}

	var diag error
	if spec.RegexPattern != "" {
		out, err := applyRegex(s, spec.RegexPattern, spec.RegexGroup)
		if err != nil {
			diag = &StepError{Step: "regex", Err: err}
		} else {
			s = out
		}
	}

	var value any = s
	if spec.ConvertToNumber {
		if n, ok := ParseNumber(s); ok {
			value = n
		}
	}

	if n, ok := value.(float64); ok {
		value = arithmetic(n, spec)
	}

	// DateFormat is reserved and leaves the value as it is.

	return value, diag
}

func applyRegex(s, pattern string, group int) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return s, err
	}
	m := re.FindStringSubmatch(s)
	if m == nil {
		return s, nil
	}
	if group >= len(m) || group < 0 {
		return s, fmt.Errorf("no group %d in %q", group, pattern)
	}
	return m[group], nil
}

// arithmetic runs multiply, divide and round in that order. Division by zero
// or a result too large for float64 yields nil and ends the chain.
func arithmetic(n float64, spec *schema.FormatSpec) any {
	if spec.MultiplyBy != nil {
		n *= *spec.MultiplyBy
	}
	if spec.DivideBy != nil {
		if *spec.DivideBy == 0 {
			return nil
		}
		n /= *spec.DivideBy
	}
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return nil
	}
	if spec.RoundTo != nil {
		n = Round(n, *spec.RoundTo)
	}
	return n
}

// Round rounds n to digits fractional digits, half away from zero. Negative
// digits round to tens, hundreds and so on.
func Round(n float64, digits int) float64 {
	var r float64
	if digits < 0 {
		p := math.Pow(10, float64(-digits))
		r = math.Round(n/p) * p
	} else {
		p := math.Pow(10, float64(digits))
		r = math.Round(n*p) / p
	}
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return n
	}
	return r
}

// ParseNumber finds the first integer or decimal number in s. A comma is
// read as a decimal point, so "1,5 kg" gives 1.5.
func ParseNumber(s string) (float64, bool) {
	m := numberRe.FindString(strings.ReplaceAll(s, ",", "."))
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSuffix(m, "."), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Stringify renders a formatted or raw value as text. Whole floats print
// without a fraction; maps and lists print as JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// Empty reports whether v counts as "not filled": nil, "", 0 or false.
func Empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case float64:
		return x == 0
	case int:
		return x == 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	case bool:
		return !x
	}
	return false
}
