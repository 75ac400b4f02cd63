package formula

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

type builtin func(args []any) (any, error)

// builtins is the complete set of callable names.
var builtins = map[string]builtin{
	"int":   toInt,
	"float": toFloat,
	"str":   toStr,
	"len":   length,
	"sum":   sum,
	"round": round,
	"abs":   abs,
	"max":   extreme(1),
	"min":   extreme(-1),
	"split": split,
}

func arity(args []any, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return fmt.Errorf("%w: takes %d argument(s), got %d", ErrType, lo, len(args))
		}
		return fmt.Errorf("%w: takes %d to %d arguments, got %d", ErrType, lo, hi, len(args))
	}
	return nil
}

// toInt truncates numbers and parses integer strings. "3.7" is rejected, as
// a decimal string is not an integer literal.
func toInt(args []any) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid literal for int: %q", ErrType, x)
		}
		return float64(n), nil
	default:
		f, ok := number(x)
		if !ok {
			return nil, fmt.Errorf("%w: cannot convert %s to int", ErrType, typeName(x))
		}
		return math.Trunc(f), nil
	}
}

func toFloat(args []any) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: could not convert string to float: %q", ErrType, x)
		}
		return f, nil
	default:
		f, ok := number(x)
		if !ok {
			return nil, fmt.Errorf("%w: cannot convert %s to float", ErrType, typeName(x))
		}
		return f, nil
	}
}

func toStr(args []any) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	return str(args[0]), nil
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, it := range x {
			if s, ok := it.(string); ok {
				parts[i] = strconv.Quote(s)
				continue
			}
			parts[i] = str(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}

func length(args []any) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case string:
		return float64(utf8.RuneCountInString(x)), nil
	case []any:
		return float64(len(x)), nil
	}
	return nil, fmt.Errorf("%w: %s has no len()", ErrType, typeName(args[0]))
}

func sum(args []any) (any, error) {
	if err := arity(args, 1, 2); err != nil {
		return nil, err
	}
	items, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not iterable", ErrType, typeName(args[0]))
	}
	total := 0.0
	if len(args) == 2 {
		start, ok := number(args[1])
		if !ok {
			return nil, fmt.Errorf("%w: start must be a number", ErrType)
		}
		total = start
	}
	for _, it := range items {
		f, ok := number(it)
		if !ok {
			return nil, fmt.Errorf("%w: unsupported operand type for +: %s", ErrType, typeName(it))
		}
		total += f
	}
	return total, nil
}

// round uses banker's rounding at the requested precision.
func round(args []any) (any, error) {
	if err := arity(args, 1, 2); err != nil {
		return nil, err
	}
	f, ok := number(args[0])
	if !ok {
		return nil, fmt.Errorf("%w: cannot round %s", ErrType, typeName(args[0]))
	}
	digits := 0.0
	if len(args) == 2 && args[1] != nil {
		d, ok := number(args[1])
		if !ok || d != math.Trunc(d) {
			return nil, fmt.Errorf("%w: ndigits must be an integer", ErrType)
		}
		digits = d
	}
	p := math.Pow(10, digits)
	r := math.RoundToEven(f*p) / p
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return f, nil
	}
	return r, nil
}

func abs(args []any) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	f, ok := number(args[0])
	if !ok {
		return nil, fmt.Errorf("%w: bad operand type for abs(): %s", ErrType, typeName(args[0]))
	}
	return math.Abs(f), nil
}

// split cuts a string into a list of strings. Without a separator (or with
// None) it splits on runs of whitespace and drops empty parts.
func split(args []any) (any, error) {
	if err := arity(args, 1, 2); err != nil {
		return nil, err
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: cannot split %s", ErrType, typeName(args[0]))
	}

	var parts []string
	if len(args) == 1 || args[1] == nil {
		parts = strings.Fields(s)
	} else {
		sep, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("%w: separator must be str, not %s", ErrType, typeName(args[1]))
		}
		if sep == "" {
			return nil, fmt.Errorf("%w: empty separator", ErrType)
		}
		parts = strings.Split(s, sep)
	}

	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

var errEmptySequence = errors.New("arg is an empty sequence")

// extreme builds max (sign 1) and min (sign -1). A single list argument is
// searched element-wise, otherwise the arguments themselves are compared.
func extreme(sign int) builtin {
	return func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: expected at least 1 argument", ErrType)
		}
		items := args
		if len(args) == 1 {
			list, ok := args[0].([]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s is not iterable", ErrType, typeName(args[0]))
			}
			items = list
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: %w", ErrType, errEmptySequence)
		}
		best := items[0]
		for _, it := range items[1:] {
			c, err := compare(it, best)
			if err != nil {
				return nil, fmt.Errorf("%w: cannot compare %s and %s", ErrType, typeName(it), typeName(best))
			}
			if c*sign > 0 {
				best = it
			}
		}
		return best, nil
	}
}
