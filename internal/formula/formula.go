// Package formula evaluates the expressions behind computed fields.
//
// The language is a small arithmetic subset: numbers, quoted strings, list
// literals, names bound to earlier field values, + - * / // % **, comparisons,
// and/or/not, indexing, and calls to a fixed set of pure functions (int,
// float, str, len, sum, round, abs, max, min, split). There is no attribute
// access, so "s.split(',')" is written "split(s, ',')". There is no
// assignment and no way to reach anything outside the bindings.
package formula

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	ErrSyntax       = errors.New("syntax error")
	ErrUnknownName  = errors.New("unknown name")
	ErrType         = errors.New("type error")
	ErrZeroDivision = errors.New("division by zero")
)

// Expr is a parsed formula, safe for concurrent use.
type Expr struct {
	src  string
	root node
}

// Compile parses src.
func Compile(src string) (*Expr, error) {
	n, err := parse(src)
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", src, err)
	}
	return &Expr{src: src, root: n}, nil
}

func (e *Expr) String() string { return e.src }

// Eval evaluates the expression with vars as the only bound names. Integer
// values in vars are treated as float64.
func (e *Expr) Eval(vars map[string]any) (any, error) {
	v, err := e.root.eval(env(vars))
	if err == nil && !finite(v) {
		err = errOverflow
	}
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", e.src, err)
	}
	return v, nil
}

// Eval compiles and evaluates src in one step.
func Eval(src string, vars map[string]any) (any, error) {
	e, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return e.Eval(vars)
}

var errOverflow = fmt.Errorf("%w: numerical result out of range", ErrType)

// finite reports whether v holds no infinite or NaN number, looking inside
// lists.
func finite(v any) bool {
	switch x := v.(type) {
	case float64:
		return !math.IsInf(x, 0) && !math.IsNaN(x)
	case []any:
		for _, it := range x {
			if !finite(it) {
				return false
			}
		}
	}
	return true
}

type env map[string]any

func (e env) lookup(id string) (any, error) {
	v, ok := e[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownName, id)
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, it := range x {
			out[i] = normalize(it)
		}
		return out
	}
	return v
}
