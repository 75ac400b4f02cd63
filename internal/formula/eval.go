package formula

import (
	"fmt"
	"math"
)

type node interface {
	eval(env) (any, error)
}

type literal struct{ v any }

func (n literal) eval(env) (any, error) { return n.v, nil }

type name struct{ id string }

func (n name) eval(e env) (any, error) { return e.lookup(n.id) }

type listLit struct{ items []node }

func (n listLit) eval(e env) (any, error) {
	out := make([]any, 0, len(n.items))
	for _, it := range n.items {
		v, err := it.eval(e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type unary struct {
	op string
	x  node
}

func (n unary) eval(e env) (any, error) {
	v, err := n.x.eval(e)
	if err != nil {
		return nil, err
	}
	if n.op == "not" {
		return !truthy(v), nil
	}
	f, ok := number(v)
	if !ok {
		return nil, fmt.Errorf("%w: bad operand type for unary %s: %s", ErrType, n.op, typeName(v))
	}
	if n.op == "-" {
		return -f, nil
	}
	return f, nil
}

type logical struct {
	op   string
	l, r node
}

// eval short-circuits and returns an operand, not a bool: "x or 0" gives x
// when x is truthy.
func (n logical) eval(e env) (any, error) {
	l, err := n.l.eval(e)
	if err != nil {
		return nil, err
	}
	if (n.op == "and") != truthy(l) {
		return l, nil
	}
	return n.r.eval(e)
}

type binary struct {
	op   string
	l, r node
}

func (n binary) eval(e env) (any, error) {
	l, err := n.l.eval(e)
	if err != nil {
		return nil, err
	}
	r, err := n.r.eval(e)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "<", "<=", ">", ">=":
		c, err := compare(l, r)
		if err != nil {
			return nil, fmt.Errorf("%w: %q not supported between %s and %s", ErrType, n.op, typeName(l), typeName(r))
		}
		switch n.op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case "+":
		switch a := l.(type) {
		case string:
			if b, ok := r.(string); ok {
				return a + b, nil
			}
		case []any:
			if b, ok := r.([]any); ok {
				return append(append([]any{}, a...), b...), nil
			}
		}
	}

	a, aok := number(l)
	b, bok := number(r)
	if !aok || !bok {
		return nil, fmt.Errorf("%w: unsupported operand types for %s: %s and %s", ErrType, n.op, typeName(l), typeName(r))
	}
	return arith(n.op, a, b)
}

func arith(op string, a, b float64) (any, error) {
	v, err := arithRaw(op, a, b)
	if err != nil {
		return nil, err
	}
	if f, ok := v.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return nil, errOverflow
	}
	return v, nil
}

func arithRaw(op string, a, b float64) (any, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, ErrZeroDivision
		}
		return a / b, nil
	case "//":
		if b == 0 {
			return nil, ErrZeroDivision
		}
		return math.Floor(a / b), nil
	case "%":
		if b == 0 {
			return nil, ErrZeroDivision
		}
		// The result takes the sign of the divisor.
		return a - b*math.Floor(a/b), nil
	case "**":
		if a == 0 && b < 0 {
			return nil, ErrZeroDivision
		}
		r := math.Pow(a, b)
		if math.IsNaN(r) {
			return nil, fmt.Errorf("%w: %v ** %v is not a real number", ErrType, a, b)
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: unknown operator %q", ErrSyntax, op)
}

type index struct {
	x, i node
}

func (n index) eval(e env) (any, error) {
	x, err := n.x.eval(e)
	if err != nil {
		return nil, err
	}
	iv, err := n.i.eval(e)
	if err != nil {
		return nil, err
	}
	f, ok := number(iv)
	if !ok || f != math.Trunc(f) {
		return nil, fmt.Errorf("%w: indices must be integers, not %s", ErrType, typeName(iv))
	}
	i := int(f)

	switch s := x.(type) {
	case []any:
		if i < 0 {
			i += len(s)
		}
		if i < 0 || i >= len(s) {
			return nil, fmt.Errorf("%w: list index out of range", ErrType)
		}
		return s[i], nil
	case string:
		rs := []rune(s)
		if i < 0 {
			i += len(rs)
		}
		if i < 0 || i >= len(rs) {
			return nil, fmt.Errorf("%w: string index out of range", ErrType)
		}
		return string(rs[i]), nil
	}
	return nil, fmt.Errorf("%w: %s is not subscriptable", ErrType, typeName(x))
}

type call struct {
	fn   string
	args []node
}

func (n call) eval(e env) (any, error) {
	fn, ok := builtins[n.fn]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an allowed function", ErrUnknownName, n.fn)
	}
	args := make([]any, 0, len(n.args))
	for _, a := range n.args {
		v, err := a.eval(e)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	v, err := fn(args)
	if err != nil {
		return nil, fmt.Errorf("%s(): %w", n.fn, err)
	}
	return v, nil
}

// number accepts float64 and bool (True is 1).
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	}
	return true
}

func equal(a, b any) bool {
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func compare(a, b any) (int, error) {
	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok {
			return 0, ErrType
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	}
	x, aok := a.(string)
	y, bok := b.(string)
	if !aok || !bok {
		return 0, ErrType
	}
	switch {
	case x < y:
		return -1, nil
	case x > y:
		return 1, nil
	}
	return 0, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "None"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "str"
	case []any:
		return "list"
	}
	return fmt.Sprintf("%T", v)
}
