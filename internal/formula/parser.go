package formula

import "fmt"

// Binding powers, loosest first.
const (
	bpOr      = 10
	bpAnd     = 20
	bpNot     = 30
	bpCompare = 40
	bpSum     = 50
	bpProduct = 60
	bpUnary   = 70
	bpPower   = 80
	bpPostfix = 90
)

var infixPower = map[string]int{
	"or": bpOr, "and": bpAnd,
	"==": bpCompare, "!=": bpCompare, "<": bpCompare, "<=": bpCompare, ">": bpCompare, ">=": bpCompare,
	"+": bpSum, "-": bpSum,
	"*": bpProduct, "/": bpProduct, "//": bpProduct, "%": bpProduct,
	"**": bpPower,
	"(":  bpPostfix, "[": bpPostfix,
}

type parser struct {
	toks []token
	pos  int
}

func parse(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, t, t.pos)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(op string) error {
	t := p.next()
	if t.kind != tokOp || t.text != op {
		return fmt.Errorf("%w: expected %q, got %s at %d", ErrSyntax, op, t, t.pos)
	}
	return nil
}

// infix returns the binding power of t as an infix or postfix operator,
// 0 when t cannot continue an expression.
func infix(t token) int {
	switch t.kind {
	case tokOp:
		return infixPower[t.text]
	case tokName:
		if t.text == "and" || t.text == "or" {
			return infixPower[t.text]
		}
	}
	return 0
}

func (p *parser) expr(rbp int) (node, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for rbp < infix(p.peek()) {
		if left, err = p.infix(left); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) prefix() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return literal{t.num}, nil
	case tokString:
		return literal{t.text}, nil
	case tokName:
		switch t.text {
		case "True":
			return literal{true}, nil
		case "False":
			return literal{false}, nil
		case "None":
			return literal{nil}, nil
		case "not":
			x, err := p.expr(bpNot)
			if err != nil {
				return nil, err
			}
			return unary{op: "not", x: x}, nil
		case "and", "or":
			return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, t, t.pos)
		}
		return name{t.text}, nil
	case tokOp:
		switch t.text {
		case "-", "+":
			x, err := p.expr(bpUnary)
			if err != nil {
				return nil, err
			}
			return unary{op: t.text, x: x}, nil
		case "(":
			x, err := p.expr(0)
			if err != nil {
				return nil, err
			}
			return x, p.expect(")")
		case "[":
			items, err := p.list("]")
			if err != nil {
				return nil, err
			}
			return listLit{items}, nil
		}
	}
	return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, t, t.pos)
}

func (p *parser) infix(left node) (node, error) {
	t := p.next()
	switch t.text {
	case "(":
		fn, ok := left.(name)
		if !ok {
			return nil, fmt.Errorf("%w: only named functions can be called (at %d)", ErrSyntax, t.pos)
		}
		args, err := p.list(")")
		if err != nil {
			return nil, err
		}
		return call{fn: fn.id, args: args}, nil

	case "[":
		i, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		return index{x: left, i: i}, p.expect("]")

	case "and", "or":
		right, err := p.expr(infixPower[t.text])
		if err != nil {
			return nil, err
		}
		return logical{op: t.text, l: left, r: right}, nil

	case "**":
		// Right associative, and the exponent may carry a sign: 2**-1.
		right, err := p.expr(bpUnary - 1)
		if err != nil {
			return nil, err
		}
		return binary{op: t.text, l: left, r: right}, nil
	}

	right, err := p.expr(infixPower[t.text])
	if err != nil {
		return nil, err
	}
	return binary{op: t.text, l: left, r: right}, nil
}

// list parses comma separated expressions up to closer. A trailing comma is
// accepted.
func (p *parser) list(closer string) ([]node, error) {
	var items []node
	for {
		if t := p.peek(); t.kind == tokOp && t.text == closer {
			p.next()
			return items, nil
		}
		x, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		items = append(items, x)

		t := p.next()
		if t.kind == tokOp && t.text == closer {
			return items, nil
		}
		if t.kind != tokOp || t.text != "," {
			return nil, fmt.Errorf("%w: expected \",\" or %q, got %s at %d", ErrSyntax, closer, t, t.pos)
		}
	}
}
