package formula

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokName
	tokOp
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return strconv.Quote(t.text)
}

// Longest operators first so "**" wins over "*".
var operators = []string{
	"**", "//", "==", "!=", "<=", ">=",
	"+", "-", "*", "/", "%", "<", ">", "(", ")", "[", "]", ",",
}

func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)

	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			for i < len(rs) && unicode.IsDigit(rs[i]) {
				i++
			}
			if i < len(rs) && rs[i] == '.' {
				i++
				for i < len(rs) && unicode.IsDigit(rs[i]) {
					i++
				}
			}
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				j := i + 1
				if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
					j++
				}
				if j < len(rs) && unicode.IsDigit(rs[j]) {
					i = j
					for i < len(rs) && unicode.IsDigit(rs[i]) {
						i++
					}
				}
			}
			text := string(rs[start:i])
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q at %d", ErrSyntax, text, start)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: n, pos: start})

		case r == '\'' || r == '"':
			s, next, err := lexString(rs, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i = next

		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(rs) && (rs[i] == '_' || unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i])) {
				i++
			}
			toks = append(toks, token{kind: tokName, text: string(rs[start:i]), pos: start})

		case r == '.':
			return nil, fmt.Errorf("%w: attribute access is not allowed (at %d)", ErrSyntax, i)

		default:
			rest := string(rs[i:])
			matched := false
			for _, op := range operators {
				if strings.HasPrefix(rest, op) {
					toks = append(toks, token{kind: tokOp, text: op, pos: i})
					i += len([]rune(op))
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, r, i)
			}
		}
	}

	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

func lexString(rs []rune, start int) (string, int, error) {
	quote := rs[start]
	var b strings.Builder
	for i := start + 1; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == quote:
			return b.String(), i + 1, nil
		case r == '\\' && i+1 < len(rs):
			i++
			switch rs[i] {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(rs[i])
			}
		default:
			b.WriteRune(r)
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated string at %d", ErrSyntax, start)
}
