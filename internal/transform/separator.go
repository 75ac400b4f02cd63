package transform

import (
	"strconv"
	"strings"

	"scrape/internal/schema"
)

var (
	cyrillicMarks = []rune("абвгдежзиклмнопрстуфхцчшщэюя")
	latinMarks    = []rune("abcdefghijklmnopqrstuvwxyz")
)

// Join concatenates parts with sep. The keywords schema.SeparatorNumbered,
// schema.SeparatorCyrillic and schema.SeparatorLatin prefix each part with a
// counter ("1.", "а.", "a.") and join with a single space.
func Join(parts []string, sep string) string {
	var mark func(int) string
	switch sep {
	case schema.SeparatorNumbered:
		mark = func(i int) string { return strconv.Itoa(i+1) + "." }
	case schema.SeparatorCyrillic:
		mark = letterMark(cyrillicMarks)
	case schema.SeparatorLatin:
		mark = letterMark(latinMarks)
	default:
		return strings.Join(parts, sep)
	}

	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = mark(i) + " " + p
	}
	return strings.Join(out, " ")
}

// letterMark labels items a, b, ... and doubles the letter once the alphabet
// runs out (aa, bb, ...).
func letterMark(alphabet []rune) func(int) string {
	return func(i int) string {
		letter := string(alphabet[i%len(alphabet)])
		return strings.Repeat(letter, i/len(alphabet)+1) + "."
	}
}
