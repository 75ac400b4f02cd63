// Package jsonpath resolves dotted paths ("props.pageProps.items.0.title")
// over decoded JSON values: map[string]any, []any and scalars.
package jsonpath

import (
	"strconv"
	"strings"
)

// Resolve walks path over value and reports whether anything was found.
//
// On a map a segment is a key. On a list a segment that parses as an integer
// is an index; any other segment projects that key across every element that
// is a map containing it, and ends the walk with the collected []any.
// A missing key, an out-of-range index or a scalar with segments left all
// yield ok=false. A key holding null counts as missing.
//
// An empty path returns value unchanged.
func Resolve(value any, path string) (any, bool) {
	if path == "" {
		return value, value != nil
	}

	cur := value
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok || next == nil {
				return nil, false
			}
			cur = next

		case []any:
			if i, err := strconv.Atoi(strings.TrimSpace(seg)); err == nil {
				if i < 0 || i >= len(v) {
					return nil, false
				}
				cur = v[i]
				continue
			}
			return project(v, seg), true

		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

func project(items []any, key string) []any {
	out := []any{}
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := m[key]; ok {
			out = append(out, v)
		}
	}
	return out
}
