package fetch

import (
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// decodeBody converts body to UTF-8. A non-empty label (a schema's declared
// encoding, e.g. "windows-1251") wins; otherwise the encoding is sniffed from
// the BOM, the Content-Type header and <meta charset>, falling back to UTF-8.
func decodeBody(body []byte, contentType, label string) (string, string, error) {
	if label = strings.TrimSpace(label); label != "" {
		enc, err := htmlindex.Get(label)
		if err != nil {
			return "", "", fmt.Errorf("unknown encoding %q: %w", label, err)
		}
		out, err := enc.NewDecoder().Bytes(body)
		if err != nil {
			return "", "", fmt.Errorf("decode %s: %w", label, err)
		}
		name, _ := htmlindex.Name(enc)
		return string(out), name, nil
	}

	enc, name, _ := charset.DetermineEncoding(body, contentType)
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), name, nil
}
