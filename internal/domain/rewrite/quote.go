package rewrite

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Quote renders s as a double-quoted JavaScript string literal.
func Quote(s string) string {
	var b bytes.Buffer

	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(s); err != nil {
		return `""`
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// QuoteSingle renders s as a single-quoted JavaScript string literal.
func QuoteSingle(s string) string {
	inner := Quote(s)
	inner = inner[1 : len(inner)-1]
	inner = strings.ReplaceAll(inner, `\"`, `"`)

	return "'" + strings.ReplaceAll(inner, "'", `\'`) + "'"
}
