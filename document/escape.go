package document

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// lineBreak closes the current text element, inserts a Word line break and reopens it.
const lineBreak = `</w:t><w:br/><w:t xml:space="preserve">`

func escapeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		var b strings.Builder
		_ = xml.EscapeText(&b, []byte(line))
		lines[i] = b.String()
	}
	return strings.Join(lines, lineBreak)
}

// escapeValue returns a copy of v with every string escaped for placement
// inside a <w:t> element. Non-string scalars are left for the template to print.
func escapeValue(v any) any {
	switch x := v.(type) {
	case string:
		return escapeText(x)
	case fmt.Stringer:
		return escapeText(x.String())
	case Data:
		return escapeValue(map[string]any(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = escapeValue(val)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i, val := range x {
			out[i] = escapeValue(val).(map[string]any)
		}
		return out
	case []Data:
		out := make([]map[string]any, len(x))
		for i, val := range x {
			out[i] = escapeValue(map[string]any(val)).(map[string]any)
		}
		return out
	case []string:
		out := make([]string, len(x))
		for i, val := range x {
			out[i] = escapeText(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = escapeValue(val)
		}
		return out
	default:
		return v
	}
}
