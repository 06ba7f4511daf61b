package configstore

import "strings"

// ParseEnvText reads KEY=VALUE lines. Blank lines, # comments, lines
// without '=' and empty keys are skipped. Keys and values are trimmed and
// one layer of matching quotes is removed from values. Later keys win.
// Lines have no length limit.
func ParseEnvText(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.FieldsFunc(text, isLineBreak) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = unquote(strings.TrimSpace(v))
	}
	return out
}

func isLineBreak(r rune) bool { return r == '\n' || r == '\r' }

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
