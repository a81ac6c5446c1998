package nutrition

import "strings"

// ExtractJSONArray locates the first '['..last ']' span in free-form model
// output. Vision models routinely wrap the requested JSON in prose, so the
// span is cut out and everything around it ignored. Returns false when no
// bracketed span exists.
func ExtractJSONArray(raw string) (string, bool) {
	start := strings.Index(raw, "[")
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(raw, "]")
	if end <= start {
		return "", false
	}
	return raw[start : end+1], true
}
