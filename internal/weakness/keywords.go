package weakness

import "strings"

// ExtractKeywords splits a comma-separated keyword tag into distinct, trimmed
// keywords in order of first appearance. Empty tokens are dropped.
func ExtractKeywords(tag string) []string {
	if strings.TrimSpace(tag) == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(tag, ",") {
		kw := strings.TrimSpace(part)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}
