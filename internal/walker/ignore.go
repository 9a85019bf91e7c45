package walker

import (
	"path/filepath"
	"strings"
)

// normalizeIgnore converts prefixes to slash form and drops blanks.
func normalizeIgnore(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = filepath.ToSlash(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// isIgnored reports whether the relative directory path rel starts with one
// of the prefixes, accepting both the bare and the "./" spelling.
func isIgnored(rel string, prefixes []string) bool {
	dotted := "./" + rel
	for _, p := range prefixes {
		if strings.HasPrefix(rel, p) || strings.HasPrefix(dotted, p) {
			return true
		}
	}
	return false
}

func joinRel(rel, name string) string {
	if rel == "" {
		return name
	}
	return rel + "/" + name
}
