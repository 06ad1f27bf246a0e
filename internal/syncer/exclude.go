package syncer

import "strings"

// ExcludeMatcher decides whether a folder falls under an excluded subtree.
type ExcludeMatcher struct {
	prefixes []string
}

// NewExcludeMatcher normalizes each entry to a slash-terminated prefix, so
// "b/b1" excludes "b/b1" and "b/b1/x" but not "b/b10".
func NewExcludeMatcher(excludes []string) *ExcludeMatcher {
	m := &ExcludeMatcher{}
	for _, e := range excludes {
		if strings.TrimSpace(e) == "" {
			continue
		}
		m.prefixes = append(m.prefixes, slashify(e))
	}
	return m
}

// Excluded reports whether path is one of the excluded folders or nested
// below one.
func (m *ExcludeMatcher) Excluded(path string) bool {
	path = slashify(path)
	for _, p := range m.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func slashify(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// normalizePath rewrites a store folder name to slash-delimited form.
func normalizePath(name, delim string) string {
	if delim == "" || delim == "/" {
		return name
	}
	return strings.ReplaceAll(name, delim, "/")
}
