package httpx

// PathExcluded reports whether path matches any pattern. A pattern matches
// when path starts with it; a '*' in the pattern matches everything from
// that position on.
func PathExcluded(path string, patterns []string) bool {
	for _, p := range patterns {
		if matchPrefix(path, p) {
			return true
		}
	}
	return false
}

func matchPrefix(path, pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' {
			return true
		}
		if i >= len(path) || path[i] != pattern[i] {
			return false
		}
	}
	return true
}
