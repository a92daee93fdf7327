// Package ignore provides gitignore-style pattern loading and matching for
// change detection.
package ignore

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Matcher filters paths against loaded ignore patterns.
//
// Matching is intentionally simpler than full gitignore semantics: a pattern
// ending in "/" matches as a directory prefix, a pattern containing "*"
// matches as a glob, anything else matches as an exact substring or suffix.
type Matcher struct {
	patterns []string
}

// NewMatcher creates a matcher over the given patterns.
func NewMatcher(patterns []string) *Matcher {
	return &Matcher{patterns: deduplicate(patterns)}
}

// LoadRepo reads patterns from the .gitignore at the repository root.
// A missing file yields an empty matcher, not an error.
func LoadRepo(root string) (*Matcher, error) {
	patterns, err := parseFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return NewMatcher(nil), nil
		}
		return nil, err
	}
	return NewMatcher(patterns), nil
}

// Patterns returns the loaded patterns.
func (m *Matcher) Patterns() []string {
	return m.patterns
}

// Ignored reports whether filePath matches any loaded pattern.
func (m *Matcher) Ignored(filePath string) bool {
	if len(m.patterns) == 0 {
		return false
	}

	for _, pattern := range m.patterns {
		if strings.HasSuffix(pattern, "/") {
			// Directory pattern: prefix match at root or below any parent.
			if strings.HasPrefix(filePath, pattern) || strings.Contains(filePath, "/"+pattern) {
				return true
			}
			continue
		}
		if strings.Contains(pattern, "*") {
			// Glob against the full relative path; "*" does not cross "/",
			// so "*.log" matches "app.log" but not "logs/app.log".
			if ok, _ := path.Match(pattern, filePath); ok {
				return true
			}
			continue
		}
		if strings.Contains(filePath, pattern) || strings.HasSuffix(filePath, pattern) {
			return true
		}
	}

	return false
}

// parseFile reads a single gitignore-style file and returns patterns.
func parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		pattern := parseLine(scanner.Text())
		if pattern != "" {
			patterns = append(patterns, pattern)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return patterns, nil
}

// parseLine parses a single line from a gitignore file.
// Returns empty string for comments and blank lines.
func parseLine(line string) string {
	line = strings.TrimSpace(line)

	if line == "" {
		return ""
	}
	if strings.HasPrefix(line, "#") {
		return ""
	}
	// Negation patterns are not supported.
	if strings.HasPrefix(line, "!") {
		return ""
	}

	return line
}

// deduplicate removes duplicate patterns while preserving order.
func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}

	return result
}
