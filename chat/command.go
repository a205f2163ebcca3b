package chat

import (
	"regexp"
	"strings"
)

// findCommand matches the ">find <query>" lookup command, case-insensitive.
var findCommand = regexp.MustCompile(`(?i)^>find\s+(.+)`)

// ParseFind reports whether text is a lookup command and returns the
// trimmed query when it is.
func ParseFind(text string) (query string, ok bool) {
	m := findCommand.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
