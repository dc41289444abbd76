package normalization

import (
	"strings"
)

func ParseInputString(input string) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	return normalized
}

// TrimInputString keeps case but strips surrounding whitespace. Names and
// titles go through here, emails and slugs through ParseInputString.
func TrimInputString(input string) string {
	return strings.TrimSpace(input)
}

func ParseSlug(input string) string {
	s := ParseInputString(input)
	s = strings.ReplaceAll(s, " ", "-")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}
