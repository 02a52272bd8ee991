package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// NormalizeSpace applies NFKC and collapses runs of whitespace.
func NormalizeSpace(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// FoldKey is the case-insensitive comparison key used for brand names and forms.
func FoldKey(s string) string {
	return strings.ToLower(NormalizeSpace(s))
}

// JoinNonEmpty joins the non-blank parts with a single space.
func JoinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
