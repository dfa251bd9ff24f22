package sanitize

import (
	"regexp"
	"unicode/utf8"
)

// Plain email addresses (case-insensitive)
var reEmail = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)

// Common phone shapes: +xx..., (xxx) xxx-xxxx, 08xx...
// Only digits, spaces, dashes, dots, parentheses and a leading plus; at least 9 digits
// so case numbers and amounts are left alone.
var rePhone = regexp.MustCompile(`\+?\(?\d[\d\s\-.()]{7,}\d`)

// RedactPII masks emails and phone numbers in text shown to lawyers browsing the marketplace.
func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = reEmail.ReplaceAllString(s, "[redacted email]")
	s = rePhone.ReplaceAllString(s, "[redacted phone]")
	return s
}

// Summary cuts s to at most max runes, on a word boundary when possible.
func Summary(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	i := max
	for i > 0 && r[i] != ' ' {
		i--
	}
	if i <= 0 {
		i = max
	}
	return string(r[:i]) + "…"
}
