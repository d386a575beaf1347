// Package sanitize derives filesystem-safe names for downloaded documents.
//
// Platform titles arrive as arbitrary unicode text. Both the Markdown filename
// and the per-document asset folder are derived from the same sanitized form,
// so the rules here decide where every byte of a crawl ends up on disk.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// DateUnknown is the sentinel used when no publish date could be extracted.
const DateUnknown = "Unknown"

var invalidChars = regexp.MustCompile(`[^-\p{L}\p{N}_]`)

// Filename converts an arbitrary title into a filesystem-safe identifier.
// A leading rune that is not a letter is dropped, whitespace becomes
// underscores, and anything outside letters, digits, hyphen and underscore
// is stripped.
func Filename(s string) string {
	runes := []rune(s)
	if len(runes) > 0 && !unicode.IsLetter(runes[0]) {
		runes = runes[1:]
	}
	cleaned := strings.TrimSpace(string(runes))
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	return invalidChars.ReplaceAllString(cleaned, "")
}

// Key derives the document key used as both the Markdown filename stem and
// the asset subfolder name: sanitized title plus author, prefixed with the
// publish date in parentheses when one is known.
//
// Differently-titled articles can still collide after sanitization; that is
// an accepted risk, collisions are not deduplicated.
func Key(title, author, date string) string {
	name := Filename(title)
	if date != "" && date != DateUnknown {
		return "(" + date + ")" + name + "_" + author
	}
	return name + "_" + author
}
