// Package slug derives URL-safe path segments from book titles.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the maximum length of a stored slug. Longer values are
// truncated; collisions after truncation are allowed and not deduplicated.
const MaxLength = 50

var (
	// Matches runs of whitespace and underscores (replaced with a hyphen).
	wordSeparatorRe = regexp.MustCompile(`[\s_]+`)
	// Matches anything that isn't a lowercase ASCII letter, digit, or hyphen.
	nonAlphanumericRe = regexp.MustCompile(`[^a-z0-9-]`)
	// Matches runs of hyphens.
	multipleHyphenRe = regexp.MustCompile(`-+`)

	// Decomposes accented characters and strips the combining marks, so
	// "Déjà" folds to "Deja" instead of being dropped outright.
	accentFolder = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Make converts a title to its canonical slug. It is a pure function of the
// title and idempotent: Make(Make(t)) == Make(t).
//
// Examples:
//
//	"The Great Escape"  → "the-great-escape"
//	"Déjà Vu: A Tale!"  → "deja-vu-a-tale"
//	"  multi   word "   → "multi-word"
func Make(title string) string {
	s := title
	if folded, _, err := transform.String(accentFolder, s); err == nil {
		s = folded
	}

	s = strings.ToLower(strings.TrimSpace(s))
	s = wordSeparatorRe.ReplaceAllString(s, "-")
	s = nonAlphanumericRe.ReplaceAllString(s, "")
	s = multipleHyphenRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "-")
	}

	return s
}
