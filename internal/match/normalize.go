// Package match implements the text side of creator detection: message
// normalization, the in-scope intent gate, and the exact/fuzzy matcher tiers.
// It is intentionally small and dependency-free: all scoring is deterministic
// so the same message always produces the same result, and no logging happens
// in the library (callers decide how/what to log via the returned traces).
package match

import (
	"regexp"
	"strings"
)

var (
	// Typographic quotes and dashes are turned into spaces.
	unicodePunctRE = regexp.MustCompile("[‘’“”–—]")
	// ASCII punctuation is turned into spaces to keep token boundaries.
	// '@' survives so "@handle" mentions stay intact.
	asciiPunctRE = regexp.MustCompile(`[!?,.;:()\[\]"'-]`)
	// Runs of whitespace collapse to a single space.
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// Normalize canonicalizes raw message text: lower-case, trim, typographic
// quotes/dashes and most ASCII punctuation replaced with spaces, whitespace
// collapsed. It is a total pure function; empty input yields empty output,
// and Normalize(Normalize(x)) == Normalize(x) for all x.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	s := strings.ToLower(strings.TrimSpace(text))
	s = unicodePunctRE.ReplaceAllString(s, " ")
	s = asciiPunctRE.ReplaceAllString(s, " ")
	s = whitespaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
