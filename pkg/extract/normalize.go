package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	nonASCIIPattern   = regexp.MustCompile(`[^\x00-\x7F]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Normalize decomposes text (NFKD), replaces every non-ASCII run with a space
// and collapses whitespace. Accents and non-Latin letters are lost.
func Normalize(text string) string {
	text = norm.NFKD.String(text)
	text = nonASCIIPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
