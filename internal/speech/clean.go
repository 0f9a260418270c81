// Package speech turns assistant replies into audio and dictation into
// input text. Both directions depend on platform tools and may be absent.
package speech

import (
	"regexp"
	"strings"
)

const DefaultMaxChars = 500

var headingMarker = regexp.MustCompile(`#+ `)

// CleanText strips markdown emphasis and heading markers so they are not
// read aloud, then caps the result at max runes. max <= 0 uses
// DefaultMaxChars.
func CleanText(text string, max int) string {
	if max <= 0 {
		max = DefaultMaxChars
	}
	out := strings.ReplaceAll(text, "**", "")
	out = strings.ReplaceAll(out, "*", "")
	out = headingMarker.ReplaceAllString(out, "")

	if runes := []rune(out); len(runes) > max {
		out = string(runes[:max])
	}
	return out
}
