// Package tracking turns a stream of noisy plate readings into a stable set
// of unique vehicles.
//
// A Tracker is scoped to one source (a video, an image or a stream) and must
// be fed in arrival order. Records are only ever created or merged into;
// nothing is removed or split during a session.
package tracking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Unreadable is the reading produced when OCR yields no usable text.
const Unreadable = "UNREADABLE"

// DefaultThreshold is the minimum similarity ratio for two readings to be
// considered the same plate.
const DefaultThreshold = 0.75

// Normalize returns the comparable form of a raw reading: alphanumeric runes
// only, upper-cased. The Unreadable sentinel is returned unchanged.
// Upper-casing is rune for rune, so a letter whose capital form is several
// runes (ß) keeps a single-rune mapping (ß stays ß, not SS).
func Normalize(text string) string {
	if text == Unreadable {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// SelectBest picks the representative reading for a vehicle.
// Unreadable readings are ignored; the longest remaining reading wins and
// ties go to the earliest one. If nothing readable is left the sentinel is
// returned.
func SelectBest(readings []string) string {
	best, bestLen := Unreadable, -1
	for _, r := range readings {
		if r == Unreadable {
			continue
		}
		if n := utf8.RuneCountInString(r); n > bestLen {
			best, bestLen = r, n
		}
	}
	return best
}
