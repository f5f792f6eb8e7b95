package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// CleanLabel trims a user name and collapses inner whitespace runs to one space.
func CleanLabel(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// LabelKey normalizes a name for comparison (lowercase, no diacritics, spaces for dashes),
// so "Jiří Novák" and "jiri-novak" are treated as the same user.
func LabelKey(name string) string {
	name = RemoveDiacritics(CleanLabel(name))
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return CleanLabel(name)
}
