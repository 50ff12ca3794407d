package database

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

// NormalizeUsername normalizes a username for storage and lookup
// (lowercase, no diacritics, trimmed). Usernames supplied in different
// scripts of the same name resolve to the same directory entry.
func NormalizeUsername(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	return strings.TrimSpace(name)
}
