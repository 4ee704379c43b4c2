// Package textnorm folds free-text territory and municipality names into
// stable grouping keys.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key strips accents, upper-cases and collapses whitespace so that
// "São Paulo" and "SAO  PAULO" map to the same key. Separators such as '#'
// are preserved.
func Key(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToUpper(folded)), " ")
}

// SubAreaKey joins a territory and a municipality into "territory#MUNICIPALITY".
func SubAreaKey(territoryID, municipality string) string {
	m := Key(municipality)
	if m == "" {
		return territoryID
	}
	return territoryID + "#" + m
}
