// Package normalizer provides text normalization shared by the import pipeline:
// accent-insensitive folding for header matching, description cleanup, and
// detection of installment markers embedded in statement descriptions.
package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold returns s lower-cased with diacritics removed and whitespace collapsed,
// so "Descrição " and "DESCRICAO" fold to the same key.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// FoldWords folds s and splits it into words on any character that is not a
// letter or digit. "Valor (R$)" yields ["valor", "r"].
func FoldWords(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// CleanDescription trims a description and collapses internal whitespace
// while keeping its original case.
func CleanDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
