// Package normalize canonicalises card names so that OCR output, corpus
// entries, and user-typed queries all compare under the same folded form.
// Folding is idempotent: Fold(Fold(s)) == Fold(s) for every input.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// faceSeparator joins the two faces of a double-faced card in canonical form.
const faceSeparator = " // "

// ligatures expands single-rune ligatures that NFKD leaves intact.
var ligatures = strings.NewReplacer(
	"æ", "ae",
	"Æ", "ae",
	"œ", "oe",
	"Œ", "oe",
	"ß", "ss",
)

// Fold returns the canonical comparison form of a card name: diacritics
// stripped, lower-cased, punctuation variants unified, whitespace collapsed.
func Fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = ligatures.Replace(folded)
	folded = strings.Map(unifyRune, folded)
	return collapseSpaces(folded)
}

// unifyRune maps the dash, apostrophe, and quote variants that appear in OCR
// output and in localized card scans onto their ASCII forms.
func unifyRune(r rune) rune {
	switch r {
	case '‐', '‑', '‒', '–', '—', '―', '−':
		return '-'
	case '‘', '’', '‚', '‛', '′', '`', '´':
		return '\''
	case '“', '”', '„', '‟', '″':
		return '"'
	}
	if unicode.IsSpace(r) {
		return ' '
	}
	return r
}

func collapseSpaces(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, " ")
}

// SplitFaces splits a double-faced card name on its face separator. ok is
// false when the name has no separator or either face would be empty.
func SplitFaces(name string) (front, back string, ok bool) {
	idx := strings.Index(name, "//")
	if idx < 0 {
		return "", "", false
	}
	front = strings.TrimSpace(name[:idx])
	back = strings.TrimSpace(name[idx+2:])
	if front == "" || back == "" {
		return "", "", false
	}
	return front, back, true
}

// JoinFaces builds the canonical double-faced name from its two faces.
func JoinFaces(front, back string) string {
	return strings.TrimSpace(front) + faceSeparator + strings.TrimSpace(back)
}
