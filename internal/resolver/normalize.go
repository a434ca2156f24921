package resolver

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	trailingParens = regexp.MustCompile(`\s*[(\[][^()\[\]]*[)\]]\s*$`)

	// letters that do not decompose into a base letter plus marks
	ligatures = strings.NewReplacer(
		"ß", "ss", "æ", "ae", "Æ", "ae", "œ", "oe", "Œ", "oe",
		"ø", "o", "Ø", "o", "đ", "d", "Đ", "d", "ł", "l", "Ł", "l",
		"&", " and ",
	)
	folder = cases.Fold()
)

// Transliterate strips diacritics and expands ligatures ("Beyoncé" -> "Beyonce").
func Transliterate(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return ligatures.Replace(out)
}

// NormalizeName case-folds, transliterates and collapses punctuation and whitespace to single spaces.
func NormalizeName(s string) string {
	s = folder.String(Transliterate(s))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.Join(fields, " ")
}

// NormalizeTitle strips trailing parenthetical suffixes ("(Radio Edit)", "[Live]")
// and then applies [NormalizeName].
func NormalizeTitle(s string) string {
	for {
		stripped := trailingParens.ReplaceAllString(s, "")
		if stripped == s || strings.TrimSpace(stripped) == "" {
			break
		}
		s = stripped
	}
	return NormalizeName(s)
}

// LookupKey is the cache key of an artist/title pair.
func LookupKey(artist, title string) string {
	return NormalizeName(artist) + "|" + NormalizeTitle(title)
}
