package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SanitizeTitle folds a title to lowercase ASCII alphanumerics. Accents are
// stripped first ("Café" -> "cafe"); every run of other characters becomes a
// single underscore. Returns "" when nothing alphanumeric remains.
func SanitizeTitle(title string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), title)
	if err != nil {
		folded = title
	}
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

var titleCaser = cases.Title(language.Und)

// Label renders identifiers like "ref-image-gen" as "Ref Image Gen".
func Label(value string) string {
	value = strings.NewReplacer("-", " ", "_", " ").Replace(strings.TrimSpace(value))
	return titleCaser.String(value)
}
