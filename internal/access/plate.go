package access

import (
	"strings"
	"unicode"
)

// CleanPlate normalises recognised plate text: everything except letters
// and digits is dropped and the rest is upper-cased. "ab-12 3" becomes
// "AB123".
func CleanPlate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
