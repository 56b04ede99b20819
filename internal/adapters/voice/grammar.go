package voice

import (
	"strings"
	"unicode"

	"github.com/nerrad567/garagegate/internal/door"
)

// Parse maps a transcript to a door command kind. OPEN needs the words
// "open" and "garage"; CLOSE needs "garage" and either "close" or "shut".
// OPEN is checked first, so a phrase matching both opens.
func Parse(transcript string) (door.Kind, bool) {
	words := tokenize(transcript)
	if words["garage"] && words["open"] {
		return door.KindOpen, true
	}
	if words["garage"] && (words["close"] || words["shut"]) {
		return door.KindClose, true
	}
	return "", false
}

func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	words := make(map[string]bool, len(fields))
	for _, f := range fields {
		words[strings.Trim(f, "'")] = true
	}
	return words
}
