package domain

import (
	"strings"
	"unicode"
)

// CleanName trims a spoken name and title-cases each word. Anything
// that is not a letter, space, dot or hyphen is dropped.
func CleanName(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || r == ' ' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Trim(strings.Join(words, " "), ".-")
}
