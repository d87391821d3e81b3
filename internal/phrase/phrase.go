// Package phrase tokenizes transcripts and matches phrases on word
// boundaries, so "omnibus" never matches "omnis".
package phrase

import (
	"strings"
	"unicode"
)

// Tokenize lowercases s and splits it into words. Punctuation at either
// end of a word is dropped; an inner apostrophe is kept ("omni's").
func Tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Index returns the position of the first occurrence of want as a run
// of whole tokens in tokens, or -1.
func Index(tokens, want []string) int {
	if len(want) == 0 || len(want) > len(tokens) {
		return -1
	}
outer:
	for i := 0; i+len(want) <= len(tokens); i++ {
		for j, w := range want {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return i
	}
	return -1
}

// Contains reports whether the phrase p occurs in tokens.
func Contains(tokens []string, p string) bool {
	return Index(tokens, Tokenize(p)) >= 0
}

// Fold replaces each token that has an entry in folds with its
// canonical form.
func Fold(tokens []string, folds map[string]string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		if c, ok := folds[t]; ok {
			out[i] = c
		} else {
			out[i] = t
		}
	}
	return out
}

// Remove drops every token in set.
func Remove(tokens []string, set map[string]bool) []string {
	var out []string
	for _, t := range tokens {
		if !set[t] {
			out = append(out, t)
		}
	}
	return out
}

// Letters counts alphabetic characters in s.
func Letters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
