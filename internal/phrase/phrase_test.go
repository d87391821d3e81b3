package phrase

import (
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := map[string]string{
		"Omnis, who is here?":   "omnis|who|is|here",
		"  Omni's  there!  ":    "omni's|there",
		"... --- ":              "",
		"Hello, OMNIS. Resume.": "hello|omnis|resume",
	}
	for in, want := range tests {
		if got := strings.Join(Tokenize(in), "|"); got != want {
			t.Errorf("Tokenize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContainsOnWordBoundaries(t *testing.T) {
	tokens := Tokenize("the omnibus system stops talking")
	if Contains(tokens, "omnis") {
		t.Error("omnibus must not match omnis")
	}
	if !Contains(tokens, "stops talking") {
		t.Error("two-word phrase not found")
	}
	if Contains(tokens, "stop talking") {
		t.Error("stops must not match stop")
	}
	if Contains(tokens, "") {
		t.Error("empty phrase must not match")
	}
}

func TestFoldAndRemove(t *testing.T) {
	folds := map[string]string{"omni's": "omnis", "omens": "omnis"}
	got := Fold(Tokenize("omens say omni's name"), folds)
	if strings.Join(got, " ") != "omnis say omnis name" {
		t.Fatalf("fold = %v", got)
	}
	rest := Remove(got, map[string]bool{"omnis": true})
	if strings.Join(rest, " ") != "say name" {
		t.Fatalf("remove = %v", rest)
	}
}

func TestLetters(t *testing.T) {
	if Letters("a1 b!") != 2 {
		t.Fatal("Letters miscounted")
	}
}
