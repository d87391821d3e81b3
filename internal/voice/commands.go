package voice

import (
	"strings"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/phrase"
)

// Command is a spoken control instruction.
type Command int

const (
	CommandNone Command = iota
	CommandSilence
	CommandWhoIsHere
	CommandContinue
)

func (c Command) String() string {
	switch c {
	case CommandSilence:
		return "silence"
	case CommandWhoIsHere:
		return "who-is-here"
	case CommandContinue:
		return "continue"
	default:
		return "none"
	}
}

type commandRule struct {
	phrases []string
	command Command
}

// Rules are checked in order; the first phrase found wins.
var commandRules = []commandRule{
	{[]string{"silence", "silent", "stop talking", "shut up", "hush"}, CommandSilence},
	{[]string{"who is here", "who are inside", "detect people", "guess me", "who am i"}, CommandWhoIsHere},
	{[]string{"continue", "speak again", "hello silence", "resume"}, CommandContinue},
}

// MatchCommand finds the highest-priority command spoken in tokens.
func MatchCommand(tokens []string) Command {
	for _, rule := range commandRules {
		for _, p := range rule.phrases {
			if phrase.Contains(tokens, p) {
				return rule.command
			}
		}
	}
	return CommandNone
}

// DefaultFolds maps words the recognizer hears instead of "omnis".
func DefaultFolds() map[string]string {
	return map[string]string{
		"omni's": "omnis",
		"omni":   "omnis",
		"omens":  "omnis",
		"honest": "omnis",
	}
}

// ── Registration names ───────────────────────────────────────────

var notNames = map[string]bool{
	"hello": true, "hi": true, "hey": true, "thanks": true, "thank you": true,
}

var namePrefixes = []string{"my name is ", "i am ", "i'm ", "it's ", "this is ", "call me "}

// ExtractName pulls a name out of a reply to "what is your name" and
// cleans it the way the registry stores it. It returns ok=false for empty replies, greetings, and anything with
// fewer than two letters.
func ExtractName(text string) (string, bool) {
	name := strings.TrimSpace(text)
	lower := strings.ToLower(name)
	for _, p := range namePrefixes {
		if strings.HasPrefix(lower, p) {
			name = strings.TrimSpace(name[len(p):])
			break
		}
	}
	name = strings.TrimRight(name, ".!?, ")
	norm := strings.ToLower(name)
	if name == "" || notNames[norm] || phrase.Letters(name) < 2 {
		return "", false
	}
	if name = domain.CleanName(name); name == "" {
		return "", false
	}
	return name, true
}
