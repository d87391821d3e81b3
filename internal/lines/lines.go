// Package lines centralises every fixed string the kiosk speaks.
// Edit this file to change OMNIS's personality. Keep lines short; the
// synthesizer handles inflection. Greeting templates live in the
// greeting profile instead, since they are per-school data.
package lines

import (
	"fmt"
	"strings"
)

// ── Conversation ─────────────────────────────────────────────────

// Wake is spoken when the wake word opens a conversation.
func Wake() string { return "Yes?" }

// Resumed acknowledges the continue command.
func Resumed() string { return "Ok, I am listening." }

// ── Registration ─────────────────────────────────────────────────

// AskName invites an unknown visitor to register.
func AskName() string { return "I don't think we have met. What is your name?" }

// NameRejected is spoken when the heard name is unusable.
func NameRejected() string { return "I didn't catch a name." }

// Registered confirms a new identity.
func Registered(name string) string {
	return fmt.Sprintf("Thanks %s, I will remember you.", name)
}

// RegisterFailed is spoken when the registry refuses the identity.
func RegisterFailed() string { return "Sorry, I couldn't save your name." }

// ── Who is here ──────────────────────────────────────────────────

// WhoIsHere describes the visible set: known names and a count of
// unknown faces.
func WhoIsHere(known []string, unknown int) string {
	switch {
	case len(known) == 0 && unknown == 0:
		return "I don't see anyone right now."
	case unknown == 0:
		return "I can see " + strings.Join(known, ", ") + "."
	case len(known) == 0:
		return "I can see " + unknownPeople(unknown) + "."
	default:
		return fmt.Sprintf("I can see %s and %s.", strings.Join(known, ", "), unknownPeople(unknown))
	}
}

func unknownPeople(n int) string {
	if n == 1 {
		return "1 unknown person"
	}
	return fmt.Sprintf("%d unknown people", n)
}

// ── Answers ──────────────────────────────────────────────────────

const (
	NoAPIKey       = "I need an API key to think."
	ThinkingFailed = "I'm having trouble thinking right now."
	QuotaExhausted = "My daily brain power is exhausted."
)

// Fixed returns the lines worth prefetching into the TTS cache at
// startup.
func Fixed() []string {
	return []string{Wake(), Resumed(), AskName(), NameRejected(), RegisterFailed(), ThinkingFailed}
}
