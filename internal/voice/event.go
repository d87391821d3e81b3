package voice

import "time"

// EventKind says what happened.
type EventKind int

const (
	EventState      EventKind = iota // conversation state changed
	EventHeard                       // an utterance was recognized
	EventDiscarded                   // a capture overlapped our own speech
	EventCommand                     // a control command was executed
	EventQuestion                    // a question is being answered
	EventReply                       // text was queued for speech
	EventRegistered                  // a new face was named
	EventMicError                    // the microphone could not be opened
)

// Event is published to observers for every transition and utterance.
type Event struct {
	Kind  EventKind
	State State
	Text  string
	At    time.Time
}
