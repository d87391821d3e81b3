// Package coord holds the state shared between the presence loop, the
// speech output worker and the voice loop.
//
// One State is created at startup and passed by reference to every loop.
// Each field has a single writer:
//
//   - the visible set is published by the presence loop;
//   - the speaking signal is driven by the speech worker through the
//     SpeakingWriter it claims at construction;
//   - the registration slot is offered by the presence loop (or any
//     external face-capture trigger) and drained by the voice loop.
package coord

import (
	"sync/atomic"

	"github.com/hammamikhairi/omnis/internal/domain"
)

// State is the explicit coordination context. The zero value is not
// usable; create one with New.
type State struct {
	visible  atomic.Pointer[domain.VisibleSet]
	speaking *SpeakingSignal
	slot     *Slot

	writerClaimed atomic.Bool
}

// New creates an empty coordination state: nobody visible, not
// speaking, no pending registration.
func New() *State {
	s := &State{
		speaking: newSpeakingSignal(),
		slot:     newSlot(),
	}
	empty := domain.VisibleSet{}
	s.visible.Store(&empty)
	return s
}

// PublishVisible replaces the visible set wholesale. Readers see either
// the previous set or this one, never a mix.
func (s *State) PublishVisible(labels []string) {
	set := make(domain.VisibleSet, len(labels))
	copy(set, labels)
	s.visible.Store(&set)
}

// Visible returns a copy of the most recently published visible set.
func (s *State) Visible() domain.VisibleSet {
	cur := *s.visible.Load()
	out := make(domain.VisibleSet, len(cur))
	copy(out, cur)
	return out
}

// Speaking exposes the read side of the speaking signal.
func (s *State) Speaking() *SpeakingSignal { return s.speaking }

// ClaimSpeakingWriter hands out the only writer for the speaking signal.
// The first call succeeds; later calls return ok=false so a second
// component cannot drive the signal by accident.
func (s *State) ClaimSpeakingWriter() (w SpeakingWriter, ok bool) {
	if !s.writerClaimed.CompareAndSwap(false, true) {
		return nil, false
	}
	return s.speaking, true
}

// Registration returns the single-slot registration mailbox.
func (s *State) Registration() *Slot { return s.slot }

// Snapshot is a point-in-time view of the shared state for display.
type Snapshot struct {
	Visible             domain.VisibleSet
	Speaking            bool
	RegistrationPending bool
}

// Snapshot captures the current state. The fields are read one after
// another, so the snapshot may straddle one update.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Visible:             s.Visible(),
		Speaking:            s.speaking.Active(),
		RegistrationPending: s.slot.Pending(),
	}
}
