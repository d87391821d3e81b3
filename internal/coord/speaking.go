package coord

import (
	"context"
	"sync"
	"sync/atomic"
)

// SpeakingWriter drives the speaking signal. Only the speech worker
// holds one.
type SpeakingWriter interface {
	SetSpeaking(active bool)
}

// SpeakingSignal reports whether an utterance is being rendered. Reads
// are lock-free; waiters block on a channel that is closed each time
// the signal drops to false.
type SpeakingSignal struct {
	active atomic.Bool
	rises  atomic.Uint64

	mu   sync.Mutex
	idle chan struct{} // closed while not speaking
}

func newSpeakingSignal() *SpeakingSignal {
	idle := make(chan struct{})
	close(idle)
	return &SpeakingSignal{idle: idle}
}

// Active reports whether something is being spoken right now.
func (s *SpeakingSignal) Active() bool { return s.active.Load() }

// Rises counts how many times the signal has gone from false to true.
// Comparing two readings tells whether anything was spoken in between,
// even if it has finished since.
func (s *SpeakingSignal) Rises() uint64 { return s.rises.Load() }

// Idle returns a channel that is closed once nothing is being spoken.
// If nothing is speaking now, the returned channel is already closed.
func (s *SpeakingSignal) Idle() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle
}

// WaitIdle blocks until the signal is false or ctx is done.
func (s *SpeakingSignal) WaitIdle(ctx context.Context) error {
	for {
		select {
		case <-s.Idle():
			// The signal may have risen again between the close and
			// this read; loop until it is observed false.
			if !s.active.Load() {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SetSpeaking implements SpeakingWriter.
func (s *SpeakingSignal) SetSpeaking(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.Load() == active {
		return
	}
	if active {
		s.idle = make(chan struct{})
		s.rises.Add(1)
		s.active.Store(true)
		return
	}
	s.active.Store(false)
	close(s.idle)
}
