package domain

import (
	"context"
	"time"
)

// Camera yields frames. Read returns ok=false when no frame could be
// captured this time around; callers substitute a placeholder.
type Camera interface {
	Read() (Frame, bool)
	Close() error
}

// FaceVision finds, encodes and compares faces. Implementations wrap a
// vision backend; the kiosk never inspects pixels itself.
type FaceVision interface {
	DetectFaces(frame Frame) ([]FaceBox, error)
	EncodeFaces(frame Frame, boxes []FaceBox) ([]Encoding, error)
	Compare(known []Encoding, enc Encoding, tolerance float64) (matches []bool, distances []float64)
}

// IdentityRegistry stores known faces. Load is called at startup and
// after every registration; Register appends one identity.
type IdentityRegistry interface {
	Load(ctx context.Context) (encodings []Encoding, labels []string, err error)
	Register(ctx context.Context, name string, enc Encoding, face Frame) bool
}

// Speaker queues text for spoken output.
type Speaker interface {
	// Say appends text to the output queue. Non-blocking.
	Say(text string)
	// Interrupt stops the current utterance and drops everything queued.
	Interrupt()
}

// Audio is a captured utterance: mono signed 16-bit PCM.
type Audio struct {
	PCM        []int16
	SampleRate int
}

// Duration returns the length of the captured audio.
func (a *Audio) Duration() time.Duration {
	if a == nil || a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(a.PCM)) * time.Second / time.Duration(a.SampleRate)
}

// Microphone hands out an open capture source. Open fails with
// ErrNoMicrophone (possibly wrapped) when no device is usable.
type Microphone interface {
	Open(ctx context.Context) (AudioSource, error)
}

// AudioSource is an open capture stream.
type AudioSource interface {
	// Calibrate samples ambient noise for d and returns the energy
	// level speech has to exceed.
	Calibrate(ctx context.Context, d time.Duration) (float64, error)
	// Listen waits up to timeout for speech louder than threshold, then
	// records until a pause or phraseLimit. Fails with ErrListenTimeout
	// when nobody speaks.
	Listen(ctx context.Context, threshold float64, timeout, phraseLimit time.Duration) (*Audio, error)
	Close() error
}

// Recognizer turns captured audio into text. Fails with
// ErrUnintelligible or ErrSpeechService (possibly wrapped).
type Recognizer interface {
	Recognize(ctx context.Context, audio *Audio) (string, error)
}

// KnowledgeSource answers questions from local data. ok=false means it
// has nothing to say.
type KnowledgeSource interface {
	Answer(ctx context.Context, question string) (answer string, ok bool)
}

// Answerer produces a generative answer. It never fails: on total
// backend failure it returns a short canned apology.
type Answerer interface {
	Chat(ctx context.Context, question string) string
}
