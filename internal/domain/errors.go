package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across layers.
var (
	ErrInvalidName         = errors.New("invalid name")
	ErrEmptyEncoding       = errors.New("empty face encoding")
	ErrProviderUnavailable = errors.New("no provider available")

	// Speech-to-text failures. The voice loop treats all three as
	// recoverable: it logs and listens again.
	ErrListenTimeout  = errors.New("listen timed out waiting for speech")
	ErrUnintelligible = errors.New("speech was not intelligible")
	ErrSpeechService  = errors.New("speech service error")

	// ErrNoMicrophone is returned when no capture device can be opened.
	ErrNoMicrophone = errors.New("no working microphone")
)

// ChainError aggregates errors from every provider tried in a fallback
// chain.
type ChainError struct {
	Chain  string
	Errors []error
}

func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return fmt.Sprintf("%s chain: no errors recorded", e.Chain)
	case 1:
		return fmt.Sprintf("%s chain: %v", e.Chain, e.Errors[0])
	default:
		return fmt.Sprintf("%s chain: all %d providers failed, last error: %v",
			e.Chain, len(e.Errors), e.Errors[len(e.Errors)-1])
	}
}

// Unwrap exposes every provider error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error { return e.Errors }
