package speech

import (
	"context"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// Synthesizer turns text into WAV bytes in DefaultAudioFormat.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	// Voice names the voice; it is part of every cache key.
	Voice() string
}

// Chain tries synthesizers in order. The first success wins; when all
// fail the error is a *domain.ChainError.
type Chain struct {
	synths []Synthesizer
	log    *logger.Logger
}

var _ Synthesizer = (*Chain)(nil)

// NewChain builds a fallback chain. At least one synthesizer is required.
func NewChain(log *logger.Logger, synths ...Synthesizer) (*Chain, error) {
	if len(synths) == 0 {
		return nil, domain.ErrProviderUnavailable
	}
	return &Chain{synths: synths, log: log}, nil
}

// Voice reports the primary synthesizer's voice.
func (c *Chain) Voice() string { return c.synths[0].Voice() }

// Synthesize tries each synthesizer until one succeeds.
func (c *Chain) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var errs []error
	for i, s := range c.synths {
		audio, err := s.Synthesize(ctx, text)
		if err == nil {
			if i > 0 {
				c.log.Info("tts chain: fallback %d (%s) succeeded", i, s.Voice())
			}
			return audio, nil
		}
		errs = append(errs, err)
		c.log.Warn("tts chain: synthesizer %d (%s) failed: %v", i, s.Voice(), err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, &domain.ChainError{Chain: "tts", Errors: errs}
}
