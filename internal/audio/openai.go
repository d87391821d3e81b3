package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// OpenAIRecognizer transcribes phrases with the OpenAI audio API.
type OpenAIRecognizer struct {
	client openai.Client
	model  openai.AudioModel
	log    *logger.Logger
}

var _ domain.Recognizer = (*OpenAIRecognizer)(nil)

// NewOpenAIRecognizer creates a cloud recognizer.
func NewOpenAIRecognizer(apiKey string, log *logger.Logger, opts ...option.RequestOption) *OpenAIRecognizer {
	return &OpenAIRecognizer{
		client: openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
		model:  openai.AudioModelWhisper1,
		log:    log,
	}
}

// Recognize uploads the phrase as WAV.
func (r *OpenAIRecognizer) Recognize(ctx context.Context, a *domain.Audio) (string, error) {
	if a == nil || len(a.PCM) == 0 {
		return "", domain.ErrUnintelligible
	}
	resp, err := r.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     openai.File(bytes.NewReader(EncodeWAV(a)), "phrase.wav", "audio/wav"),
		Model:    r.model,
		Language: openai.String("en"),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("openai transcription: %w: %w", domain.ErrSpeechService, err)
	}
	text := CleanTranscript(resp.Text)
	r.log.Debug("openai stt: %s of audio -> %q", a.Duration(), text)
	if text == "" {
		return "", domain.ErrUnintelligible
	}
	return text, nil
}

// Chain tries recognizers in order. An unintelligible result is final:
// the audio was heard fine, so a second opinion is not requested. Only
// service errors fall through to the next recognizer.
type Chain struct {
	recognizers []domain.Recognizer
	log         *logger.Logger
}

var _ domain.Recognizer = (*Chain)(nil)

// NewChain builds a recognizer chain. At least one is required.
func NewChain(log *logger.Logger, recognizers ...domain.Recognizer) (*Chain, error) {
	if len(recognizers) == 0 {
		return nil, domain.ErrProviderUnavailable
	}
	return &Chain{recognizers: recognizers, log: log}, nil
}

// Recognize returns the first transcript produced.
func (c *Chain) Recognize(ctx context.Context, a *domain.Audio) (string, error) {
	var errs []error
	for i, r := range c.recognizers {
		text, err := r.Recognize(ctx, a)
		if err == nil {
			if i > 0 {
				c.log.Info("stt chain: fallback %d succeeded", i)
			}
			return text, nil
		}
		if errors.Is(err, domain.ErrUnintelligible) || ctx.Err() != nil {
			return "", err
		}
		errs = append(errs, err)
		c.log.Warn("stt chain: recognizer %d failed: %v", i, err)
	}
	return "", &domain.ChainError{Chain: "stt", Errors: errs}
}
