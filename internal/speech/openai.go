package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// OpenAISynth synthesizes speech with the OpenAI audio API. It backs up
// Azure in the synthesizer chain.
type OpenAISynth struct {
	client openai.Client
	model  openai.SpeechModel
	voice  openai.AudioSpeechNewParamsVoice
	log    *logger.Logger
}

var _ Synthesizer = (*OpenAISynth)(nil)

// NewOpenAISynth creates an OpenAI TTS client.
func NewOpenAISynth(apiKey string, log *logger.Logger, opts ...option.RequestOption) *OpenAISynth {
	return &OpenAISynth{
		client: openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
		model:  openai.SpeechModelTTS1,
		voice:  openai.AudioSpeechNewParamsVoiceNova,
		log:    log,
	}
}

// Voice returns the voice name.
func (s *OpenAISynth) Voice() string { return "openai-" + string(s.voice) }

// Synthesize returns 24 kHz mono WAV bytes.
func (s *OpenAISynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          s.model,
		Voice:          s.voice,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: %w: %w", domain.ErrSpeechService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai tts status %d: %w", resp.StatusCode, domain.ErrSpeechService)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading openai audio: %w", err)
	}
	s.log.Debug("openai tts: got %d bytes of audio", len(audio))
	return audio, nil
}
