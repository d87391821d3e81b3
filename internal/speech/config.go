package speech

import "time"

// Default Azure voice.
// Full list: https://learn.microsoft.com/en-us/azure/ai-services/speech-service/language-support
const DefaultVoice = "en-IN-NeerjaNeural"

// Audio format requested from every synthesizer and expected by the player.
const DefaultAudioFormat = "riff-24khz-16bit-mono-pcm"

// Audio parameters matching the default format.
const (
	SampleRate   = 24000
	ChannelCount = 1
	BitDepth     = 16
)

// Env var names for synthesizer credentials.
const (
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
	EnvOpenAIKey         = "OPENAI_API_KEY"
)

// Request is one queued utterance.
type Request struct {
	ID       string
	Text     string
	QueuedAt time.Time
}
