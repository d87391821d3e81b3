package speech

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// AzureOption configures the Azure TTS client.
type AzureOption func(*AzureClient)

// WithVoice sets the TTS voice.
func WithVoice(voice string) AzureOption {
	return func(c *AzureClient) {
		c.voice = voice
	}
}

// WithSpeakingRate sets the prosody rate, e.g. "-10%". Empty keeps the
// voice default.
func WithSpeakingRate(rate string) AzureOption {
	return func(c *AzureClient) {
		c.rate = rate
	}
}

// WithHTTPTimeout sets the HTTP client timeout for TTS requests.
func WithHTTPTimeout(d time.Duration) AzureOption {
	return func(c *AzureClient) {
		c.httpClient.Timeout = d
	}
}

// AzureClient synthesizes speech through the Azure Speech REST API.
type AzureClient struct {
	subscriptionKey string
	region          string
	voice           string
	rate            string
	httpClient      *http.Client
	log             *logger.Logger
}

var _ Synthesizer = (*AzureClient)(nil)

// NewAzureClient creates an Azure TTS client with the given credentials.
func NewAzureClient(key, region string, log *logger.Logger, opts ...AzureOption) *AzureClient {
	c := &AzureClient{
		subscriptionKey: key,
		region:          region,
		voice:           DefaultVoice,
		httpClient:      &http.Client{Timeout: 20 * time.Second},
		log:             log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Voice returns the configured voice name.
func (c *AzureClient) Voice() string { return c.voice }

// Synthesize converts text to WAV bytes.
func (c *AzureClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	url := fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", c.region)
	c.log.Debug("azure tts: synthesizing %d chars with voice %s", len(text), c.voice)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(c.buildSSML(text)))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", DefaultAudioFormat)
	req.Header.Set("User-Agent", "OMNIS/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure tts request: %w: %w", domain.ErrSpeechService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("azure tts status %d: %s: %w", resp.StatusCode, body, domain.ErrSpeechService)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}
	c.log.Debug("azure tts: got %d bytes of audio", len(audio))
	return audio, nil
}

// buildSSML wraps text in SSML, escaping it so names with '&' or '<'
// do not break the document.
func (c *AzureClient) buildSSML(text string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, `<speak version='1.0' xml:lang='en-US'><voice xml:lang='en-US' name='%s'>`, c.voice)
	if c.rate != "" {
		fmt.Fprintf(&b, `<prosody rate='%s'>`, c.rate)
	}
	_ = xml.EscapeText(&b, []byte(text))
	if c.rate != "" {
		b.WriteString(`</prosody>`)
	}
	b.WriteString(`</voice></speak>`)
	return b.Bytes()
}
