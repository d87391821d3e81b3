package answer

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hammamikhairi/omnis/internal/logger"
)

// OpenAI answers through the chat completions API. It is the fallback
// when Gemini is not configured or fails.
type OpenAI struct {
	client openai.Client
	model  string
	log    *logger.Logger
}

// NewOpenAI returns nil when key is empty.
func NewOpenAI(key, model string, log *logger.Logger) *OpenAI {
	if key == "" {
		return nil
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(key)),
		model:  model,
		log:    log,
	}
}

// Name implements Backend.
func (o *OpenAI) Name() string { return "openai" }

// Generate implements Backend.
func (o *OpenAI) Generate(ctx context.Context, question string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(question),
		},
		MaxTokens:   openai.Int(DefaultMaxTokens),
		Temperature: openai.Float(DefaultTemperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: no choices")
	}
	o.log.Debug("openai: %d tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}
