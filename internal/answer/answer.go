// Package answer produces generative replies to visitor questions. A
// Chain tries each configured Backend in order and always returns
// something speakable.
package answer

import (
	"context"
	"errors"
	"strings"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/lines"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// SystemPrompt sets the persona for every backend.
const SystemPrompt = "You are OMNIS, a friendly school robot from MGM Model School. " +
	"Keep answers short (2-3 sentences). Be polite and helpful. " +
	"Ignore markdown. Do not use asterisks or bullet points."

// Generation defaults shared by the backends.
const (
	DefaultMaxTokens   = 300
	DefaultTemperature = 0.7
)

// ErrQuotaExhausted is returned by a backend when every credential it
// holds has run out of quota.
var ErrQuotaExhausted = errors.New("quota exhausted on every key")

// Backend is one generative provider.
type Backend interface {
	Name() string
	Generate(ctx context.Context, question string) (string, error)
}

var _ domain.Answerer = (*Chain)(nil)

// Chain is a fallback list of backends.
type Chain struct {
	backends []Backend
	log      *logger.Logger
}

// NewChain creates a chain. Nil entries are skipped.
func NewChain(log *logger.Logger, backends ...Backend) *Chain {
	c := &Chain{log: log}
	for _, b := range backends {
		if b != nil {
			c.backends = append(c.backends, b)
		}
	}
	return c
}

// Len returns the number of configured backends.
func (c *Chain) Len() int { return len(c.backends) }

// Chat implements domain.Answerer. It never fails: when no backend can
// answer it returns one of the canned apologies.
func (c *Chain) Chat(ctx context.Context, question string) string {
	if len(c.backends) == 0 {
		return lines.NoAPIKey
	}

	errs := make([]error, 0, len(c.backends))
	for _, b := range c.backends {
		text, err := b.Generate(ctx, question)
		if err == nil {
			if text = Clean(text); text != "" {
				return text
			}
			err = errors.New("empty reply")
		}
		c.log.Warn("answer: %s failed: %v", b.Name(), err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}

	chainErr := &domain.ChainError{Chain: "answer", Errors: errs}
	c.log.Error("answer: %v", chainErr)
	if allQuota(errs) {
		return lines.QuotaExhausted
	}
	return lines.ThinkingFailed
}

func allQuota(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !errors.Is(err, ErrQuotaExhausted) {
			return false
		}
	}
	return true
}

// Clean strips the markdown emphasis and heading marks models add even
// when told not to, and trims the result.
func Clean(text string) string {
	text = strings.NewReplacer("*", "", "#", "").Replace(text)
	return strings.TrimSpace(text)
}
