package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/hammamikhairi/omnis/internal/logger"
)

// DefaultGeminiModels is tried in order for every key.
var DefaultGeminiModels = []string{
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
	"gemini-3-flash",
	"gemini-2.0-flash-exp",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
}

// Caller sends one prompt to one model with one key.
type Caller interface {
	Call(ctx context.Context, key, model, question string) (string, error)
}

// GeminiOption configures the Gemini backend.
type GeminiOption func(*Gemini)

// WithGeminiModels overrides the model list.
func WithGeminiModels(models ...string) GeminiOption {
	return func(g *Gemini) {
		if len(models) > 0 {
			g.models = models
		}
	}
}

// WithCaller replaces the genai transport.
func WithCaller(c Caller) GeminiOption {
	return func(g *Gemini) { g.caller = c }
}

// Gemini rotates through API keys and models. Within one key, a generic
// failure moves on to the next model; a quota, auth or not-found failure
// abandons the key and moves to the next one. The current key persists
// across calls.
type Gemini struct {
	keys   []string
	models []string
	caller Caller
	log    *logger.Logger

	mu  sync.Mutex
	cur int
}

// NewGemini creates the backend. Duplicate and blank keys are dropped.
// It returns nil when no key remains, so the chain skips it.
func NewGemini(keys []string, log *logger.Logger, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		keys:   dedupe(keys),
		models: DefaultGeminiModels,
		log:    log,
	}
	if len(g.keys) == 0 {
		return nil
	}
	g.caller = newGenaiCaller()
	for _, o := range opts {
		o(g)
	}
	log.Info("gemini: %d key(s), %d model(s)", len(g.keys), len(g.models))
	return g
}

// Name implements Backend.
func (g *Gemini) Name() string { return "gemini" }

// Generate implements Backend.
func (g *Gemini) Generate(ctx context.Context, question string) (string, error) {
	g.mu.Lock()
	start := g.cur
	g.mu.Unlock()

	for tried := 0; tried < len(g.keys); tried++ {
		idx := (start + tried) % len(g.keys)
		text, rotate, err := g.tryKey(ctx, idx, question)
		if err == nil {
			g.setCurrent(idx)
			return text, nil
		}
		if !rotate {
			g.setCurrent(idx)
			return "", err
		}
		g.log.Warn("gemini: key #%d failed (quota/auth/404), rotating", idx+1)
	}
	g.setCurrent((start + len(g.keys)) % len(g.keys))
	return "", ErrQuotaExhausted
}

// tryKey walks the model list with one key. rotate is true when the key
// itself should be abandoned.
func (g *Gemini) tryKey(ctx context.Context, idx int, question string) (text string, rotate bool, err error) {
	var last error
	for _, model := range g.models {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		text, err := g.caller.Call(ctx, g.keys[idx], model, question)
		if err == nil && strings.TrimSpace(text) != "" {
			g.log.Debug("gemini: answered by %s with key #%d", model, idx+1)
			return text, false, nil
		}
		if err == nil {
			err = fmt.Errorf("%s: empty reply", model)
		}
		if keyFailure(err) {
			return "", true, err
		}
		g.log.Debug("gemini: %s failed: %v", model, err)
		last = err
	}
	return "", false, fmt.Errorf("gemini: every model failed: %w", last)
}

func (g *Gemini) setCurrent(idx int) {
	g.mu.Lock()
	g.cur = idx
	g.mu.Unlock()
}

// KeyStatus is the result of probing one key.
type KeyStatus struct {
	Index int
	Reply string
	Err   error
}

// CheckKeys sends a trivial prompt with every key against model and
// reports what each one returned.
func (g *Gemini) CheckKeys(ctx context.Context, model string) []KeyStatus {
	out := make([]KeyStatus, 0, len(g.keys))
	for i, key := range g.keys {
		reply, err := g.caller.Call(ctx, key, model, "Say 'Key Working'")
		out = append(out, KeyStatus{Index: i + 1, Reply: strings.TrimSpace(reply), Err: err})
	}
	return out
}

// keyFailure reports whether err means the key (rather than the model
// call) is unusable: rate limits, exhausted quota, auth, or a model not
// offered for this key.
func keyFailure(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403, 404, 429:
			return true
		}
	}
	s := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "quota", "limit", "resource", "404", "not found"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	var out []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// ── genai transport ──────────────────────────────────────────────

// genaiCaller keeps one client per key.
type genaiCaller struct {
	mu      sync.Mutex
	clients map[string]*genai.Client
}

func newGenaiCaller() *genaiCaller {
	return &genaiCaller{clients: make(map[string]*genai.Client)}
}

func (c *genaiCaller) client(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[key]; ok {
		return cl, nil
	}
	cl, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: client: %w", err)
	}
	c.clients[key] = cl
	return cl, nil
}

func (c *genaiCaller) Call(ctx context.Context, key, model, question string) (string, error) {
	cl, err := c.client(ctx, key)
	if err != nil {
		return "", err
	}
	temp := float32(DefaultTemperature)
	resp, err := cl.Models.GenerateContent(ctx, model, genai.Text(question), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(SystemPrompt)}},
		MaxOutputTokens:   DefaultMaxTokens,
		Temperature:       &temp,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
