package speech

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hammamikhairi/omnis/internal/coord"
	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// MouthOption configures the Mouth.
type MouthOption func(*Mouth)

// WithChunkSize sets the approximate max character count per TTS chunk.
// Longer text is split at sentence boundaries and synthesized in
// parallel so playback doesn't stall between sentences.
func WithChunkSize(n int) MouthOption {
	return func(m *Mouth) {
		m.chunkSize = n
	}
}

// WithCache replaces the default in-memory audio cache.
func WithCache(c *AudioCache) MouthOption {
	return func(m *Mouth) {
		m.cache = c
	}
}

// WithSpeakingWriter makes the Mouth drive the shared speaking signal.
func WithSpeakingWriter(w coord.SpeakingWriter) MouthOption {
	return func(m *Mouth) {
		m.speaking = w
	}
}

// Mouth is the speech output queue. Utterances are spoken one at a time
// in the order they were queued: dequeue, raise the speaking signal,
// synthesize (cache first), play, lower the signal.
type Mouth struct {
	synth    Synthesizer
	player   AudioPlayer
	log      *logger.Logger
	cache    *AudioCache
	speaking coord.SpeakingWriter

	chunkSize int
	notify    chan struct{}

	mu         sync.Mutex
	queue      []Request
	busy       bool
	cancelItem context.CancelFunc // cancels the utterance being spoken
	settled    chan struct{}      // closed while the queue is empty and idle
	lastSpoken string
}

var _ domain.Speaker = (*Mouth)(nil)

// NewMouth creates a speech queue over a synthesizer and a player.
func NewMouth(synth Synthesizer, player AudioPlayer, log *logger.Logger, opts ...MouthOption) *Mouth {
	settled := make(chan struct{})
	close(settled)
	m := &Mouth{
		synth:     synth,
		player:    player,
		log:       log,
		chunkSize: 200,
		notify:    make(chan struct{}, 1),
		settled:   settled,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = NewAudioCache(synth.Voice(), log)
	}
	return m
}

// Say appends text to the queue. Non-blocking.
func (m *Mouth) Say(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	req := Request{ID: uuid.NewString(), Text: text, QueuedAt: time.Now()}

	m.mu.Lock()
	m.queue = append(m.queue, req)
	qLen := len(m.queue)
	select {
	case <-m.settled:
		m.settled = make(chan struct{})
	default:
	}
	m.mu.Unlock()

	m.log.Debug("mouth: queued %s (queue_len=%d): %s", req.ID[:8], qLen, truncate(text, 60))

	select {
	case m.notify <- struct{}{}:
	default: // already signaled
	}
}

// Interrupt drops every queued utterance and cuts off the one being
// spoken. The queue is truncated under the same lock the consumer
// dequeues with, so nothing queued before the call is spoken after it.
func (m *Mouth) Interrupt() {
	m.mu.Lock()
	dropped := len(m.queue)
	m.queue = nil
	cancel := m.cancelItem
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.player.Stop()
	m.log.Debug("mouth: interrupted, dropped %d queued", dropped)
}

// IsSpeaking reports whether an utterance is being synthesized or played.
func (m *Mouth) IsSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// QueueLen returns the number of utterances waiting.
func (m *Mouth) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// LastSpoken returns the most recently spoken text.
func (m *Mouth) LastSpoken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSpoken
}

// Wait blocks until the queue is empty and nothing is playing.
func (m *Mouth) Wait(ctx context.Context) error {
	for {
		m.mu.Lock()
		settled := m.settled
		m.mu.Unlock()

		select {
		case <-settled:
			if !m.IsSpeaking() && m.QueueLen() == 0 {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Start begins the consumer goroutine. Non-blocking.
func (m *Mouth) Start(ctx context.Context) {
	go m.run(ctx)
	m.log.Info("mouth started (voice=%s)", m.synth.Voice())
}

// Run consumes the queue until ctx is cancelled.
func (m *Mouth) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.Interrupt()
			m.log.Info("mouth stopped")
			return
		case <-m.notify:
			m.drain(ctx)
		}
	}
}

// drain speaks queued items until the queue is empty.
func (m *Mouth) drain(ctx context.Context) {
	for ctx.Err() == nil {
		item, itemCtx, ok := m.dequeue(ctx)
		if !ok {
			return
		}

		m.setSpeaking(true)
		m.process(itemCtx, item)
		m.setSpeaking(false)

		m.mu.Lock()
		m.busy = false
		m.cancelItem()
		m.cancelItem = nil
		if itemCtx.Err() == nil {
			m.lastSpoken = item.Text
		}
		m.mu.Unlock()
	}
}

// dequeue pops the oldest item and marks the Mouth busy in the same
// critical section, so Interrupt either sees the item queued or sees it
// as the current utterance. When the queue is empty it settles instead.
func (m *Mouth) dequeue(ctx context.Context) (Request, context.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		select {
		case <-m.settled:
		default:
			close(m.settled)
		}
		return Request{}, nil, false
	}

	item := m.queue[0]
	m.queue = m.queue[1:]
	itemCtx, cancel := context.WithCancel(ctx)
	m.cancelItem = cancel
	m.busy = true
	return item, itemCtx, true
}

func (m *Mouth) setSpeaking(active bool) {
	if m.speaking != nil {
		m.speaking.SetSpeaking(active)
	}
}

// process synthesizes and plays one utterance, using chunked parallel
// synthesis for long text.
func (m *Mouth) process(ctx context.Context, req Request) {
	m.log.Debug("mouth: speaking %s (waited=%s): %s",
		req.ID[:8], time.Since(req.QueuedAt).Round(time.Millisecond), truncate(req.Text, 60))

	chunks := m.splitChunks(req.Text)
	if len(chunks) <= 1 {
		audio, err := m.synthesize(ctx, req.Text)
		if err != nil {
			m.log.Error("mouth: synthesis failed: %v", err)
			return
		}
		m.play(ctx, audio)
		return
	}

	m.log.Debug("mouth: split into %d chunks for parallel synthesis", len(chunks))

	type result struct {
		idx   int
		audio []byte
		err   error
	}
	results := make(chan result, len(chunks))
	for i, chunk := range chunks {
		go func(idx int, text string) {
			audio, err := m.synthesize(ctx, text)
			results <- result{idx: idx, audio: audio, err: err}
		}(i, chunk)
	}

	slots := make([][]byte, len(chunks))
	for range chunks {
		r := <-results
		if r.err != nil {
			m.log.Error("mouth: chunk %d synthesis failed: %v", r.idx, r.err)
			continue
		}
		slots[r.idx] = r.audio
	}

	for i, audio := range slots {
		if ctx.Err() != nil {
			m.log.Debug("mouth: aborting chunk playback")
			return
		}
		if audio == nil {
			m.log.Debug("mouth: skipping chunk %d (synthesis failed)", i)
			continue
		}
		m.play(ctx, audio)
	}
}

func (m *Mouth) play(ctx context.Context, audio []byte) {
	if ctx.Err() != nil {
		return
	}
	if err := m.player.Play(ctx, audio); err != nil && ctx.Err() == nil {
		m.log.Error("mouth: playback failed: %v", err)
	}
}

// synthesize consults the cache before calling the synthesizer.
func (m *Mouth) synthesize(ctx context.Context, text string) ([]byte, error) {
	if audio, ok := m.cache.Get(text); ok {
		return audio, nil
	}
	audio, err := m.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	m.cache.Put(text, audio)
	return audio, nil
}

// Prefetch synthesizes texts in the background so their first use
// plays without a round trip. Already cached texts are skipped.
func (m *Mouth) Prefetch(ctx context.Context, texts ...string) {
	for _, text := range texts {
		for _, chunk := range m.splitChunks(text) {
			if chunk == "" || m.cache.Has(chunk) {
				continue
			}
			go func(t string) {
				audio, err := m.synth.Synthesize(ctx, t)
				if err != nil {
					m.log.Warn("prefetch: %q: %v", truncate(t, 40), err)
					return
				}
				m.cache.Put(t, audio)
			}(chunk)
		}
	}
}

// Cache returns the audio cache. Used for stats.
func (m *Mouth) Cache() *AudioCache { return m.cache }

// splitChunks breaks text into sentence-boundary chunks of roughly
// chunkSize characters.
func (m *Mouth) splitChunks(text string) []string {
	if m.chunkSize <= 0 || len(text) <= m.chunkSize {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if c := strings.TrimSpace(current.String()); c != "" {
			chunks = append(chunks, c)
		}
		current.Reset()
	}
	for _, s := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+len(s) > m.chunkSize {
			flush()
		}
		current.WriteString(s)
	}
	flush()
	return chunks
}

// splitSentences splits at . ! ? keeping the punctuation and trailing
// whitespace with the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if r := runes[i]; r == '.' || r == '!' || r == '?' {
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
				current.WriteRune(runes[i])
			}
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

// truncate shortens a string for logging to at most maxLen bytes,
// cutting on a rune boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
