package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hammamikhairi/omnis/internal/coord"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// fakeSynth returns the text itself as "audio".
type fakeSynth struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeSynth) Voice() string { return "fake" }

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.fail[text] {
		return nil, errors.New("boom")
	}
	return []byte(text), nil
}

func (f *fakeSynth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakePlayer records played clips. When block is set, Play waits until
// released or stopped.
type fakePlayer struct {
	mu      sync.Mutex
	played  []string
	block   bool
	release chan struct{}
	started chan string
	stops   int
	// speakingDuringPlay records the signal as seen from inside Play.
	signal             *coord.SpeakingSignal
	speakingDuringPlay []bool
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{release: make(chan struct{}), started: make(chan string, 16)}
}

func (p *fakePlayer) Play(ctx context.Context, wav []byte) error {
	p.mu.Lock()
	if p.signal != nil {
		p.speakingDuringPlay = append(p.speakingDuringPlay, p.signal.Active())
	}
	block := p.block
	p.mu.Unlock()

	p.started <- string(wav)
	if block {
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	p.played = append(p.played, string(wav))
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func (p *fakePlayer) playedClips() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func waitStarted(t *testing.T, p *fakePlayer) string {
	t.Helper()
	select {
	case s := <-p.started:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("player never started")
		return ""
	}
}

func TestMouthSpeaksInOrder(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	synth := &fakeSynth{}
	player := newFakePlayer()
	m := NewMouth(synth, player, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Say("one")
	m.Say("two")
	m.Say("three")
	m.Start(ctx)

	waitCtx, done := context.WithTimeout(ctx, 2*time.Second)
	defer done()
	if err := m.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got := player.playedClips()
	want := []string{"one", "two", "three"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("played %v, want %v", got, want)
	}
	if m.LastSpoken() != "three" {
		t.Fatalf("last spoken = %q", m.LastSpoken())
	}
}

func TestMouthIgnoresBlankText(t *testing.T) {
	m := NewMouth(&fakeSynth{}, newFakePlayer(), logger.New(logger.LevelOff, nil))
	m.Say("   ")
	if m.QueueLen() != 0 {
		t.Fatal("blank text should not be queued")
	}
}

func TestMouthDrivesSpeakingSignal(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	state := coord.New()
	w, _ := state.ClaimSpeakingWriter()

	player := newFakePlayer()
	player.signal = state.Speaking()
	m := NewMouth(&fakeSynth{}, player, log, WithSpeakingWriter(w))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.Say("hello")
	waitCtx, done := context.WithTimeout(ctx, 2*time.Second)
	defer done()
	if err := m.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	player.mu.Lock()
	during := player.speakingDuringPlay
	player.mu.Unlock()
	if len(during) != 1 || !during[0] {
		t.Fatalf("signal during play = %v, want [true]", during)
	}
	if state.Speaking().Active() {
		t.Fatal("signal should drop after playback")
	}
}

func TestMouthInterruptFlushesQueue(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	player := newFakePlayer()
	player.block = true
	m := NewMouth(&fakeSynth{}, player, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.Say("first")
	if got := waitStarted(t, player); got != "first" {
		t.Fatalf("started %q", got)
	}
	m.Say("second")
	m.Say("third")

	m.Interrupt()
	if m.QueueLen() != 0 {
		t.Fatalf("queue len after interrupt = %d", m.QueueLen())
	}

	waitCtx, done := context.WithTimeout(ctx, 2*time.Second)
	defer done()
	if err := m.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := player.playedClips(); len(got) != 0 {
		t.Fatalf("nothing should have finished playing, got %v", got)
	}
	player.mu.Lock()
	stops := player.stops
	player.mu.Unlock()
	if stops == 0 {
		t.Fatal("player was not stopped")
	}

	// The queue keeps working after a flush.
	player.mu.Lock()
	player.block = false
	player.mu.Unlock()
	m.Say("after")
	if err := m.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := player.playedClips(); len(got) != 1 || got[0] != "after" {
		t.Fatalf("played %v, want [after]", got)
	}
}

func TestMouthUsesCache(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	synth := &fakeSynth{}
	m := NewMouth(synth, newFakePlayer(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	for i := 0; i < 3; i++ {
		m.Say("Yes?")
	}
	waitCtx, done := context.WithTimeout(ctx, 2*time.Second)
	defer done()
	if err := m.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if n := synth.callCount(); n != 1 {
		t.Fatalf("synthesized %d times, want 1", n)
	}
}

func TestMouthChunksLongTextInOrder(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	player := newFakePlayer()
	synth := &fakeSynth{fail: map[string]bool{"Second sentence here.": true}}
	m := NewMouth(synth, player, log, WithChunkSize(25))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.Say("First sentence here. Second sentence here. Third sentence here.")
	waitCtx, done := context.WithTimeout(ctx, 2*time.Second)
	defer done()
	if err := m.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got := player.playedClips()
	want := []string{"First sentence here.", "Third sentence here."}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("played %v, want %v", got, want)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Hi! How are you? Fine.")
	want := []string{"Hi! ", "How are you? ", "Fine."}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q", got)
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewAudioCache("v", logger.New(logger.LevelOff, nil), WithCacheEntries(2))
	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Put("c", []byte("3"))
	if c.Len() != 2 {
		t.Fatalf("len = %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("oldest entry should be evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("newest entry missing")
	}
}

func TestCacheDiskTier(t *testing.T) {
	dir := t.TempDir()
	log := logger.New(logger.LevelOff, nil)

	w := NewAudioCache("v", log, WithCacheDisk(dir, true))
	w.Put("hello", []byte("wav"))

	r := NewAudioCache("v", log, WithCacheDisk(dir, false))
	if data, ok := r.Get("hello"); !ok || string(data) != "wav" {
		t.Fatalf("disk read = %q, %v", data, ok)
	}
	other := NewAudioCache("other-voice", log, WithCacheDisk(dir, false))
	if other.Has("hello") {
		t.Fatal("voice must be part of the key")
	}
}

func TestChainFallsBack(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	bad := &fakeSynth{fail: map[string]bool{"x": true}}
	good := &fakeSynth{}
	c, err := NewChain(log, bad, good)
	if err != nil {
		t.Fatal(err)
	}
	audio, err := c.Synthesize(context.Background(), "x")
	if err != nil || string(audio) != "x" {
		t.Fatalf("chain = %q, %v", audio, err)
	}

	c, _ = NewChain(log, bad)
	if _, err := c.Synthesize(context.Background(), "x"); err == nil {
		t.Fatal("expected chain error")
	}
	if _, err := NewChain(log); err == nil {
		t.Fatal("empty chain should fail")
	}
}

func TestExtractPCM(t *testing.T) {
	wav := make([]byte, 44+4)
	copy(wav[0:], "RIFF")
	copy(wav[8:], "WAVEfmt ")
	wav[16] = 16 // fmt chunk size
	copy(wav[36:], "data")
	wav[40] = 4
	copy(wav[44:], []byte{1, 2, 3, 4})

	pcm, err := extractPCM(wav)
	if err != nil {
		t.Fatal(err)
	}
	if len(pcm) != 4 || pcm[0] != 1 {
		t.Fatalf("pcm = %v", pcm)
	}
	if _, err := extractPCM([]byte("nope")); err == nil {
		t.Fatal("expected error for short data")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"hello world", 8, "hello..."},
		{"ééééé", 8, "éé..."},
		{"Jürgen Müller", 6, "Jü..."},
		{"Jürgen", 5, "J..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) || len(got) > tt.max {
			t.Errorf("truncate(%q, %d) = %q is not a valid cut", tt.in, tt.max, got)
		}
	}
}
