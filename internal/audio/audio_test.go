package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
)

const testRate = 1000 // 1 sample per millisecond keeps the math readable

// frame returns n samples of constant amplitude.
func frame(n int, amp int16) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = amp
	}
	return f
}

// feed queues frames on a buffered channel.
func feed(frames ...[]int16) <-chan []int16 {
	ch := make(chan []int16, len(frames))
	for _, f := range frames {
		ch <- f
	}
	return ch
}

func TestRMS(t *testing.T) {
	if got := RMS(frame(10, 300)); got != 300 {
		t.Fatalf("RMS = %f", got)
	}
	if RMS(nil) != 0 {
		t.Fatal("empty frame should have zero energy")
	}
}

func TestCalibrate(t *testing.T) {
	ch := feed(frame(100, 200), frame(100, 200))
	got, err := calibrate(context.Background(), ch, testRate, 200*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if got != 300 {
		t.Fatalf("threshold = %v, want 300", got)
	}
}

func TestGateTimesOutOnSilence(t *testing.T) {
	var frames [][]int16
	for i := 0; i < 10; i++ {
		frames = append(frames, frame(100, 10))
	}
	_, err := gate(context.Background(), feed(frames...), testRate, 500, time.Second, 5*time.Second)
	if !errors.Is(err, domain.ErrListenTimeout) {
		t.Fatalf("err = %v, want listen timeout", err)
	}
}

func TestGateRecordsPhraseUntilPause(t *testing.T) {
	frames := [][]int16{
		frame(100, 10),   // pre-roll
		frame(200, 1000), // speech
		frame(200, 1000),
	}
	for i := 0; i < 9; i++ {
		frames = append(frames, frame(100, 10)) // 900ms of quiet ends it
	}
	a, err := gate(context.Background(), feed(frames...), testRate, 500, time.Second, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	// pre-roll + speech + 800ms pause
	if len(a.PCM) != 100+400+800 {
		t.Fatalf("captured %d samples", len(a.PCM))
	}
	if a.SampleRate != testRate {
		t.Fatalf("rate = %d", a.SampleRate)
	}
}

func TestGateStopsAtPhraseLimit(t *testing.T) {
	var frames [][]int16
	for i := 0; i < 50; i++ {
		frames = append(frames, frame(100, 1000))
	}
	a, err := gate(context.Background(), feed(frames...), testRate, 500, time.Second, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.PCM) != 2000 {
		t.Fatalf("captured %d samples, want 2000", len(a.PCM))
	}
}

func TestGateHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gate(ctx, make(chan []int16), testRate, 500, time.Second, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestEncodeWAV(t *testing.T) {
	wav := EncodeWAV(&domain.Audio{PCM: []int16{1, -1, 300}, SampleRate: 16000})
	if len(wav) != 44+6 {
		t.Fatalf("len = %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatal("bad header")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Fatalf("rate = %d", rate)
	}
	if s := int16(binary.LittleEndian.Uint16(wav[46:48])); s != -1 {
		t.Fatalf("second sample = %d", s)
	}
}

func TestCleanTranscript(t *testing.T) {
	tests := map[string]string{
		"  Omnis, who is here?\n":                     "Omnis, who is here?",
		"[BLANK_AUDIO]":                               "",
		"(music) hello (applause)":                    "hello",
		"[00:00:00.000 --> 00:00:02.000]  Hi there": "Hi there",
		"Thank you.":                                  "",
	}
	for in, want := range tests {
		if got := CleanTranscript(in); got != want {
			t.Errorf("CleanTranscript(%q) = %q, want %q", in, got, want)
		}
	}
}

type stubRecognizer struct {
	text  string
	err   error
	calls int
}

func (s *stubRecognizer) Recognize(context.Context, *domain.Audio) (string, error) {
	s.calls++
	return s.text, s.err
}

func TestRecognizerChain(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	a := &domain.Audio{PCM: []int16{1}, SampleRate: testRate}

	down := &stubRecognizer{err: domain.ErrSpeechService}
	up := &stubRecognizer{text: "hello"}
	c, _ := NewChain(log, down, up)
	if got, err := c.Recognize(context.Background(), a); err != nil || got != "hello" {
		t.Fatalf("chain = %q, %v", got, err)
	}

	mumble := &stubRecognizer{err: domain.ErrUnintelligible}
	backup := &stubRecognizer{text: "never"}
	c, _ = NewChain(log, mumble, backup)
	if _, err := c.Recognize(context.Background(), a); !errors.Is(err, domain.ErrUnintelligible) {
		t.Fatalf("err = %v", err)
	}
	if backup.calls != 0 {
		t.Fatal("unintelligible audio should not fall through")
	}

	c, _ = NewChain(log, down)
	_, err := c.Recognize(context.Background(), a)
	var chainErr *domain.ChainError
	if !errors.As(err, &chainErr) || !errors.Is(err, domain.ErrSpeechService) {
		t.Fatalf("err = %v", err)
	}
}
