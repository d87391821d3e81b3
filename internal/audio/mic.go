// Package audio captures microphone input and turns it into text.
//
// Capture runs through miniaudio (malgo) at 16 kHz mono. A Source gates
// the stream on energy: it calibrates against ambient noise, waits for
// speech louder than the threshold, and returns the phrase once the
// speaker pauses. Recognizers then transcribe the phrase, locally with
// whisper.cpp or through the OpenAI transcription API.
package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
)

const (
	// SampleRate is the capture rate every recognizer expects.
	SampleRate = 16000
	frameQueue = 64
)

// Microphone opens capture streams on the default input device.
type Microphone struct {
	log *logger.Logger

	mu   sync.Mutex
	mctx *malgo.AllocatedContext
}

var _ domain.Microphone = (*Microphone)(nil)

// NewMicrophone creates a microphone. The audio backend is initialised
// lazily on the first Open so a missing device is retried, not fatal.
func NewMicrophone(log *logger.Logger) *Microphone {
	return &Microphone{log: log}
}

// Open starts a capture device. Failures wrap domain.ErrNoMicrophone.
func (m *Microphone) Open(ctx context.Context) (domain.AudioSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := m.backend()
	if err != nil {
		return nil, fmt.Errorf("audio backend: %w: %w", domain.ErrNoMicrophone, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = SampleRate
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.Alsa.NoMMap = 1

	src := &Source{
		log:    m.log,
		frames: make(chan []int16, frameQueue),
	}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 || src.closed.Load() {
				return
			}
			n := len(raw) / 2
			pcm := make([]int16, n)
			for i := 0; i < n; i++ {
				pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
			}
			select {
			case src.frames <- pcm:
			default:
				src.drops.Add(1)
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w: %w", domain.ErrNoMicrophone, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start capture device: %w: %w", domain.ErrNoMicrophone, err)
	}
	src.device = device
	m.log.Debug("microphone: capture started (rate=%d)", SampleRate)
	return src, nil
}

// Close releases the audio backend.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mctx == nil {
		return nil
	}
	err := m.mctx.Uninit()
	m.mctx.Free()
	m.mctx = nil
	return err
}

func (m *Microphone) backend() (*malgo.AllocatedContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mctx != nil {
		return m.mctx, nil
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		m.log.Debug("miniaudio: %s", msg)
	})
	if err != nil {
		return nil, err
	}
	m.mctx = mctx
	return mctx, nil
}

// Source is one open capture stream.
type Source struct {
	log    *logger.Logger
	device *malgo.Device
	frames chan []int16
	drops  atomic.Int64
	closed atomic.Bool
}

var _ domain.AudioSource = (*Source)(nil)

// Calibrate samples ambient noise for d and returns a speech threshold.
func (s *Source) Calibrate(ctx context.Context, d time.Duration) (float64, error) {
	return calibrate(ctx, s.frames, SampleRate, d)
}

// Listen records one phrase. See gate for the rules.
func (s *Source) Listen(ctx context.Context, threshold float64, timeout, phraseLimit time.Duration) (*domain.Audio, error) {
	a, err := gate(ctx, s.frames, SampleRate, threshold, timeout, phraseLimit)
	if d := s.drops.Swap(0); d > 0 {
		s.log.Debug("microphone: dropped %d frames while listening", d)
	}
	return a, err
}

// Close stops the device. The frame channel is left open; the callback
// stops feeding it once closed is set.
func (s *Source) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.device != nil {
		if err := s.device.Stop(); err != nil {
			s.device.Uninit()
			return fmt.Errorf("stop capture device: %w", err)
		}
		s.device.Uninit()
	}
	return nil
}
