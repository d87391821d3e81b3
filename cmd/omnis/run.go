package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hammamikhairi/omnis/internal/answer"
	"github.com/hammamikhairi/omnis/internal/audio"
	"github.com/hammamikhairi/omnis/internal/config"
	"github.com/hammamikhairi/omnis/internal/coord"
	"github.com/hammamikhairi/omnis/internal/display"
	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/greeting"
	"github.com/hammamikhairi/omnis/internal/knowledge"
	"github.com/hammamikhairi/omnis/internal/lines"
	"github.com/hammamikhairi/omnis/internal/logger"
	"github.com/hammamikhairi/omnis/internal/presence"
	"github.com/hammamikhairi/omnis/internal/registry"
	"github.com/hammamikhairi/omnis/internal/speech"
	"github.com/hammamikhairi/omnis/internal/vision"
	"github.com/hammamikhairi/omnis/internal/voice"
)

func runKiosk(parent context.Context, f *flags) error {
	log, cfg, cleanup, err := setup(f)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	reg, err := openRegistry(cfg, log, cfg.FacesDir)
	if err != nil {
		return err
	}
	defer reg.Close()

	vis, err := vision.New(vision.Config{
		DetectorModel:  cfg.DetectorModel,
		EmbeddingModel: cfg.EmbeddingModel,
		OnnxLib:        cfg.OnnxLib,
	})
	if err != nil {
		return fmt.Errorf("loading face models: %w", err)
	}
	defer vis.Close()

	var cam domain.Camera
	if c, err := vision.OpenCamera(cfg.Camera, log.Named("camera")); err != nil {
		log.Error("camera unavailable, running blind: %v", err)
		cam = offlineCamera{}
	} else {
		cam = c
	}
	defer cam.Close()

	state := coord.New()
	out := buildSpeaker(ctx, f, state, log.Named("mouth"))

	greeter := greeting.New(log.Named("greeting"), greeting.WithProfile(cfg.Profile.Greeting()))
	tracker := presence.New(cam, vis, reg, greeter, out, state, log.Named("presence"),
		presence.WithFrameSkip(cfg.FrameSkip),
		presence.WithMaxFaces(cfg.MaxFaces),
		presence.WithTolerance(cfg.Tolerance),
		presence.WithRegistration(cfg.RegisterUnknown, 5, 2*time.Minute),
		presence.WithRegistrationTTL(cfg.RegistrationTTL),
		presence.WithReload(reg.Subscribe()),
	)

	dash := display.New(state, out)

	mic := audio.NewMicrophone(log.Named("mic"))
	defer mic.Close()

	var wg sync.WaitGroup
	rec, err := buildRecognizer(cfg, log.Named("stt"))
	if err != nil {
		log.Warn("voice input disabled: %v", err)
	} else {
		machine := voice.New(voice.Deps{
			State:      state,
			Microphone: mic,
			Recognizer: rec,
			Speaker:    out,
			Registry:   reg,
			Knowledge:  knowledge.NewMemorySource(log.Named("knowledge"), cfg.Profile.Knowledge...),
			Answerer:   buildAnswerer(cfg, f, log.Named("answer")),
		}, log.Named("voice"),
			voice.WithWakeWords(cfg.WakeWords...),
			voice.WithFolds(cfg.Profile.Folds),
			voice.WithTimeoutLimit(cfg.Timeouts),
			voice.WithListenWindow(cfg.ListenTimeout, cfg.PhraseLimit),
			voice.WithEnergyBounds(cfg.EnergyMin, cfg.EnergyMax),
			voice.WithRegistrationTTL(cfg.RegistrationTTL),
			voice.WithObserver(dash.Observe),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			machine.Run(ctx)
		}()
	}

	tracker.Start(ctx)
	defer tracker.Stop()

	if f.noDashboard {
		fmt.Print(display.RenderBanner("Press Ctrl+C to stop."))
		<-ctx.Done()
	} else if err := dash.Run(ctx); err != nil {
		log.Error("display: %v", err)
	}

	log.Info("shutting down")
	cancel()
	wg.Wait()
	return nil
}

func openRegistry(cfg config.Config, log *logger.Logger, facesDir string) (*registry.Registry, error) {
	store, err := registry.OpenBadger(filepath.Join(cfg.DataDir, "registry"), log.Named("registry"))
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	return registry.New(store, log.Named("registry"), registry.WithFacesDir(facesDir)), nil
}

// speakerStatus is a Speaker the dashboard can also read from.
type speakerStatus interface {
	domain.Speaker
	display.SpeechStatus
}

// buildSpeaker returns the speech queue, or a log-only stand-in when
// speech is disabled or no synthesizer is configured.
func buildSpeaker(ctx context.Context, f *flags, state *coord.State, log *logger.Logger) speakerStatus {
	if f.noSpeech {
		return newTextSpeaker(log)
	}

	var synths []speech.Synthesizer
	key, region := os.Getenv(speech.EnvAzureSpeechKey), os.Getenv(speech.EnvAzureSpeechRegion)
	if key != "" && region != "" {
		synths = append(synths, speech.NewAzureClient(key, region, log.Named("azure")))
	}
	if k := os.Getenv(speech.EnvOpenAIKey); k != "" {
		synths = append(synths, speech.NewOpenAISynth(k, log.Named("openai")))
	}
	chain, err := speech.NewChain(log, synths...)
	if err != nil {
		log.Info("TTS disabled: set %s and %s, or %s", speech.EnvAzureSpeechKey, speech.EnvAzureSpeechRegion, speech.EnvOpenAIKey)
		return newTextSpeaker(log)
	}

	player, err := speech.NewPlayer(log)
	if err != nil {
		log.Error("audio player init failed, speech disabled: %v", err)
		return newTextSpeaker(log)
	}

	writer, _ := state.ClaimSpeakingWriter()
	mouth := speech.NewMouth(chain, player, log,
		speech.WithCache(speech.NewAudioCache(chain.Voice(), log, speech.WithCacheDisk(f.cacheDir, f.diskCache))),
		speech.WithSpeakingWriter(writer),
	)
	mouth.Start(ctx)
	mouth.Prefetch(ctx, lines.Fixed()...)
	log.Info("TTS enabled (voice=%s)", chain.Voice())
	return mouth
}

// buildRecognizer chains local whisper (when its model is present) with
// the OpenAI transcription API (when a key is set).
func buildRecognizer(cfg config.Config, log *logger.Logger) (domain.Recognizer, error) {
	var recs []domain.Recognizer
	if _, err := os.Stat(cfg.WhisperModel); err == nil {
		recs = append(recs, audio.NewWhisper(cfg.WhisperBin, cfg.WhisperModel, log.Named("whisper")))
	} else {
		log.Info("whisper model not found at %s", cfg.WhisperModel)
	}
	if cfg.OpenAIKey != "" {
		recs = append(recs, audio.NewOpenAIRecognizer(cfg.OpenAIKey, log.Named("openai")))
	}
	chain, err := audio.NewChain(log, recs...)
	if errors.Is(err, domain.ErrProviderUnavailable) {
		return nil, fmt.Errorf("no speech recognizer: install a whisper model or set %s", config.EnvOpenAIKey)
	}
	return chain, err
}

func buildAnswerer(cfg config.Config, f *flags, log *logger.Logger) domain.Answerer {
	if f.noAI {
		return answer.NewChain(log)
	}
	var backends []answer.Backend
	if g := answer.NewGemini(cfg.GeminiKeys, log.Named("gemini")); g != nil {
		backends = append(backends, g)
	}
	if o := answer.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, log.Named("openai")); o != nil {
		backends = append(backends, o)
	}
	if len(backends) == 0 {
		log.Info("generative answers disabled: set %s or %s", config.EnvGeminiKeys, config.EnvOpenAIKey)
	}
	return answer.NewChain(log, backends...)
}

// ── stand-ins ────────────────────────────────────────────────────

// textSpeaker logs what would have been spoken.
type textSpeaker struct {
	log  *logger.Logger
	mu   sync.Mutex
	last string
}

func newTextSpeaker(log *logger.Logger) *textSpeaker { return &textSpeaker{log: log} }

func (s *textSpeaker) Say(text string) {
	s.log.Info("say: %s", text)
	s.mu.Lock()
	s.last = text
	s.mu.Unlock()
}

func (s *textSpeaker) Interrupt() {}

func (s *textSpeaker) QueueLen() int { return 0 }

func (s *textSpeaker) LastSpoken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// offlineCamera never yields a frame, so the tracker runs on
// placeholders.
type offlineCamera struct{}

func (offlineCamera) Read() (domain.Frame, bool) { return domain.Frame{}, false }
func (offlineCamera) Close() error               { return nil }
