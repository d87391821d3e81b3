// Package config gathers the kiosk's settings from the environment and
// from an optional YAML profile.
//
// Switches and tunables come from environment variables (a .env file is
// loaded by main before Load runs). Per-school data such as nicknames,
// greeting templates and canned answers lives in the profile.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/omnis/internal/greeting"
	"github.com/hammamikhairi/omnis/internal/knowledge"
)

// Environment variable names.
const (
	EnvTolerance       = "FACE_MATCH_TOLERANCE"
	EnvMaxFaces        = "FACE_MAX_FACES"
	EnvFrameSkip       = "FRAME_SKIP"
	EnvWakeWords       = "WAKE_WORDS"
	EnvTimeouts        = "CONVERSATION_TIMEOUTS"
	EnvListenTimeout   = "LISTEN_TIMEOUT"
	EnvPhraseLimit     = "PHRASE_LIMIT"
	EnvEnergyMin       = "ENERGY_MIN"
	EnvEnergyMax       = "ENERGY_MAX"
	EnvRegisterUnknown = "REGISTER_UNKNOWN"
	EnvRegistrationTTL = "REGISTRATION_TTL"
	EnvGeminiKeys      = "GEMINI_KEYS"
	EnvGeminiKey       = "GEMINI_KEY"
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvOpenAIModel     = "OPENAI_CHAT_MODEL"
	EnvCamera          = "CAMERA_DEVICE"
	EnvDetectorModel   = "FACE_DETECTOR_MODEL"
	EnvEmbeddingModel  = "FACE_EMBEDDING_MODEL"
	EnvOnnxLib         = "ONNXRUNTIME_LIB"
	EnvWhisperBin      = "WHISPER_BIN"
	EnvWhisperModel    = "WHISPER_MODEL"
	EnvDataDir         = "OMNIS_DATA_DIR"
	EnvFacesDir        = "OMNIS_FACES_DIR"
)

// Config is the resolved configuration.
type Config struct {
	// Presence
	Tolerance       float64
	MaxFaces        int
	FrameSkip       int
	RegisterUnknown bool
	RegistrationTTL time.Duration
	Camera          int

	// Voice
	WakeWords     []string
	Timeouts      int
	ListenTimeout time.Duration
	PhraseLimit   time.Duration
	EnergyMin     float64
	EnergyMax     float64

	// Providers
	GeminiKeys  []string
	OpenAIKey   string
	OpenAIModel string

	// Models and storage
	DetectorModel  string
	EmbeddingModel string
	OnnxLib        string
	WhisperBin     string
	WhisperModel   string
	DataDir        string
	FacesDir       string

	Profile Profile
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Tolerance:       0.50,
		MaxFaces:        4,
		FrameSkip:       3,
		RegisterUnknown: true,
		RegistrationTTL: 30 * time.Second,
		WakeWords:       []string{"omnis", "hello"},
		Timeouts:        3,
		ListenTimeout:   5 * time.Second,
		PhraseLimit:     10 * time.Second,
		EnergyMin:       300,
		EnergyMax:       2000,
		DetectorModel:   "models/face_detection_yunet_2023mar.onnx",
		EmbeddingModel:  "models/face_embedding.onnx",
		WhisperBin:      "whisper-cli",
		WhisperModel:    "bin/ggml-small.bin",
		DataDir:         ".omnis-data",
		FacesDir:        "images/faces",
	}
}

// Load reads the environment over the defaults and, when profilePath
// names an existing file, the YAML profile. A missing profile is not an
// error; a malformed one is.
func Load(profilePath string) (Config, error) {
	cfg := Default()
	var errs []error

	cfg.Tolerance = envFloat(EnvTolerance, cfg.Tolerance, &errs)
	cfg.MaxFaces = envInt(EnvMaxFaces, cfg.MaxFaces, &errs)
	cfg.FrameSkip = envInt(EnvFrameSkip, cfg.FrameSkip, &errs)
	cfg.RegisterUnknown = envBool(EnvRegisterUnknown, cfg.RegisterUnknown, &errs)
	cfg.RegistrationTTL = envDuration(EnvRegistrationTTL, cfg.RegistrationTTL, &errs)
	cfg.Camera = envInt(EnvCamera, cfg.Camera, &errs)
	if v := os.Getenv(EnvWakeWords); v != "" {
		cfg.WakeWords = splitList(strings.ToLower(v))
	}
	cfg.Timeouts = envInt(EnvTimeouts, cfg.Timeouts, &errs)
	cfg.ListenTimeout = envDuration(EnvListenTimeout, cfg.ListenTimeout, &errs)
	cfg.PhraseLimit = envDuration(EnvPhraseLimit, cfg.PhraseLimit, &errs)
	cfg.EnergyMin = envFloat(EnvEnergyMin, cfg.EnergyMin, &errs)
	cfg.EnergyMax = envFloat(EnvEnergyMax, cfg.EnergyMax, &errs)

	cfg.GeminiKeys = append(splitList(os.Getenv(EnvGeminiKeys)), splitList(os.Getenv(EnvGeminiKey))...)
	cfg.OpenAIKey = os.Getenv(EnvOpenAIKey)
	cfg.OpenAIModel = os.Getenv(EnvOpenAIModel)

	cfg.DetectorModel = envString(EnvDetectorModel, cfg.DetectorModel)
	cfg.EmbeddingModel = envString(EnvEmbeddingModel, cfg.EmbeddingModel)
	cfg.OnnxLib = envString(EnvOnnxLib, cfg.OnnxLib)
	cfg.WhisperBin = envString(EnvWhisperBin, cfg.WhisperBin)
	cfg.WhisperModel = envString(EnvWhisperModel, cfg.WhisperModel)
	cfg.DataDir = envString(EnvDataDir, cfg.DataDir)
	cfg.FacesDir = envString(EnvFacesDir, cfg.FacesDir)

	if profilePath != "" {
		p, err := LoadProfile(profilePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			errs = append(errs, err)
		default:
			cfg.Profile = p
		}
	}

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	return cfg, errors.Join(errs...)
}

func (c Config) validate() error {
	var errs []error
	if c.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvTolerance))
	}
	if c.MaxFaces < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", EnvMaxFaces))
	}
	if c.FrameSkip < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", EnvFrameSkip))
	}
	if c.RegistrationTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvRegistrationTTL))
	}
	if c.Timeouts < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", EnvTimeouts))
	}
	if c.EnergyMin > c.EnergyMax {
		errs = append(errs, fmt.Errorf("%s exceeds %s", EnvEnergyMin, EnvEnergyMax))
	}
	if len(c.WakeWords) == 0 {
		errs = append(errs, fmt.Errorf("%s is empty", EnvWakeWords))
	}
	return errors.Join(errs...)
}

// ── Profile ──────────────────────────────────────────────────────

// Profile is the per-school YAML document.
type Profile struct {
	School        string            `yaml:"school"`
	SpokenSchool  string            `yaml:"spoken_school"`
	Nicknames     map[string]string `yaml:"nicknames"`
	SpecialIntros map[string]string `yaml:"special_intros"`
	Casual        []string          `yaml:"casual_greetings"`
	Folds         map[string]string `yaml:"mishearings"`
	Knowledge     []knowledge.Entry `yaml:"knowledge"`
}

// LoadProfile parses the YAML file at path.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("reading profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	return p, nil
}

// Greeting returns the greeting profile. Fields left empty fall back to
// the built-in tables inside the greeting package.
func (p Profile) Greeting() greeting.Profile {
	return greeting.Profile{
		School:        p.School,
		SpokenSchool:  p.SpokenSchool,
		Nicknames:     p.Nicknames,
		SpecialIntros: p.SpecialIntros,
		Casual:        p.Casual,
	}
}

// ── env helpers ──────────────────────────────────────────────────

func envString(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return def
	}
	return n
}

func envFloat(name string, def float64, errs *[]error) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return def
	}
	return f
}

func envBool(name string, def bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return def
	}
	return b
}

// envDuration accepts Go durations ("5s") or bare seconds ("5").
func envDuration(name string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
