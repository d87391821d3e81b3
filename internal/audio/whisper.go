package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// Whisper transcribes phrases locally by running whisper.cpp's CLI on a
// temporary WAV file.
type Whisper struct {
	bin     string
	model   string
	tempDir string
	lang    string
	log     *logger.Logger
}

var _ domain.Recognizer = (*Whisper)(nil)

// WhisperOption configures the local recognizer.
type WhisperOption func(*Whisper)

// WithTempDir sets where phrase WAV files are written.
func WithTempDir(dir string) WhisperOption {
	return func(w *Whisper) { w.tempDir = dir }
}

// WithLanguage sets the spoken language hint, e.g. "en".
func WithLanguage(lang string) WhisperOption {
	return func(w *Whisper) { w.lang = lang }
}

// NewWhisper creates a local recognizer. bin is the whisper-cli
// executable, model the GGML model path.
func NewWhisper(bin, model string, log *logger.Logger, opts ...WhisperOption) *Whisper {
	w := &Whisper{
		bin:     bin,
		model:   model,
		tempDir: os.TempDir(),
		lang:    "en",
		log:     log,
	}
	for _, opt := range opts {
		opt(w)
	}
	if _, err := exec.LookPath(w.bin); err != nil {
		log.Warn("whisper: %q not found in PATH: %v", w.bin, err)
	}
	return w
}

// Recognize writes the phrase to disk and runs whisper-cli on it.
func (w *Whisper) Recognize(ctx context.Context, a *domain.Audio) (string, error) {
	if a == nil || len(a.PCM) == 0 {
		return "", domain.ErrUnintelligible
	}
	if err := os.MkdirAll(w.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("whisper temp dir: %w", err)
	}
	path := filepath.Join(w.tempDir, "omnis-"+uuid.NewString()+".wav")
	if err := os.WriteFile(path, EncodeWAV(a), 0o644); err != nil {
		return "", fmt.Errorf("writing phrase: %w", err)
	}
	defer os.Remove(path)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.bin, "-m", w.model, "-f", path, "-l", w.lang, "-nt", "-np")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("whisper-cli: %v: %s: %w", err, strings.TrimSpace(stderr.String()), domain.ErrSpeechService)
	}

	text := CleanTranscript(stdout.String())
	w.log.Debug("whisper: %s of audio -> %q", a.Duration(), text)
	if text == "" {
		return "", domain.ErrUnintelligible
	}
	return text, nil
}

// annotation matches whisper's sound descriptions like "(music)" or
// "[BLANK_AUDIO]".
var annotation = regexp.MustCompile(`[\(\[][A-Za-z_][A-Za-z_\s]*[\)\]]`)

// timestamp matches a leading "[00:00:00.000 --> 00:00:05.000]".
var timestamp = regexp.MustCompile(`^\[[0-9:.]+\s*-->\s*[0-9:.]+\]`)

// hallucinations are what whisper emits on silence or noise.
var hallucinations = map[string]bool{
	"...":                     true,
	"you":                     true,
	"thank you.":              true,
	"thanks for watching!":    true,
	"thank you for watching.": true,
	"bye.":                    true,
	"the end.":                true,
}

// CleanTranscript normalizes whitespace, strips sound annotations and
// timestamps, and drops known silence hallucinations.
func CleanTranscript(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = timestamp.ReplaceAllString(strings.TrimSpace(l), "")
	}
	s = strings.Join(lines, " ")
	s = annotation.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	if hallucinations[strings.ToLower(s)] {
		return ""
	}
	return s
}
