package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelNormal, &buf)

	log.Debug("hidden %d", 1)
	log.Info("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at normal level: %q", out)
	}
	if !strings.Contains(out, "[INF]") || !strings.Contains(out, "shown 2") {
		t.Fatalf("info line missing: %q", out)
	}

	buf.Reset()
	log.SetLevel(LevelOff)
	log.Error("nothing")
	if buf.Len() != 0 {
		t.Fatalf("expected no output when off, got %q", buf.String())
	}
}

func TestNamedSharesLevelAndPrefixes(t *testing.T) {
	var buf bytes.Buffer
	root := New(LevelNormal, &buf)
	child := root.Named("voice").Named("mic")

	child.Warn("no device")
	if !strings.Contains(buf.String(), "voice/mic: no device") {
		t.Fatalf("missing component prefix: %q", buf.String())
	}

	buf.Reset()
	root.SetLevel(LevelVerbose)
	child.Debug("calibrated")
	if !strings.Contains(buf.String(), "[DBG]") {
		t.Fatalf("child did not follow parent level: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"off", LevelOff},
		{"QUIET", LevelOff},
		{"verbose", LevelVerbose},
		{"debug", LevelVerbose},
		{"normal", LevelNormal},
		{"", LevelNormal},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
