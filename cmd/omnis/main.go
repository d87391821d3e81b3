// OMNIS, a face-aware welcome kiosk.
//
// Usage:
//
//	omnis [run] [--verbose] [--quiet] [--no-speech] [--no-ai]
//	omnis encode --faces images/faces
//	omnis say "Hello there"
//	omnis faces
//	omnis keys
package main

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hammamikhairi/omnis/internal/config"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// flags shared by every subcommand.
type flags struct {
	verbose     bool
	quiet       bool
	logFile     string
	profile     string
	noSpeech    bool
	noAI        bool
	noDashboard bool
	cacheDir    string
	diskCache   bool
}

func main() {
	_ = godotenv.Load()

	f := &flags{}
	root := &cobra.Command{
		Use:           "omnis",
		Short:         "Face-aware welcome kiosk",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKiosk(cmd.Context(), f)
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVar(&f.verbose, "verbose", false, "enable verbose/debug logging")
	pf.BoolVar(&f.quiet, "quiet", false, "disable all logging")
	pf.StringVar(&f.logFile, "log-file", ".omnis-logs/omnis.log", "file to write logs to (use \"stderr\" to log to console)")
	pf.StringVar(&f.profile, "profile", "omnis.yaml", "YAML profile with per-school tables")
	pf.BoolVar(&f.noSpeech, "no-speech", false, "disable text-to-speech even if keys are set")
	pf.BoolVar(&f.noAI, "no-ai", false, "disable generative answers even if keys are set")
	pf.StringVar(&f.cacheDir, "cache-dir", ".omnis-cache", "directory for persistent TTS audio cache")
	pf.BoolVar(&f.diskCache, "disk-cache", true, "persist TTS audio cache to disk (reads from disk even when false)")
	root.Flags().BoolVar(&f.noDashboard, "no-dashboard", false, "run without the terminal dashboard")

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the kiosk (default)",
		RunE:  root.RunE,
	}
	run.Flags().BoolVar(&f.noDashboard, "no-dashboard", false, "run without the terminal dashboard")

	root.AddCommand(run, encodeCmd(f), sayCmd(f), facesCmd(f), keysCmd(f))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup configures logging and loads the configuration. The returned
// cleanup closes the log file.
func setup(f *flags) (*logger.Logger, config.Config, func(), error) {
	level := logger.LevelNormal
	if f.verbose {
		level = logger.LevelVerbose
	}
	if f.quiet {
		level = logger.LevelOff
	}

	// Log to a file by default so the dashboard stays clean.
	var out io.Writer = os.Stderr
	cleanup := func() {}
	if f.logFile != "" && f.logFile != "stderr" {
		if dir := filepath.Dir(f.logFile); dir != "" && dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		file, err := os.OpenFile(f.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", f.logFile, err)
		} else {
			out = file
			cleanup = func() { file.Close() }
		}
	}

	// Third-party libraries log through the standard package.
	stdlog.SetOutput(out)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(level, out)

	cfg, err := config.Load(f.profile)
	if err != nil {
		cleanup()
		return nil, config.Config{}, nil, fmt.Errorf("configuration: %w", err)
	}
	return log, cfg, cleanup, nil
}
