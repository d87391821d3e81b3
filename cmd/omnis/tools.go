package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/omnis/internal/answer"
	"github.com/hammamikhairi/omnis/internal/coord"
	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/registry"
	"github.com/hammamikhairi/omnis/internal/vision"
)

// encodeCmd builds encodings from a folder of portraits. Each file's
// stem is the person's label; files without a detectable face are
// skipped.
func encodeCmd(f *flags) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Register every portrait in a folder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, cfg, cleanup, err := setup(f)
			if err != nil {
				return err
			}
			defer cleanup()
			if dir == "" {
				dir = cfg.FacesDir
			}

			// Portraits are already on disk; don't write crops over them.
			reg, err := openRegistry(cfg, log, "")
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

			entries, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("reading %s: %w", dir, err)
			}

			var added, skipped int
			for _, e := range entries {
				if e.IsDir() || !isImage(e.Name()) {
					continue
				}
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				label := labelFromFile(e.Name())
				ok, err := encodeOne(cmd.Context(), vis, reg, filepath.Join(dir, e.Name()), label)
				switch {
				case err != nil:
					fmt.Fprintf(cmd.ErrOrStderr(), "  %-24s error: %v\n", label, err)
					skipped++
				case !ok:
					fmt.Fprintf(cmd.OutOrStdout(), "  %-24s no face found, skipped\n", label)
					skipped++
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "  %-24s encoded\n", label)
					added++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d encoded, %d skipped\n", added, skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "faces", "", "folder of portraits (default $OMNIS_FACES_DIR or images/faces)")
	return cmd
}

// encodeOne replaces the label's encodings, so re-running encode over
// the same folder does not duplicate anyone.
func encodeOne(ctx context.Context, vis domain.FaceVision, reg *registry.Registry, path, label string) (bool, error) {
	frame, err := vision.LoadImage(path)
	if err != nil {
		return false, err
	}
	boxes, err := vis.DetectFaces(frame)
	if err != nil {
		return false, err
	}
	if len(boxes) == 0 {
		return false, nil
	}
	// Portraits hold one subject; take the biggest face.
	sort.SliceStable(boxes, func(i, j int) bool { return boxes[i].Area() > boxes[j].Area() })
	encs, err := vis.EncodeFaces(frame, boxes[:1])
	if err != nil {
		return false, err
	}
	if len(encs) == 0 {
		return false, nil
	}
	if !reg.Replace(ctx, label, encs[0], domain.Frame{}) {
		return false, fmt.Errorf("registry refused %q", label)
	}
	return true, nil
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".bmp":
		return true
	}
	return false
}

// labelFromFile turns "Deva_Nandan.jpg" into "Deva Nandan".
func labelFromFile(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.TrimSpace(strings.ReplaceAll(stem, "_", " "))
}

// sayCmd speaks its arguments and waits for playback to finish.
func sayCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "say [text...]",
		Short: "Speak a line through the configured voice",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, _, cleanup, err := setup(f)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			out := buildSpeaker(ctx, f, coord.New(), log.Named("mouth"))
			out.Say(strings.Join(args, " "))
			if w, ok := out.(interface{ Wait(context.Context) error }); ok {
				return w.Wait(ctx)
			}
			return nil
		},
	}
}

// facesCmd lists the registered identities.
func facesCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "faces",
		Short: "List known faces",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, cfg, cleanup, err := setup(f)
			if err != nil {
				return err
			}
			defer cleanup()

			reg, err := openRegistry(cfg, log, cfg.FacesDir)
			if err != nil {
				return err
			}
			defer reg.Close()

			names, counts, err := reg.Names(cmd.Context())
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no faces registered")
				return nil
			}
			for _, n := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %d encoding(s)\n", n, counts[n])
			}
			return nil
		},
	}
}

// keysCmd probes every Gemini key with a trivial prompt.
func keysCmd(f *flags) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Check which Gemini API keys work",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, cfg, cleanup, err := setup(f)
			if err != nil {
				return err
			}
			defer cleanup()

			g := answer.NewGemini(cfg.GeminiKeys, log.Named("gemini"))
			if g == nil {
				return fmt.Errorf("no keys: set GEMINI_KEYS or GEMINI_KEY")
			}
			for _, st := range g.CheckKeys(cmd.Context(), model) {
				if st.Err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "  key #%d  FAILED  %v\n", st.Index, st.Err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  key #%d  ok      %s\n", st.Index, st.Reply)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "gemini-1.5-flash", "model to probe with")
	return cmd
}
