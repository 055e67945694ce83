package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	imageoptimizer "github.com/Skryldev/image-optimizer"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/hooks"
)

// NewRecodeCmd creates the recode subcommand.
func NewRecodeCmd(g *globalFlags) *cobra.Command {
	var (
		bundle bool
		stats  bool
	)

	cmd := &cobra.Command{
		Use:   "recode FILE|DIR...",
		Short: "Convert images to WebP",
		Long: `Convert images to WebP and save them with SEO-friendly filenames.

Directories are expanded one level deep. Files that are not images are
reported and skipped. With --zip every result goes into a single archive
named <prefix>-<unix millis>.zip instead of separate files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := newSession(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()
			return runRecode(cmd, s, args, bundle, stats)
		},
	}

	cmd.Flags().BoolVarP(&bundle, "zip", "z", false, "Save all results in one ZIP archive")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print per-step timing statistics")

	return cmd
}

func runRecode(cmd *cobra.Command, s *session, args []string, bundle, stats bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	files, err := readInputs(args)
	if err != nil {
		return err
	}
	accepted, rejected, err := imageoptimizer.FilterImages(files)
	for _, r := range rejected {
		fmt.Fprintf(out, "✗ %s: not an image, skipped\n", r.OriginalName)
	}
	if err != nil {
		return err
	}

	report := s.opt.Batch(ctx, imageoptimizer.Sources(accepted), 0)
	for _, r := range report.Results {
		fmt.Fprintln(out, resultLine(r))
	}
	for _, f := range report.Failures {
		fmt.Fprintf(out, "✗ %s: %v\n", f.OriginalName, f.Err)
	}

	if len(report.Results) > 0 {
		if bundle {
			name, err := s.opt.SaveBundle(ctx, report.Results)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "saved %s\n", filepath.Join(s.opt.Config().OutputDir, name))
		} else if err := s.opt.SaveAll(ctx, report.Results); err != nil {
			return err
		} else {
			fmt.Fprintf(out, "saved %d file(s) to %s\n", len(report.Results), s.opt.Config().OutputDir)
		}
		fmt.Fprintln(out, summaryLine(report.Summary))
	}

	if stats {
		printStats(out, s.metrics.Snapshot())
	}

	if n := len(report.Failures); n > 0 {
		return fmt.Errorf("%d of %d file(s) failed", n, len(accepted))
	}
	return nil
}

// readInputs loads every named file, expanding directories one level deep
// and skipping hidden entries inside them.
func readInputs(args []string) ([]imageoptimizer.InputFile, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, apperrors.WithFile(apperrors.Wrap(apperrors.CategoryInput, "stat", err), arg, apperrors.CategoryInput)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, apperrors.WithFile(apperrors.Wrap(apperrors.CategoryInput, "readdir", err), arg, apperrors.CategoryInput)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			paths = append(paths, filepath.Join(arg, e.Name()))
		}
	}

	files := make([]imageoptimizer.InputFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, apperrors.WithFile(apperrors.Wrap(apperrors.CategoryInput, "read", err), p, apperrors.CategoryInput)
		}
		files = append(files, imageoptimizer.InputFile{Name: filepath.Base(p), Data: data})
	}
	if len(files) == 0 {
		return nil, apperrors.New(apperrors.CategoryValidation, "inputs", apperrors.ErrNoImages)
	}
	return files, nil
}

// resultLine renders "name.webp  WxH · 1.2 MB → 300 kB (75% smaller)".
func resultLine(r *core.RecodeResult) string {
	return fmt.Sprintf("✓ %s  %d×%d · %s → %s (%s)",
		r.Filename, r.Width, r.Height,
		humanize.Bytes(uint64(r.OriginalSize)), humanize.Bytes(uint64(r.NewSize)),
		reductionText(r.Reduction()))
}

func summaryLine(s core.Summary) string {
	return fmt.Sprintf("%d image(s) · %s → %s (%s)",
		s.Count, humanize.Bytes(uint64(s.OriginalTotal)), humanize.Bytes(uint64(s.NewTotal)),
		reductionText(s.ReductionPercent))
}

func reductionText(pct int) string {
	if pct < 0 {
		return fmt.Sprintf("%d%% larger", -pct)
	}
	return fmt.Sprintf("%d%% smaller", pct)
}

func printStats(w io.Writer, snap hooks.MetricsSnapshot) {
	steps := make([]string, 0, len(snap.StepCalls))
	for name := range snap.StepCalls {
		steps = append(steps, name)
	}
	sort.Strings(steps)
	for _, name := range steps {
		fmt.Fprintf(w, "step %-8s calls=%d errors=%d total=%s\n",
			name, snap.StepCalls[name], snap.StepErrors[name], snap.StepDurations[name])
	}
	fmt.Fprintf(w, "encoded %s\n", humanize.Bytes(uint64(snap.TotalThroughputB)))
}
