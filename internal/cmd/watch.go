package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Skryldev/image-optimizer/watch"
)

// NewWatchCmd creates the watch subcommand.
func NewWatchCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Recode images dropped into a directory",
		Long: `Watch DIR and recode every image written into it once the file has been
quiet for the configured debounce period. Results go to --output, which
defaults to DIR/optimized. Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := args[0]
			if !cmd.Flags().Changed("output") && cfg.OutputDir == "." {
				cfg.OutputDir = filepath.Join(dir, "optimized")
			}
			if same, _ := sameDir(dir, cfg.OutputDir); same {
				return fmt.Errorf("output directory must differ from the watched directory %s", dir)
			}

			s, err := newSession(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()

			s.opt.Start()
			defer s.opt.Stop()

			w, err := watch.New(watch.Config{Dir: dir, Debounce: cfg.Watch.Debounce}, s.opt, s.logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			w.OnResult(func(r watch.Result) {
				if r.Err != nil {
					fmt.Fprintf(out, "✗ %s: %v\n", filepath.Base(r.Path), r.Err)
					return
				}
				fmt.Fprintln(out, resultLine(r.Output))
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(out, "watching %s → %s\n", dir, cfg.OutputDir)
			return w.Run(ctx)
		},
	}
	return cmd
}

func sameDir(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}
