package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	imageoptimizer "github.com/Skryldev/image-optimizer"
	"github.com/Skryldev/image-optimizer/adapters/vips"
	"github.com/Skryldev/image-optimizer/config"
	"github.com/Skryldev/image-optimizer/core"
	"github.com/Skryldev/image-optimizer/hooks"
	"github.com/Skryldev/image-optimizer/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	quality    int
	backend    string
	outputDir  string
	workers    int
	failFast   bool
	logLevel   string
}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "imageoptimizer",
		Short: "Recode images to WebP with SEO-friendly filenames",
		Long: `imageoptimizer converts JPEG, PNG, GIF, BMP and WebP images to WebP at a
chosen quality, renames them to lower-case hyphenated slugs and saves them
individually or bundled in one ZIP archive. Everything runs locally.`,
		Version:       version.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to a YAML config file")
	pf.IntVarP(&g.quality, "quality", "q", config.DefaultQuality, "WebP quality (1-100)")
	pf.StringVar(&g.backend, "backend", string(config.BackendNative), "Codec backend: native or vips")
	pf.StringVarP(&g.outputDir, "output", "o", ".", "Directory to save results into")
	pf.IntVarP(&g.workers, "workers", "w", 0, "Parallel recodes (0 = number of CPUs)")
	pf.BoolVar(&g.failFast, "fail-fast", false, "Stop at the first file that fails")
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(NewRecodeCmd(g))
	rootCmd.AddCommand(NewWatchCmd(g))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// loadConfig layers explicitly set flags over config.Load.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("quality") {
		cfg.Quality = g.quality
	}
	if flags.Changed("backend") {
		cfg.Backend = config.Backend(g.backend)
	}
	if flags.Changed("output") {
		cfg.OutputDir = g.outputDir
	}
	if flags.Changed("workers") {
		cfg.WorkerCount = g.workers
	}
	if flags.Changed("fail-fast") {
		cfg.FailFast = g.failFast
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cfg, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// session bundles what a command needs to recode.
type session struct {
	opt     *imageoptimizer.Optimizer
	logger  core.Logger
	metrics *hooks.InMemoryMetrics
	close   func()
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// newSession builds an Optimizer for cfg with logging and metrics hooks and
// the selected codec backend.
func newSession(cfg config.Config, logOut io.Writer) (*session, error) {
	logger := hooks.NewSlogLogger(newLogger(logOut, cfg.LogLevel))
	closeFn := func() {}

	opts := []imageoptimizer.Option{imageoptimizer.WithLogger(logger)}
	if cfg.Backend == config.BackendVips {
		b := vips.NewBackend(vips.BackendConfig{
			DefaultQuality: cfg.Quality,
			Effort:         cfg.Method,
			MaxWorkers:     cfg.WorkerCount,
		})
		closeFn = b.Shutdown
		opts = append(opts, imageoptimizer.WithCodecs(func(reg core.Registry) { vips.Register(reg, b) }))
	}

	opt, err := imageoptimizer.New(cfg, opts...)
	if err != nil {
		closeFn()
		return nil, err
	}
	metrics := hooks.NewInMemoryMetrics()
	opt.AddHook(hooks.NewLoggingHook(logger))
	opt.SetMetrics(metrics)

	return &session{opt: opt, logger: logger, metrics: metrics, close: closeFn}, nil
}
