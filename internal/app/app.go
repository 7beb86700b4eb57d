// Package app assembles the configured processing pipeline for CLI commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/klytics/pricekit/internal/config"
	"github.com/klytics/pricekit/internal/formats/xlsx"
	"github.com/klytics/pricekit/internal/journal"
	"github.com/klytics/pricekit/internal/logging"
	"github.com/klytics/pricekit/internal/pipeline"
	"github.com/klytics/pricekit/internal/profile"
	"github.com/klytics/pricekit/internal/publish"
	"github.com/klytics/pricekit/internal/reprice"
	"github.com/klytics/pricekit/internal/sheets"
	"github.com/klytics/pricekit/internal/watch"
)

// Options tune how an App is built.
type Options struct {
	Verbose bool
	// Stderr receives log output; defaults to os.Stderr.
	Stderr io.Writer
	// NoPublish replaces the configured publisher with one that drops everything.
	NoPublish bool
}

// App holds the configured collaborators.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Selector  *profile.Selector
	Publisher publish.Publisher
	Journal   *journal.Journal
	Processor *reprice.Processor
}

// FromCommand loads the configuration and builds an App using the global
// --verbose flag of cmd.
func FromCommand(cmd *cobra.Command, noPublish bool) (*App, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(cfg, Options{Verbose: verbose, Stderr: cmd.ErrOrStderr(), NoPublish: noPublish})
}

// New builds an App from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	log := logging.New(stderr, cfg.LogLevel, opts.Verbose)

	sel, err := profile.NewSelector(cfg.Profiles)
	if err != nil {
		return nil, fmt.Errorf("invalid profiles in %s: %w", config.ConfigPath(), err)
	}

	var pub publish.Publisher = publish.Discard{}
	if !opts.NoPublish {
		if pub, err = publish.New(cfg.Publish); err != nil {
			return nil, err
		}
	}

	if cfg.TempDir != "" {
		if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create temp directory %s: %w", cfg.TempDir, err)
		}
	}

	return &App{
		Config:    cfg,
		Logger:    log,
		Selector:  sel,
		Publisher: pub,
		Journal:   journal.New(cfg.Journal.Path, cfg.Journal.Enabled),
		Processor: &reprice.Processor{Logger: log, TempDir: cfg.TempDir},
	}, nil
}

// Runner returns an intake runner writing into outputDir, or into the
// configured output location when outputDir is empty.
func (a *App) Runner(outputDir string) *pipeline.Runner {
	r := pipeline.NewRunner(a.Processor, a.Selector, a.Publisher, a.Journal, a.Logger)
	r.OutputDir = a.Config.OutputDir
	if outputDir != "" {
		r.OutputDir = outputDir
	}
	r.OutputSubdir = a.Config.OutputSubdir
	r.KeepFiles = a.Config.KeepFiles
	return r
}

// WatchConfig returns the watcher configuration for dirs, falling back to
// the configured inbox directories.
func (a *App) WatchConfig(dirs []string) watch.WatchConfig {
	if len(dirs) == 0 {
		dirs = a.Config.Watch.Directories
	}
	ignore := append([]string(nil), watch.DefaultIgnoreDirs...)
	if a.Config.OutputSubdir != "" && a.Config.OutputSubdir != reprice.DefaultOutputSubdir {
		ignore = append(ignore, a.Config.OutputSubdir)
	}
	var paths []string
	if a.Config.OutputDir != "" {
		paths = append(paths, a.Config.OutputDir)
	}
	return watch.WatchConfig{
		Directories: dirs,
		Rules:       watch.DefaultRules(),
		Recursive:   a.Config.Watch.Recursive,
		Debounce:    a.Config.Watch.DebounceMs,
		IgnoreDirs:  ignore,
		IgnorePaths: paths,
	}
}

// Poller returns a poller for the configured shared spreadsheet that feeds
// each new export into runner.
func (a *App) Poller(runner *pipeline.Runner) (*sheets.Poller, error) {
	cfg := a.Config.Sheets
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Profile != "" {
		if _, ok := a.Selector.Lookup(cfg.Profile); !ok {
			return nil, fmt.Errorf("sheets.profile %q is not a configured profile", cfg.Profile)
		}
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = sheets.DefaultInterval
	}
	return &sheets.Poller{
		Exporter: sheets.NewExporter(cfg),
		Dir:      a.Config.TempDir,
		Interval: interval,
		Logger:   a.Logger,
		Handler:  SheetsHandler(runner, cfg.Profile),
	}, nil
}

// SheetsHandler hands an exported spreadsheet to runner as a temporary intake.
func SheetsHandler(runner *pipeline.Runner, forcedProfile string) sheets.Handler {
	return func(ctx context.Context, path string) error {
		_, err := runner.Handle(ctx, pipeline.Intake{
			Path:      path,
			Source:    "sheets",
			Profile:   forcedProfile,
			Temporary: true,
		})
		return err
	}
}

// WatchHandler hands a detected inbox file to runner.
func WatchHandler(runner *pipeline.Runner) watch.EventHandler {
	return func(ctx context.Context, path string, rule watch.Rule) error {
		_, err := runner.Handle(ctx, pipeline.Intake{Path: path, Source: "inbox", Profile: rule.Profile})
		return err
	}
}

// ParseColumn accepts a column as letters ("D") or a 1-based index ("4").
func ParseColumn(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return 0, fmt.Errorf("invalid column %q: must be a positive index or letters like D", s)
		}
		return n, nil
	}
	n, err := xlsx.ColumnNumber(s)
	if err != nil {
		return 0, fmt.Errorf("invalid column %q: must be a positive index or letters like D", s)
	}
	return n, nil
}

// ParseSince accepts a duration ("24h", "7d") or a date ("2006-01-02")
// and returns the earliest time it denotes relative to now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			return now.AddDate(0, 0, -n), nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q — use a duration like 24h or 7d, or a date like 2006-01-02", s)
}
