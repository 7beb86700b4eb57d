// Package pipeline runs incoming price lists through profile selection,
// repricing, delivery and journaling.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klytics/pricekit/internal/journal"
	"github.com/klytics/pricekit/internal/profile"
	"github.com/klytics/pricekit/internal/publish"
	"github.com/klytics/pricekit/internal/reprice"
)

// Intake is one file entering the pipeline.
type Intake struct {
	Path string
	// Source names where the file came from ("inbox", "sheets", "cli").
	Source string
	// OriginalName is the name shown to recipients; defaults to the base of Path.
	OriginalName string
	// Profile forces a profile by name instead of selecting one.
	Profile string
	// Temporary inputs are removed after processing unless files are kept.
	Temporary bool
}

func (in Intake) name() string {
	if in.OriginalName != "" {
		return in.OriginalName
	}
	return filepath.Base(in.Path)
}

// Outcome describes what happened to one intake.
type Outcome struct {
	Input     string            `json:"input"`
	Source    string            `json:"source"`
	Profile   string            `json:"profile,omitempty"`
	Markup    float64           `json:"markup"`
	Results   []*reprice.Result `json:"results,omitempty"`
	Updated   int               `json:"updated"`
	Fallback  bool              `json:"fallback,omitempty"`
	Skipped   string            `json:"skipped,omitempty"`
	Published bool              `json:"published"`
	Duration  time.Duration     `json:"duration"`
}

// Outputs lists the produced files.
func (o *Outcome) Outputs() []string {
	paths := make([]string, 0, len(o.Results))
	for _, r := range o.Results {
		paths = append(paths, r.Output)
	}
	return paths
}

// Stats counts handled intakes since the runner was created.
type Stats struct {
	Processed int       `json:"processed"`
	Errors    int       `json:"errors"`
	Skipped   int       `json:"skipped"`
	Started   time.Time `json:"started"`
}

// Uptime is the time since the runner started.
func (s Stats) Uptime() time.Duration {
	return time.Since(s.Started).Round(time.Second)
}

// Runner processes intakes. It is safe for concurrent use.
type Runner struct {
	Processor *reprice.Processor
	Selector  *profile.Selector
	Publisher publish.Publisher
	Journal   *journal.Journal
	Logger    *slog.Logger

	// OutputDir receives results. Empty means a subdirectory next to the input.
	OutputDir    string
	OutputSubdir string
	// KeepFiles disables removal of temporary inputs and delivered outputs.
	KeepFiles bool

	Now func() time.Time

	mu    sync.Mutex
	stats Stats
}

// NewRunner creates a Runner and starts its uptime clock.
func NewRunner(proc *reprice.Processor, sel *profile.Selector, pub publish.Publisher, j *journal.Journal, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if pub == nil {
		pub = publish.Discard{}
	}
	return &Runner{
		Processor: proc,
		Selector:  sel,
		Publisher: pub,
		Journal:   j,
		Logger:    log,
		Now:       time.Now,
		stats:     Stats{Started: time.Now()},
	}
}

// Stats returns a snapshot of the counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Handle runs one intake through the pipeline. Files that are not .xlsx
// price lists are skipped without error.
func (r *Runner) Handle(ctx context.Context, in Intake) (*Outcome, error) {
	start := time.Now()
	name := in.name()
	log := r.logger().With("file", name, "source", in.Source)
	pub := r.publisher()
	out := &Outcome{Input: in.Path, Source: in.Source}

	if reason := skipReason(name); reason != "" {
		out.Skipped = reason
		log.Info("skipping file", "reason", reason)
		r.count(func(s *Stats) { s.Skipped++ })
		r.record(in, out, journal.StatusSkipped, nil, start)
		return out, nil
	}

	p, err := r.selectProfile(in, name)
	if err != nil {
		return r.fail(in, out, log, err, start)
	}
	out.Profile, out.Markup = p.Name, p.Markup
	log = log.With("profile", p.Name)
	log.Info("processing", "markup", p.Markup, "split", p.SplitSheets)

	if out.Results, err = r.process(in, p, log); err != nil {
		return r.fail(in, out, log, err, start)
	}
	for _, res := range out.Results {
		out.Updated += res.Updated
		out.Fallback = out.Fallback || res.Fallback
	}

	at := r.now()
	for _, res := range out.Results {
		label := name
		if res.Sheet != "" {
			label = fmt.Sprintf("%s (%s)", name, res.Sheet)
		}
		item := publish.Item{Path: res.Output, Caption: publish.Caption(label, p.Name, p.Markup, res.Updated, at)}
		if err := pub.Publish(ctx, item); err != nil {
			return r.fail(in, out, log, fmt.Errorf("could not publish %s: %w", filepath.Base(res.Output), err), start)
		}
	}
	out.Published = pub.Name() != publish.KindNone
	out.Duration = time.Since(start)

	status := journal.StatusOK
	if out.Fallback {
		status = journal.StatusFallback
	}
	r.record(in, out, status, nil, start)
	r.count(func(s *Stats) { s.Processed++ })
	r.cleanup(in, out, log)

	log.Info("done", "updated", out.Updated, "outputs", len(out.Results), "fallback", out.Fallback, "published", out.Published)
	return out, nil
}

func skipReason(name string) string {
	switch {
	case strings.HasPrefix(name, "~$"):
		return "office lock file"
	case !strings.EqualFold(filepath.Ext(name), ".xlsx"):
		return "not an .xlsx file"
	}
	return ""
}

func (r *Runner) selectProfile(in Intake, name string) (profile.Profile, error) {
	if in.Profile != "" {
		p, ok := r.Selector.Lookup(in.Profile)
		if !ok {
			return profile.Profile{}, fmt.Errorf("unknown profile %q", in.Profile)
		}
		return p, nil
	}
	return r.Selector.Select(profile.NewCandidate(name, in.Source))
}

func (r *Runner) process(in Intake, p profile.Profile, log *slog.Logger) ([]*reprice.Result, error) {
	stem := strings.TrimSuffix(in.name(), filepath.Ext(in.name()))
	output := r.outputPath(in, stem)

	if p.SplitSheets {
		dir := strings.TrimSuffix(output, filepath.Ext(output))
		results, err := r.Processor.ProcessSplit(p.Request(in.Path, ""), dir)
		if err == nil {
			return results, nil
		}
		var reqErr *reprice.RequestError
		if errors.As(err, &reqErr) {
			return nil, err
		}
		log.Warn("could not split workbook, processing it whole", "error", err)
	}

	res, err := r.Processor.Process(p.Request(in.Path, output))
	if err != nil {
		return nil, err
	}
	return []*reprice.Result{res}, nil
}

func (r *Runner) outputPath(in Intake, stem string) string {
	ext := filepath.Ext(in.name())
	if r.OutputDir != "" {
		return filepath.Join(r.OutputDir, stem+"_Update"+ext)
	}
	return filepath.Join(filepath.Dir(in.Path), orDefault(r.OutputSubdir, reprice.DefaultOutputSubdir), stem+"_Update"+ext)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (r *Runner) cleanup(in Intake, out *Outcome, log *slog.Logger) {
	if r.KeepFiles {
		return
	}
	if in.Temporary {
		if err := os.Remove(in.Path); err != nil && !os.IsNotExist(err) {
			log.Warn("could not remove temporary input", "path", in.Path, "error", err)
		}
	}
	if !out.Published {
		return // outputs are the deliverable
	}
	for _, path := range out.Outputs() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("could not remove delivered file", "path", path, "error", err)
		}
	}
}

func (r *Runner) fail(in Intake, out *Outcome, log *slog.Logger, err error, start time.Time) (*Outcome, error) {
	out.Duration = time.Since(start)
	log.Error("could not process file", "error", err)
	r.count(func(s *Stats) { s.Errors++ })
	r.record(in, out, journal.StatusError, err, start)
	return out, err
}

func (r *Runner) record(in Intake, out *Outcome, status string, err error, start time.Time) {
	if r.Journal == nil {
		return
	}
	entry := journal.Entry{
		Timestamp:  r.now(),
		Source:     in.Source,
		Input:      in.name(),
		Outputs:    out.Outputs(),
		Profile:    out.Profile,
		Markup:     out.Markup,
		Updated:    out.Updated,
		Fallback:   out.Fallback,
		Status:     status,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if jerr := r.Journal.Record(entry); jerr != nil {
		r.logger().Warn("could not write journal", "error", jerr)
	}
}

func (r *Runner) count(f func(*Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(&r.stats)
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

func (r *Runner) publisher() publish.Publisher {
	if r.Publisher == nil {
		return publish.Discard{}
	}
	return r.Publisher
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
