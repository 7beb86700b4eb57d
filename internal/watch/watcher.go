// Package watch monitors inbox directories for new price lists and hands
// each settled file to a handler.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Rule decides which files are picked up and how they are processed.
type Rule struct {
	ID         string   `json:"id"`
	Pattern    string   `json:"pattern,omitempty"`    // Glob on the file name (e.g., "benks*.xlsx")
	Extensions []string `json:"extensions,omitempty"` // Defaults to .xlsx
	Profile    string   `json:"profile,omitempty"`    // Forced profile; empty selects by file name
	Enabled    bool     `json:"enabled"`
}

// WatchConfig holds the complete watcher configuration.
type WatchConfig struct {
	Directories []string `json:"directories"`
	Rules       []Rule   `json:"rules"`
	Recursive   bool     `json:"recursive"`
	Debounce    int      `json:"debounceMs"` // Milliseconds a file must stay quiet before processing
	IgnoreDirs  []string `json:"ignoreDirs,omitempty"`
	// IgnorePaths are directories, such as an output directory, whose
	// contents are never processed.
	IgnorePaths []string `json:"ignorePaths,omitempty"`
}

// Validate rejects an ignored path that is, or contains, a watched
// directory: every file in that inbox would be dropped.
func (c WatchConfig) Validate() error {
	for _, ignored := range c.IgnorePaths {
		for _, dir := range c.Directories {
			if Within(dir, ignored) {
				return fmt.Errorf("output directory %s contains the watched directory %s — results would be picked up again; choose an output directory outside the inbox", ignored, dir)
			}
		}
	}
	return nil
}

// Within reports whether path is dir or lies below it.
func Within(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Event represents a file event that was detected and processed.
type Event struct {
	Time      time.Time `json:"time"`
	Path      string    `json:"path"`
	Operation string    `json:"operation"`
	RuleID    string    `json:"ruleId,omitempty"`
	Status    string    `json:"status"` // "processed", "error", "skipped"
	Error     string    `json:"error,omitempty"`
}

// EventHandler is called for every settled file that matches a rule. It
// runs on its own goroutine, never on the event loop.
type EventHandler func(ctx context.Context, path string, rule Rule) error

// Status represents the current watcher status.
type Status struct {
	Running     bool     `json:"running"`
	Directories []string `json:"directories"`
	Rules       int      `json:"rules"`
	EventCount  int      `json:"eventCount"`
	StartedAt   string   `json:"startedAt,omitempty"`
}

// maxEvents bounds the in-memory event history.
const maxEvents = 1000

// DefaultIgnoreDirs are never watched, so results written next to the
// inbox are not picked up again.
var DefaultIgnoreDirs = []string{"processed_files"}

// Watcher monitors directories for file changes and triggers the handler.
type Watcher struct {
	Config  WatchConfig
	Logger  *slog.Logger
	Handler EventHandler

	mu        sync.Mutex
	events    []Event
	watcher   *fsnotify.Watcher
	debounce  map[string]*time.Timer
	startedAt time.Time
	running   bool
	wg        sync.WaitGroup
}

// New creates a new Watcher with the given configuration.
func New(config WatchConfig) (*Watcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}

	if config.Debounce <= 0 {
		config.Debounce = 500
	}
	if config.IgnoreDirs == nil {
		config.IgnoreDirs = DefaultIgnoreDirs
	}

	return &Watcher{
		Config:   config,
		Logger:   slog.New(slog.DiscardHandler),
		watcher:  fsw,
		debounce: make(map[string]*time.Timer),
	}, nil
}

// Start begins watching the configured directories. It blocks until the
// context is cancelled, then waits for running handlers to return.
func (w *Watcher) Start(ctx context.Context) error {
	for _, dir := range w.Config.Directories {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("could not resolve %s: %w", dir, err)
		}

		if w.Config.Recursive {
			if err := w.addRecursive(absDir); err != nil {
				return err
			}
		} else if err := w.watcher.Add(absDir); err != nil {
			return fmt.Errorf("could not watch %s: %w", absDir, err)
		}
	}

	w.mu.Lock()
	w.running = true
	w.startedAt = time.Now()
	w.mu.Unlock()

	w.Logger.Info("watching", "directories", len(w.Config.Directories), "rules", len(w.Config.Rules))

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("stopping watcher")
			w.stop()
			return w.watcher.Close()
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.stop()
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.stop()
				return nil
			}
			w.Logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, timer := range w.debounce {
		if timer.Stop() {
			w.wg.Done()
		}
		delete(w.debounce, path)
	}
	w.running = false
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && (w.ignoredDir(d.Name()) || w.ignoredPath(path)) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) ignoredDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, ignored := range w.Config.IgnoreDirs {
		if strings.EqualFold(name, ignored) {
			return true
		}
	}
	return false
}

func (w *Watcher) ignoredPath(path string) bool {
	for _, dir := range w.Config.IgnorePaths {
		if Within(path, dir) {
			return true
		}
	}
	return false
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) && w.Config.Recursive {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.ignoredDir(filepath.Base(path)) && !w.ignoredPath(path) {
				if err := w.addRecursive(path); err != nil {
					w.Logger.Warn("could not watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !isCandidate(path) || w.ignoredDir(filepath.Base(filepath.Dir(path))) || w.ignoredPath(path) {
		return
	}

	// Every new write restarts the quiet period.
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if timer, ok := w.debounce[path]; ok && timer.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	op := event.Op.String()
	var timer *time.Timer
	timer = time.AfterFunc(time.Duration(w.Config.Debounce)*time.Millisecond, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.debounce[path] == timer {
			delete(w.debounce, path)
		}
		w.mu.Unlock()
		w.processFile(ctx, path, op)
	})
	w.debounce[path] = timer
}

// isCandidate filters out office lock files and hidden temporaries.
func isCandidate(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false
	}
	return true
}

func (w *Watcher) processFile(ctx context.Context, path string, operation string) {
	if _, err := os.Stat(path); err != nil {
		return // gone before it settled
	}

	for _, rule := range w.Config.Rules {
		if !rule.Enabled || !w.matchesRule(path, rule) {
			continue
		}

		evt := Event{
			Time:      time.Now(),
			Path:      path,
			Operation: operation,
			RuleID:    rule.ID,
			Status:    "processed",
		}

		if w.Handler != nil {
			if err := w.Handler(ctx, path, rule); err != nil {
				evt.Status = "error"
				evt.Error = err.Error()
				w.Logger.Error("could not process file", "path", path, "rule", rule.ID, "error", err)
			} else {
				w.Logger.Info("processed", "path", path, "rule", rule.ID)
			}
		} else {
			w.Logger.Info("matched", "path", path, "rule", rule.ID)
		}

		w.record(evt)
		return
	}

	w.record(Event{
		Time:      time.Now(),
		Path:      path,
		Operation: operation,
		Status:    "skipped",
	})
}

func (w *Watcher) record(evt Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, evt)
	if len(w.events) > maxEvents {
		w.events = w.events[len(w.events)-maxEvents:]
	}
}

func (w *Watcher) matchesRule(path string, rule Rule) bool {
	ext := strings.ToLower(filepath.Ext(path))

	exts := rule.Extensions
	if len(exts) == 0 {
		exts = []string{".xlsx"}
	}
	matched := false
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.ToLower(e) == ext {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	if rule.Pattern != "" {
		matched, _ := filepath.Match(strings.ToLower(rule.Pattern), strings.ToLower(filepath.Base(path)))
		if !matched {
			return false
		}
	}

	return true
}

// GetStatus returns the current watcher status.
func (w *Watcher) GetStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{
		Running:     w.running,
		Directories: w.Config.Directories,
		Rules:       len(w.Config.Rules),
		EventCount:  len(w.events),
	}
	if !w.startedAt.IsZero() {
		s.StartedAt = w.startedAt.Format(time.RFC3339)
	}
	return s
}

// GetEvents returns the recorded events, oldest first.
func (w *Watcher) GetEvents() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := make([]Event, len(w.events))
	copy(events, w.events)
	return events
}

// DefaultRules picks up every .xlsx file and selects the profile by name.
func DefaultRules() []Rule {
	return []Rule{{ID: "price-lists", Extensions: []string{".xlsx"}, Enabled: true}}
}

const (
	pidFile    = "watch.pid"
	configFile = "watch-config.json"
)

// WritePIDFile writes the current process ID to the PID file in the given directory.
func WritePIDFile(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, pidFile), []byte(fmt.Sprintf("%d", os.Getpid())), 0o644)
}

// ReadPIDFile reads the PID from the PID file.
func ReadPIDFile(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

// RemovePIDFile removes the PID file.
func RemovePIDFile(dir string) error {
	return os.Remove(filepath.Join(dir, pidFile))
}

// SaveConfig writes the watcher config to a JSON file.
func SaveConfig(dir string, config WatchConfig) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, configFile), data, 0o644)
}

// LoadConfig reads the watcher config from a JSON file.
func LoadConfig(dir string) (*WatchConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		return nil, err
	}
	var config WatchConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("invalid watch config: %w", err)
	}
	return &config, nil
}

// DefaultConfigDir returns the default state directory for the watcher.
func DefaultConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pricekit")
}
