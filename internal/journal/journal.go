// Package journal keeps a JSON-lines record of every processed price list.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry statuses.
const (
	StatusOK       = "ok"
	StatusFallback = "fallback"
	StatusError    = "error"
	StatusSkipped  = "skipped"
)

// Entry records the outcome of one processed input file.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Input      string    `json:"input"`
	Outputs    []string  `json:"outputs,omitempty"`
	Profile    string    `json:"profile,omitempty"`
	Markup     float64   `json:"markup"`
	Updated    int       `json:"updated"`
	Fallback   bool      `json:"fallback,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Journal appends entries to a file. A disabled Journal drops them.
type Journal struct {
	FilePath string
	Enabled  bool

	mu sync.Mutex
}

// New creates a Journal writing to filePath.
func New(filePath string, enabled bool) *Journal {
	return &Journal{FilePath: filePath, Enabled: enabled}
}

// Record appends one entry. The timestamp is filled in when zero.
func (j *Journal) Record(entry Entry) error {
	if j == nil || !j.Enabled || j.FilePath == "" {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("could not encode journal entry: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.FilePath), 0o755); err != nil {
		return fmt.Errorf("could not create journal directory: %w", err)
	}
	f, err := os.OpenFile(j.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("could not open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("could not write journal: %w", err)
	}
	return nil
}

// Read returns all entries in the journal file. A missing file is empty.
func Read(filePath string) ([]Entry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Query selects journal entries. Zero fields match everything.
type Query struct {
	Since   time.Time
	Until   time.Time
	Source  string
	Profile string
	Status  string
}

// Filter returns the entries matching q.
func Filter(entries []Entry, q Query) []Entry {
	var result []Entry
	for _, e := range entries {
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			continue
		}
		if q.Source != "" && !strings.Contains(strings.ToLower(e.Source), strings.ToLower(q.Source)) {
			continue
		}
		if q.Profile != "" && e.Profile != q.Profile {
			continue
		}
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		result = append(result, e)
	}
	return result
}

// Summary aggregates journal entries.
type Summary struct {
	Files     int            `json:"files"`
	Updated   int            `json:"updated"`
	Fallbacks int            `json:"fallbacks"`
	Errors    int            `json:"errors"`
	Skipped   int            `json:"skipped"`
	ByProfile map[string]int `json:"by_profile"`
	First     time.Time      `json:"first,omitempty"`
	Last      time.Time      `json:"last,omitempty"`
}

// Summarize counts entries by status and profile.
func Summarize(entries []Entry) Summary {
	s := Summary{ByProfile: make(map[string]int)}
	for _, e := range entries {
		s.Files++
		s.Updated += e.Updated
		switch e.Status {
		case StatusFallback:
			s.Fallbacks++
		case StatusError:
			s.Errors++
		case StatusSkipped:
			s.Skipped++
		}
		if e.Profile != "" {
			s.ByProfile[e.Profile]++
		}
		if s.First.IsZero() || e.Timestamp.Before(s.First) {
			s.First = e.Timestamp
		}
		if e.Timestamp.After(s.Last) {
			s.Last = e.Timestamp
		}
	}
	return s
}

// Profiles returns the profile names of a summary, sorted.
func (s Summary) Profiles() []string {
	names := make([]string, 0, len(s.ByProfile))
	for name := range s.ByProfile {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size returns the size of the journal in bytes, or 0 if not found.
func Size(filePath string) int64 {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Clear truncates the journal file.
func Clear(filePath string) error {
	return os.Truncate(filePath, 0)
}
