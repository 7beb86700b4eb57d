package journal

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestRecordWritesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	j := New(path, true)
	err := j.Record(Entry{
		Source:  "inbox",
		Input:   "benks.xlsx",
		Outputs: []string{"processed_files/benks_Update.xlsx"},
		Profile: "xtreme_case",
		Markup:  200,
		Updated: 12,
		Status:  StatusOK,
	})
	if err != nil {
		t.Fatal(err)
	}

	entries, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Updated != 12 || entries[0].Profile != "xtreme_case" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be filled in")
	}
}

func TestRecordDisabledIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	j := New(path, false)
	if err := j.Record(Entry{Input: "x.xlsx"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Error("disabled journal should not create file")
	}

	var nilJournal *Journal
	if err := nilJournal.Record(Entry{}); err != nil {
		t.Errorf("nil journal should be a no-op, got %v", err)
	}
}

func TestRecordConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.jsonl")
	j := New(path, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := j.Record(Entry{Input: "f.xlsx", Updated: i, Status: StatusOK}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 20 {
		t.Errorf("expected 20 entries, got %d", len(entries))
	}
}

func TestReadMissingFile(t *testing.T) {
	entries, err := Read(filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Errorf("expected no entries, got %v", entries)
	}
}

func TestReadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	content := `{"input":"a.xlsx","status":"ok"}
not json
{"input":"b.xlsx","status":"error"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
}

func TestFilter(t *testing.T) {
	now := time.Now()
	entries := []Entry{
		{Timestamp: now.Add(-48 * time.Hour), Source: "inbox", Profile: "default", Status: StatusOK},
		{Timestamp: now.Add(-time.Hour), Source: "sheets", Profile: "cifrovoy_ray", Status: StatusOK},
		{Timestamp: now, Source: "Inbox", Profile: "xtreme_case", Status: StatusFallback},
	}

	if got := Filter(entries, Query{Since: now.Add(-2 * time.Hour)}); len(got) != 2 {
		t.Errorf("since: expected 2, got %d", len(got))
	}
	if got := Filter(entries, Query{Source: "inbox"}); len(got) != 2 {
		t.Errorf("source: expected 2, got %d", len(got))
	}
	if got := Filter(entries, Query{Status: StatusFallback}); len(got) != 1 || got[0].Profile != "xtreme_case" {
		t.Errorf("status: unexpected result %+v", got)
	}
	if got := Filter(entries, Query{Profile: "cifrovoy_ray", Until: now.Add(-2 * time.Hour)}); len(got) != 0 {
		t.Errorf("profile+until: expected 0, got %d", len(got))
	}
}

func TestSummarize(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Timestamp: t0.Add(time.Hour), Profile: "default", Updated: 10, Status: StatusOK},
		{Timestamp: t0, Profile: "default", Status: StatusFallback, Fallback: true},
		{Timestamp: t0.Add(2 * time.Hour), Profile: "xtreme_case", Status: StatusError},
		{Timestamp: t0.Add(3 * time.Hour), Status: StatusSkipped},
	}

	s := Summarize(entries)
	if s.Files != 4 || s.Updated != 10 || s.Fallbacks != 1 || s.Errors != 1 || s.Skipped != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.ByProfile["default"] != 2 || s.ByProfile["xtreme_case"] != 1 {
		t.Errorf("unexpected profile counts: %v", s.ByProfile)
	}
	if !s.First.Equal(t0) || !s.Last.Equal(t0.Add(3*time.Hour)) {
		t.Errorf("unexpected range: %v .. %v", s.First, s.Last)
	}
	if got := s.Profiles(); len(got) != 2 || got[0] != "default" {
		t.Errorf("unexpected profiles: %v", got)
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j := New(path, true)
	j.Record(Entry{Input: "a.xlsx"})

	if Size(path) == 0 {
		t.Fatal("expected non-empty journal")
	}
	if err := Clear(path); err != nil {
		t.Fatal(err)
	}
	if Size(path) != 0 {
		t.Error("expected empty journal after Clear")
	}
}
