package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klytics/pricekit/internal/formats/xlsx"
	"github.com/klytics/pricekit/internal/formats/xlsx/xlsxtest"
	"github.com/klytics/pricekit/internal/journal"
	"github.com/klytics/pricekit/internal/profile"
	"github.com/klytics/pricekit/internal/publish"
	"github.com/klytics/pricekit/internal/reprice"
)

type recordingPublisher struct {
	mu    sync.Mutex
	items []publish.Item
	err   error
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(_ context.Context, item publish.Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	data, err := os.ReadFile(item.Path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("empty file")
	}
	p.items = append(p.items, item)
	return nil
}

func priceList(t *testing.T, dir, name string, sheets ...string) string {
	t.Helper()
	if len(sheets) == 0 {
		sheets = []string{"Prices"}
	}
	var ss []xlsxtest.Sheet
	for _, s := range sheets {
		ss = append(ss, xlsxtest.Sheet{Name: s, Rows: []string{
			xlsxtest.Row(5, xlsxtest.Shared("D5", 1)),
			xlsxtest.Row(6, xlsxtest.Num("D6", "100")),
			xlsxtest.Row(7, xlsxtest.Num("D7", "250")),
		}})
	}
	path := filepath.Join(dir, name)
	xlsxtest.WritePriceList(t, path, ss...)
	return path
}

func newRunner(t *testing.T, pub publish.Publisher) (*Runner, string) {
	t.Helper()
	sel, err := profile.NewSelector(profile.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	journalPath := filepath.Join(t.TempDir(), "journal.jsonl")
	r := NewRunner(&reprice.Processor{TempDir: t.TempDir()}, sel, pub, journal.New(journalPath, true), nil)
	r.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r, journalPath
}

func TestHandleStandardProfile(t *testing.T) {
	inbox := t.TempDir()
	in := priceList(t, inbox, "Benks 01.03.xlsx")

	pub := &recordingPublisher{}
	r, journalPath := newRunner(t, pub)
	r.KeepFiles = true

	out, err := r.Handle(context.Background(), Intake{Path: in, Source: "inbox"})
	if err != nil {
		t.Fatal(err)
	}

	if out.Profile != "xtreme_case" || out.Markup != 200 {
		t.Errorf("profile = %s markup = %v", out.Profile, out.Markup)
	}
	if out.Updated != 2 || out.Fallback {
		t.Errorf("updated = %d fallback = %v", out.Updated, out.Fallback)
	}
	want := filepath.Join(inbox, "processed_files", "Benks 01.03_Update.xlsx")
	if got := out.Outputs(); len(got) != 1 || got[0] != want {
		t.Fatalf("outputs = %v, want %s", got, want)
	}

	cells, err := xlsx.ReadPrices(want, "", 4, 5)
	if err != nil {
		t.Fatal(err)
	}
	if cells[0].Text != "300" || cells[1].Text != "450" {
		t.Errorf("prices = %s, %s", cells[0].Text, cells[1].Text)
	}

	if len(pub.items) != 1 || !strings.Contains(pub.items[0].Caption, "Source file: Benks 01.03.xlsx") {
		t.Errorf("published = %+v", pub.items)
	}

	entries, err := journal.Read(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != journal.StatusOK || entries[0].Updated != 2 {
		t.Errorf("journal = %+v", entries)
	}
	if s := r.Stats(); s.Processed != 1 || s.Errors != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestHandleSplitProfile(t *testing.T) {
	in := priceList(t, t.TempDir(), "CR prices.xlsx", "Phones", "Cases")
	outDir := t.TempDir()

	pub := &recordingPublisher{}
	r, _ := newRunner(t, pub)
	r.OutputDir = outDir
	r.KeepFiles = true

	out, err := r.Handle(context.Background(), Intake{Path: in, Source: "inbox"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Profile != "cifrovoy_ray" {
		t.Fatalf("profile = %s", out.Profile)
	}
	if len(out.Results) != 2 || out.Updated != 4 {
		t.Fatalf("results = %d updated = %d", len(out.Results), out.Updated)
	}
	for _, res := range out.Results {
		if filepath.Dir(res.Output) != filepath.Join(outDir, "CR prices_Update") {
			t.Errorf("output %s outside split directory", res.Output)
		}
	}
	if len(pub.items) != 2 || !strings.Contains(pub.items[1].Caption, "(Cases)") {
		t.Errorf("published = %+v", pub.items)
	}
}

func TestHandleSkipsNonXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(path, []byte("hello"), 0o644)

	r, journalPath := newRunner(t, nil)
	out, err := r.Handle(context.Background(), Intake{Path: path, Source: "inbox"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Skipped == "" {
		t.Error("expected skip reason")
	}
	if s := r.Stats(); s.Skipped != 1 || s.Processed != 0 {
		t.Errorf("stats = %+v", s)
	}
	entries, _ := journal.Read(journalPath)
	if len(entries) != 1 || entries[0].Status != journal.StatusSkipped {
		t.Errorf("journal = %+v", entries)
	}
}

func TestHandleCorruptedFileFallsBack(t *testing.T) {
	inbox := t.TempDir()
	path := filepath.Join(inbox, "broken.xlsx")
	os.WriteFile(path, []byte("not a zip"), 0o644)

	r, journalPath := newRunner(t, nil)
	out, err := r.Handle(context.Background(), Intake{Path: path, Source: "inbox"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Fallback || out.Updated != 0 {
		t.Errorf("fallback = %v updated = %d", out.Fallback, out.Updated)
	}
	data, err := os.ReadFile(out.Outputs()[0])
	if err != nil || string(data) != "not a zip" {
		t.Errorf("fallback output = %q, %v", data, err)
	}
	entries, _ := journal.Read(journalPath)
	if len(entries) != 1 || entries[0].Status != journal.StatusFallback {
		t.Errorf("journal = %+v", entries)
	}
}

func TestHandlePublishError(t *testing.T) {
	in := priceList(t, t.TempDir(), "prices.xlsx")

	r, journalPath := newRunner(t, &recordingPublisher{err: errors.New("network down")})
	_, err := r.Handle(context.Background(), Intake{Path: in, Source: "sheets"})
	if err == nil || !strings.Contains(err.Error(), "network down") {
		t.Fatalf("expected publish error, got %v", err)
	}
	if s := r.Stats(); s.Errors != 1 {
		t.Errorf("stats = %+v", s)
	}
	entries, _ := journal.Read(journalPath)
	if len(entries) != 1 || entries[0].Status != journal.StatusError || entries[0].Error == "" {
		t.Errorf("journal = %+v", entries)
	}
}

func TestHandleForcedProfile(t *testing.T) {
	in := priceList(t, t.TempDir(), "Benks.xlsx")

	r, _ := newRunner(t, nil)
	out, err := r.Handle(context.Background(), Intake{Path: in, Source: "cli", Profile: "default"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Profile != "default" || out.Markup != 50 {
		t.Errorf("profile = %s markup = %v", out.Profile, out.Markup)
	}

	if _, err := r.Handle(context.Background(), Intake{Path: in, Source: "cli", Profile: "nope"}); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestHandleCleansUpDeliveredFiles(t *testing.T) {
	tmp := t.TempDir()
	in := priceList(t, tmp, "CifrovoyRay_20260301_120000.xlsx", "Only")

	pub := &recordingPublisher{}
	r, _ := newRunner(t, pub)
	r.OutputDir = t.TempDir()

	out, err := r.Handle(context.Background(), Intake{Path: in, Source: "sheets", Temporary: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(in); !os.IsNotExist(err) {
		t.Error("temporary input should be removed")
	}
	for _, path := range out.Outputs() {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("delivered output %s should be removed", path)
		}
	}
	if len(pub.items) != 1 {
		t.Errorf("published %d items", len(pub.items))
	}
}

func TestHandleKeepsUndeliveredOutputs(t *testing.T) {
	in := priceList(t, t.TempDir(), "prices.xlsx")

	r, _ := newRunner(t, publish.Discard{})
	out, err := r.Handle(context.Background(), Intake{Path: in, Source: "cli"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Published {
		t.Error("discard publisher should not count as published")
	}
	if _, err := os.Stat(out.Outputs()[0]); err != nil {
		t.Errorf("output should be kept: %v", err)
	}
	if _, err := os.Stat(in); err != nil {
		t.Errorf("non-temporary input should be kept: %v", err)
	}
}

func TestStatsUptime(t *testing.T) {
	s := Stats{Started: time.Now().Add(-90 * time.Minute)}
	if up := s.Uptime(); up < 89*time.Minute || up > 91*time.Minute {
		t.Errorf("uptime = %s", up)
	}
}
