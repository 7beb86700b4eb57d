package publish

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klytics/pricekit/internal/journal"
)

func TestCaptionFromJournal(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "processed_files", "Benks_Update.xlsx")
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []journal.Entry{
		{Timestamp: at, Source: "inbox", Input: "Benks.xlsx", Profile: "xtreme_case", Markup: 200, Updated: 7, Outputs: []string{out}},
		{Timestamp: at.Add(time.Hour), Source: "publish", Input: "Benks_Update.xlsx", Outputs: []string{out}},
	}

	got := captionFor(out, "", entries)
	for _, want := range []string{"Source file: Benks.xlsx", "Profile: xtreme_case", "Markup: +200", "Prices updated: 7", "2026-03-01 09:00:00"} {
		if !strings.Contains(got, want) {
			t.Errorf("caption missing %q:\n%s", want, got)
		}
	}

	if got := captionFor(out, "Benks 01.03.xlsx", entries); !strings.Contains(got, "Source file: Benks 01.03.xlsx") {
		t.Errorf("name override not applied:\n%s", got)
	}
}

func TestCaptionWithoutHistory(t *testing.T) {
	got := captionFor("/tmp/other.xlsx", "", nil)
	if got != "Price list: other.xlsx" {
		t.Errorf("unexpected caption %q", got)
	}
}
