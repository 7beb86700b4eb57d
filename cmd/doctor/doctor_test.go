package doctor

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/klytics/pricekit/internal/config"
	"github.com/klytics/pricekit/internal/profile"
	"github.com/klytics/pricekit/internal/publish"
)

func findCheck(checks []Check, name string) (Check, bool) {
	for _, c := range checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

func TestRunChecksDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tmp := t.TempDir()

	cfg := &config.Config{
		TempDir:  filepath.Join(tmp, "temp"),
		Profiles: profile.Defaults(),
		Journal:  config.JournalConfig{Enabled: true, Path: filepath.Join(tmp, "journal.jsonl")},
	}
	checks := runChecks(cfg)

	want := map[string]string{
		"Go Runtime":         "ok",
		"Config Directory":   "warning",
		"Config File":        "warning",
		"Temp Directory":     "ok",
		"Journal":            "ok",
		"Profiles":           "ok",
		"Publisher":          "warning",
		"Watch Directories":  "warning",
		"Spreadsheet Source": "warning",
		"Watcher":            "ok",
	}
	for name, status := range want {
		c, ok := findCheck(checks, name)
		if !ok {
			t.Errorf("missing check %q", name)
			continue
		}
		if c.Status != status {
			t.Errorf("%s: expected %s, got %s (%s)", name, status, c.Status, c.Message)
		}
	}

	if _, err := os.Stat(cfg.TempDir); err != nil {
		t.Errorf("temp dir should be created: %v", err)
	}
}

func TestRunChecksErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tmp := t.TempDir()

	cfg := &config.Config{
		TempDir:  tmp,
		Profiles: []profile.Profile{{Name: "bad", Match: "name contains"}},
		Publish:  publish.Config{Kind: "carrier-pigeon"},
		Watch:    config.WatchConfig{Directories: []string{filepath.Join(tmp, "missing")}},
	}
	checks := runChecks(cfg)

	for _, name := range []string{"Profiles", "Publisher", "Watch Directory"} {
		c, ok := findCheck(checks, name)
		if !ok {
			t.Errorf("missing check %q", name)
			continue
		}
		if c.Status != "error" {
			t.Errorf("%s: expected error, got %s (%s)", name, c.Status, c.Message)
		}
	}
}

func TestCheckWatcherStalePID(t *testing.T) {
	dir := t.TempDir()
	// PIDs near the max are not in use on a test machine.
	if err := os.WriteFile(filepath.Join(dir, "watch.pid"), []byte(strconv.Itoa(4194300)), 0o644); err != nil {
		t.Fatal(err)
	}
	c := checkWatcher(dir)
	if c.Status != "warning" {
		t.Errorf("expected warning for stale PID, got %s (%s)", c.Status, c.Message)
	}
}
