package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/klytics/pricekit/internal/formats/xlsx"
	"github.com/klytics/pricekit/internal/formats/xlsx/xlsxtest"
)

// run executes the root command in-process and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PRICEKIT_TEMP_DIR", filepath.Join(home, "temp"))
	t.Setenv("PRICEKIT_NO_PROGRESS", "1")
	return home
}

func writePriceList(t *testing.T, path string) {
	t.Helper()
	xlsxtest.WritePriceList(t, path, xlsxtest.Sheet{Name: "Prices", Rows: []string{
		xlsxtest.Row(5, xlsxtest.Shared("D5", 1)),
		xlsxtest.Row(6, xlsxtest.Num("D6", "100")),
		xlsxtest.Row(7, xlsxtest.Num("D7", "99.5")),
	}})
}

func prices(t *testing.T, path string) []string {
	t.Helper()
	cells, err := xlsx.ReadPrices(path, "", 4, 5)
	if err != nil {
		t.Fatalf("read prices of %s: %v", path, err)
	}
	var out []string
	for _, c := range cells {
		out = append(out, c.Text)
	}
	return out
}

func TestAllCommandsExist(t *testing.T) {
	isolate(t)
	stdout, err := run(t, "--help")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		"process", "split", "batch", "inspect", "watch", "sheets", "publish",
		"history", "cleanup", "config", "doctor", "completion", "version",
	} {
		if !strings.Contains(stdout, name) {
			t.Errorf("command %q not found in --help output", name)
		}
	}
}

func TestVersionOutput(t *testing.T) {
	stdout, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout, "pricekit ") {
		t.Errorf("unexpected version output %q", stdout)
	}
}

func TestProcessWithMarkup(t *testing.T) {
	home := isolate(t)
	in := filepath.Join(home, "prices.xlsx")
	out := filepath.Join(home, "out.xlsx")
	writePriceList(t, in)

	stdout, err := run(t, "process", in, "--markup", "10", "-o", out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "2 price(s) updated") {
		t.Errorf("unexpected output:\n%s", stdout)
	}

	got := prices(t, out)
	if len(got) != 2 || got[0] != "110" || got[1] != "109.5" {
		t.Errorf("expected [110 109.5], got %v", got)
	}
	if in := prices(t, in); in[0] != "100" {
		t.Errorf("input must not change, got %v", in)
	}
}

func TestProcessByProfile(t *testing.T) {
	home := isolate(t)
	in := filepath.Join(home, "Benks 01.03.xlsx")
	writePriceList(t, in)

	stdout, err := run(t, "process", in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "xtreme_case") {
		t.Errorf("expected xtreme_case profile:\n%s", stdout)
	}

	out := filepath.Join(home, "processed_files", "Benks 01.03_Update.xlsx")
	if got := prices(t, out); got[0] != "300" {
		t.Errorf("expected 300, got %v", got)
	}

	history, err := run(t, "history", "--summary")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(history, "Files:          1") {
		t.Errorf("journal should hold the run:\n%s", history)
	}
}

func TestProcessRejectsNonXlsx(t *testing.T) {
	isolate(t)
	if _, err := run(t, "process", "prices.csv", "--markup", "1"); err == nil {
		t.Error("expected error for non-xlsx input")
	}
}

func TestProcessCorruptedFallsBack(t *testing.T) {
	home := isolate(t)
	in := filepath.Join(home, "broken.xlsx")
	out := filepath.Join(home, "broken_out.xlsx")
	if err := os.WriteFile(in, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, err := run(t, "process", in, "--markup", "5", "-o", out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "copied unmodified") {
		t.Errorf("expected fallback:\n%s", stdout)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "not a zip" {
		t.Errorf("fallback copy should match the input, got %q (%v)", data, err)
	}
}

func TestConfigPath(t *testing.T) {
	home := isolate(t)
	stdout, err := run(t, "config", "path")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, ".pricekit", "config.yaml"); strings.TrimSpace(stdout) != want {
		t.Errorf("expected %s, got %q", want, stdout)
	}
}
