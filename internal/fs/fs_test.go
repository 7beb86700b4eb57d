package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
}

// --- Scanner Tests ---

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		isDir bool
		want  string
	}{
		{"Benks 01.03.xlsx", false, KindPriceList},
		{"PRICES.XLSX", false, KindPriceList},
		{"Benks 01.03_Update.xlsx", false, KindProcessed},
		{"~$Benks.xlsx", false, KindLock},
		{"out.xlsx.part", false, KindPartial},
		{".out.xlsx.123456.tmp", false, KindPartial},
		{"notes.tmp", false, ""},
		{"readme.txt", false, ""},
		{"pricekit-xlsx-123", true, KindScratch},
		{"processed_files", true, ""},
	}
	for _, tt := range tests {
		if got := Classify(tt.name, tt.isDir); got != tt.want {
			t.Errorf("Classify(%q, %v) = %q, want %q", tt.name, tt.isDir, got, tt.want)
		}
	}
}

func TestScanEmpty(t *testing.T) {
	result, err := Scan(t.TempDir(), ScanOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Files) != 0 {
		t.Errorf("expected 0 files, got %d", len(result.Files))
	}
}

func TestScanClassifies(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "Benks.xlsx", "list")
	createTestFile(t, dir, "~$Benks.xlsx", "lock")
	createTestFile(t, dir, "readme.txt", "ignored")
	createTestFile(t, dir, "pricekit-xlsx-1/xl/worksheets/sheet1.xml", "12345")

	result, err := Scan(dir, ScanOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Files) != 3 {
		t.Fatalf("expected 3 entries, got %+v", result.Files)
	}
	if result.ByKind[KindScratch] != 1 || result.ByKind[KindLock] != 1 || result.ByKind[KindPriceList] != 1 {
		t.Errorf("by kind = %v", result.ByKind)
	}
	for _, f := range result.Files {
		if f.Kind == KindScratch && (f.Size != 5 || !f.IsDir) {
			t.Errorf("scratch dir = %+v", f)
		}
	}
}

func TestScanRecursive(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "top.xlsx", "a")
	createTestFile(t, dir, "processed_files/top_Update.xlsx", "b")

	flat, err := Scan(dir, ScanOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(flat.Files) != 1 {
		t.Errorf("non-recursive: expected 1 file, got %d", len(flat.Files))
	}

	deep, err := Scan(dir, ScanOptions{Recursive: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(deep.Files) != 2 || deep.ByKind[KindProcessed] != 1 {
		t.Errorf("recursive: got %+v", deep.Files)
	}

	skipped, err := Scan(dir, ScanOptions{Recursive: true, SkipDirs: []string{"processed_files"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(skipped.Files) != 1 {
		t.Errorf("skip dirs: expected 1 file, got %d", len(skipped.Files))
	}
}

func TestScanFilterKind(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.xlsx", "a")
	createTestFile(t, dir, "b.xlsx.part", "b")

	result, err := Scan(dir, ScanOptions{Kinds: []string{KindPartial}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Files) != 1 || result.Files[0].Name != "b.xlsx.part" {
		t.Errorf("got %+v", result.Files)
	}
}

func TestScanModBefore(t *testing.T) {
	dir := t.TempDir()
	old := createTestFile(t, dir, "old.xlsx", "a")
	createTestFile(t, dir, "new.xlsx", "b")
	age(t, old, 48*time.Hour)

	result, err := Scan(dir, ScanOptions{ModBefore: time.Now().Add(-24 * time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Files) != 1 || result.Files[0].Name != "old.xlsx" {
		t.Errorf("got %+v", result.Files)
	}
}

func TestScanWithHash(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.xlsx", "hello")

	result, err := Scan(dir, ScanOptions{WithHash: true})
	if err != nil {
		t.Fatal(err)
	}
	if result.Files[0].SHA256 != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Errorf("hash = %s", result.Files[0].SHA256)
	}
}

func TestScanNotDir(t *testing.T) {
	path := createTestFile(t, t.TempDir(), "file.xlsx", "x")
	if _, err := Scan(path, ScanOptions{}); err == nil {
		t.Error("expected error for non-directory")
	}
}

// --- Cleanup Tests ---

func TestStaleFiles(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	files := []FileInfo{
		{Path: "/t/old.xlsx", ModifiedAt: now.Add(-30 * time.Hour)},
		{Path: "/t/recent.xlsx", ModifiedAt: now.Add(-1 * time.Hour)},
		{Path: "/t/ancient.xlsx", ModifiedAt: now.Add(-72 * time.Hour)},
	}

	stale := StaleFiles(files, 24*time.Hour, now)
	if len(stale) != 2 {
		t.Fatalf("expected 2 stale files, got %d", len(stale))
	}
	if stale[0].Path != "/t/ancient.xlsx" {
		t.Errorf("expected oldest first, got %q", stale[0].Path)
	}
}

func TestRemoveDryRun(t *testing.T) {
	dir := t.TempDir()
	p := createTestFile(t, dir, "a.xlsx.part", "x")

	results := Remove([]FileInfo{{Path: p, Kind: KindPartial, Size: 1}}, true)
	if len(results) != 1 || results[0].Applied {
		t.Errorf("dry run results = %+v", results)
	}
	if _, err := os.Stat(p); err != nil {
		t.Error("file should still exist in dry run")
	}
	if Freed(results) != 0 {
		t.Error("dry run frees nothing")
	}
}

func TestRemoveApply(t *testing.T) {
	dir := t.TempDir()
	file := createTestFile(t, dir, "a.xlsx.part", "xx")
	createTestFile(t, dir, "pricekit-split-1/sheet.xlsx", "yyy")
	scratch := filepath.Join(dir, "pricekit-split-1")

	results := Remove([]FileInfo{
		{Path: file, Kind: KindPartial, Size: 2},
		{Path: scratch, Kind: KindScratch, Size: 3, IsDir: true},
	}, false)
	for _, r := range results {
		if !r.Applied {
			t.Errorf("not applied: %+v", r)
		}
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Error("scratch directory should be removed")
	}
	if Freed(results) != 5 {
		t.Errorf("freed = %d", Freed(results))
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1024, "1.0 KB"},
		{1048576, "1.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

// --- Deduper Tests ---

func TestFindDuplicates(t *testing.T) {
	files := []FileInfo{
		{Path: "/in/benks.xlsx", SHA256: "abc123", Size: 1000},
		{Path: "/in/benks (1).xlsx", SHA256: "abc123", Size: 1000},
		{Path: "/in/uniq.xlsx", SHA256: "def456", Size: 2000},
	}

	result := FindDuplicates(files)
	if len(result.Groups) != 1 || result.TotalDupes != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.Groups[0].Files[0].Path != "/in/benks.xlsx" {
		t.Error("first file of a group should be kept in input order")
	}
}

func TestFindDuplicatesNoHash(t *testing.T) {
	files := []FileInfo{
		{Path: "/a/file1.xlsx", Size: 100},
		{Path: "/b/file2.xlsx", Size: 100},
	}
	if result := FindDuplicates(files); len(result.Groups) != 0 {
		t.Errorf("expected no duplicates without hashes")
	}
}

func TestUnique(t *testing.T) {
	files := []FileInfo{
		{Path: "a", SHA256: "1"},
		{Path: "b", SHA256: "2"},
		{Path: "c", SHA256: "1"},
		{Path: "d"},
		{Path: "e"},
	}
	keep, dupes := Unique(files)
	if len(keep) != 4 || len(dupes) != 1 || dupes[0].Path != "c" {
		t.Errorf("keep = %v dupes = %v", keep, dupes)
	}
}

func TestFormatDedupeReport(t *testing.T) {
	result := &DedupeResult{
		Groups: []DuplicateGroup{
			{SHA256: "abc", Size: 1024, Files: []FileInfo{{Path: "/a/file.xlsx"}, {Path: "/b/file.xlsx"}}},
		},
		TotalDupes: 1,
	}
	report := FormatDedupeReport(result)
	if !strings.Contains(report, "1 duplicate groups") || !strings.Contains(report, "* /a/file.xlsx") {
		t.Errorf("unexpected report: %s", report)
	}
	if got := FormatDedupeReport(&DedupeResult{}); got != "No duplicates found" {
		t.Errorf("unexpected report: %s", got)
	}
}
