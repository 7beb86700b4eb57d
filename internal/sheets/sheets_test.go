package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klytics/pricekit/internal/formats/xlsx"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		cfg     Config
		wantErr bool
	}{
		{Config{SpreadsheetID: "abc"}, false},
		{Config{}, true},
		{Config{SpreadsheetID: "abc", Mode: ModeValues}, true},
		{Config{SpreadsheetID: "abc", Mode: ModeValues, APIKey: "k"}, false},
		{Config{SpreadsheetID: "abc", Mode: "csv"}, true},
	}
	for _, tt := range tests {
		err := tt.cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) = %v, wantErr %v", tt.cfg, err, tt.wantErr)
		}
	}
}

func TestExportFile(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotAuth = r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization")
		w.Write([]byte("PK-fake-xlsx"))
	}))
	defer srv.Close()

	e := NewExporter(Config{SpreadsheetID: "sheet-123", Token: "tok", ExportURL: srv.URL})
	e.Now = fixedNow

	dir := t.TempDir()
	exp, err := e.Export(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/spreadsheets/d/sheet-123/export" || gotQuery != "format=xlsx" {
		t.Errorf("request = %s?%s", gotPath, gotQuery)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if want := filepath.Join(dir, "CifrovoyRay_20260301_093000.xlsx"); exp.Path != want {
		t.Errorf("Path = %q, want %q", exp.Path, want)
	}
	data, err := os.ReadFile(exp.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "PK-fake-xlsx" {
		t.Errorf("content = %q", data)
	}
	if len(exp.Digest) != 64 {
		t.Errorf("Digest = %q", exp.Digest)
	}
}

func TestExportHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no access", http.StatusForbidden)
	}))
	defer srv.Close()

	e := NewExporter(Config{SpreadsheetID: "x", ExportURL: srv.URL})
	dir := t.TempDir()
	_, err := e.Export(context.Background(), dir)
	if err == nil || !strings.Contains(err.Error(), "HTTP 403") {
		t.Fatalf("expected HTTP 403 error, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files after failed export, got %d", len(entries))
	}
}

func TestExportValues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v4/spreadsheets/book/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("missing api key in %s", r.URL)
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "'Phones'"):
			json.NewEncoder(w).Encode(map[string]any{"values": []any{
				[]any{"Model", "", "", "Price"},
				[]any{"X1", "", "", 100},
				[]any{"X2", "", "", 12.5},
				[]any{"X3", "", "", "N/A"},
			}})
		case strings.HasSuffix(r.URL.Path, "'Empty'"):
			json.NewEncoder(w).Encode(map[string]any{})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	mux.HandleFunc("/v4/spreadsheets/book", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"sheets": []any{
			map[string]any{"properties": map[string]any{"title": "Phones"}},
			map[string]any{"properties": map[string]any{"title": "Empty"}},
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewExporter(Config{SpreadsheetID: "book", Mode: ModeValues, APIKey: "k", APIURL: srv.URL, Prefix: "Shared"})
	e.Now = fixedNow

	exp, err := e.Export(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(exp.Path) != "Shared_20260301_093000.xlsx" {
		t.Errorf("Path = %q", exp.Path)
	}

	sheets, err := xlsx.ListSheets(exp.Path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sheets) != 1 || sheets[0] != "Phones" {
		t.Errorf("sheets = %v", sheets)
	}

	cells, err := xlsx.ReadPrices(exp.Path, "Phones", 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 3 || !cells[0].Numeric || !cells[1].Numeric || cells[2].Numeric {
		t.Fatalf("unexpected price cells: %+v", cells)
	}
	if *cells[1].Value != 12.5 {
		t.Errorf("X2 price = %v", *cells[1].Value)
	}
}

func TestCellText(t *testing.T) {
	tests := map[any]string{
		nil:                 "",
		"abc":               "abc",
		json.Number("1e3"):  "1000",
		json.Number("12.5"): "12.5",
		true:                "TRUE",
	}
	for in, want := range tests {
		if got := cellText(in); got != want {
			t.Errorf("cellText(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestPollSkipsUnchanged(t *testing.T) {
	var version atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if version.Load() == 0 {
			w.Write([]byte("first"))
		} else {
			w.Write([]byte("second"))
		}
	}))
	defer srv.Close()

	tick := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := NewExporter(Config{SpreadsheetID: "x", ExportURL: srv.URL})
	e.Now = func() time.Time { tick = tick.Add(time.Minute); return tick }

	var handled []string
	dir := t.TempDir()
	p := &Poller{Exporter: e, Dir: dir, Handler: func(ctx context.Context, path string) error {
		handled = append(handled, path)
		return nil
	}}

	ctx := context.Background()
	for i, want := range []bool{true, false} {
		changed, err := p.Poll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if changed != want {
			t.Errorf("poll %d: changed = %v, want %v", i, changed, want)
		}
	}

	version.Store(1)
	if changed, err := p.Poll(ctx); err != nil || !changed {
		t.Errorf("poll after change: changed=%v err=%v", changed, err)
	}

	if len(handled) != 2 {
		t.Errorf("expected 2 handled exports, got %d", len(handled))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("duplicate export should be removed, found %d files", len(entries))
	}
}

func TestPollRetriesAfterHandlerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("same"))
	}))
	defer srv.Close()

	e := NewExporter(Config{SpreadsheetID: "x", ExportURL: srv.URL})
	calls := 0
	p := &Poller{Exporter: e, Dir: t.TempDir(), Handler: func(ctx context.Context, path string) error {
		calls++
		if calls == 1 {
			return errors.New("telegram down")
		}
		return nil
	}}

	if _, err := p.Poll(context.Background()); err == nil {
		t.Fatal("expected handler error")
	}
	changed, err := p.Poll(context.Background())
	if err != nil || !changed {
		t.Errorf("expected retry of unchanged content, changed=%v err=%v", changed, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	p := &Poller{
		Exporter: NewExporter(Config{SpreadsheetID: "x", ExportURL: srv.URL}),
		Dir:      t.TempDir(),
		Interval: time.Hour,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if hits.Load() != 1 {
		t.Errorf("expected one immediate export, got %d", hits.Load())
	}
}
