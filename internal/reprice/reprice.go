// Package reprice adds a fixed markup to the price column of .xlsx price
// lists while leaving every other part of the archive untouched.
//
// A run copies the input to the output path first. If anything goes wrong
// after that copy, the copy is left in place and the Result reports a
// fallback instead of an error, so callers always have a file to forward.
package reprice

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klytics/pricekit/internal/formats/xlsx"
)

const (
	// DefaultPriceColumn is column D.
	DefaultPriceColumn = 4
	// DefaultHeaderRow is the last row of the price list header.
	DefaultHeaderRow = 5
	// DefaultOutputSubdir is where DefaultOutputPath puts results.
	DefaultOutputSubdir = "processed_files"
)

// Request describes one repricing run.
type Request struct {
	InputPath   string  `json:"input"`
	OutputPath  string  `json:"output"`
	Markup      float64 `json:"markup"`
	PriceColumn int     `json:"price_column"`
	HeaderRow   int     `json:"header_row"`
}

// RequestError reports an invalid Request field.
type RequestError struct {
	Field   string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks the request parameters. It does not touch the filesystem.
func (r Request) Validate() error {
	if r.InputPath == "" {
		return &RequestError{Field: "input", Message: "no input file given"}
	}
	if r.OutputPath == "" {
		return &RequestError{Field: "output", Message: "no output file given"}
	}
	if samePath(r.InputPath, r.OutputPath) {
		return &RequestError{Field: "output", Message: "output must differ from the input file"}
	}
	if math.IsNaN(r.Markup) || math.IsInf(r.Markup, 0) {
		return &RequestError{Field: "markup", Message: "must be a finite number"}
	}
	if r.PriceColumn < 1 {
		return &RequestError{Field: "price column", Message: fmt.Sprintf("%d is not a positive column index", r.PriceColumn)}
	}
	if r.HeaderRow < 0 {
		return &RequestError{Field: "header row", Message: fmt.Sprintf("%d must not be negative", r.HeaderRow)}
	}
	return nil
}

// SheetCount is the number of cells changed in one worksheet part.
type SheetCount struct {
	Part    string `json:"part"`
	Updated int    `json:"updated"`
}

// Result is the outcome of one repricing run.
type Result struct {
	Input   string       `json:"input"`
	Output  string       `json:"output"`
	Sheet   string       `json:"sheet,omitempty"`
	Updated int          `json:"updated"`
	Sheets  []SheetCount `json:"sheets,omitempty"`
	// Fallback is set when the output is an unmodified copy of the input.
	Fallback bool   `json:"fallback,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Processor runs repricing requests. The zero value is ready to use; it
// holds no state between calls, so one Processor may serve concurrent
// requests as long as their output paths differ.
type Processor struct {
	// Logger receives fallback warnings and progress details. Nil discards.
	Logger *slog.Logger
	// TempDir is where scratch directories are created. Empty means os.TempDir().
	TempDir string
}

// Process reprices req.InputPath into req.OutputPath.
//
// Invalid requests and failures to produce the initial copy are returned as
// errors. Later failures, including a panic while rewriting, leave the copy
// in place and are reported through Result.Fallback.
func (p *Processor) Process(req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return nil, fmt.Errorf("could not create output directory: %w", err)
	}
	if err := copyFile(req.InputPath, req.OutputPath); err != nil {
		return nil, err
	}

	log := p.log().With("input", req.InputPath, "output", req.OutputPath)
	log.Debug("repricing", "markup", req.Markup, "column", xlsx.ColumnLetter(req.PriceColumn), "header_row", req.HeaderRow)

	res := &Result{Input: req.InputPath, Output: req.OutputPath}
	counts, err := p.rewrite(req, log)
	if err != nil {
		log.Warn("price update failed, output is an unmodified copy", "error", err)
		res.Fallback = true
		res.Reason = err.Error()
		return res, nil
	}

	res.Sheets = counts
	for _, c := range counts {
		res.Updated += c.Updated
	}
	log.Debug("repriced", "updated", res.Updated, "parts", len(counts))
	return res, nil
}

// rewrite does everything after the initial copy. The output file is only
// replaced by a rename once the new archive is complete.
func (p *Processor) rewrite(req Request, log *slog.Logger) (counts []SheetCount, err error) {
	defer func() {
		if r := recover(); r != nil {
			counts, err = nil, fmt.Errorf("unexpected failure: %v", r)
		}
	}()

	a, err := xlsx.Extract(req.InputPath, p.TempDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			log.Debug("could not remove scratch directory", "error", cerr)
		}
	}()

	parts, err := a.Worksheets()
	if err != nil {
		return nil, err
	}
	log.Debug("extracted", "members", len(a.Members()), "worksheets", len(parts))
	for _, part := range parts {
		n, err := xlsx.RewriteWorksheet(part, req.Markup, req.PriceColumn, req.HeaderRow)
		if err != nil {
			return nil, err
		}
		name := part
		if rel, err := filepath.Rel(a.Dir, part); err == nil {
			name = filepath.ToSlash(rel)
		}
		counts = append(counts, SheetCount{Part: name, Updated: n})
	}

	tmp, err := os.CreateTemp(filepath.Dir(req.OutputPath), "."+filepath.Base(req.OutputPath)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("could not create temporary output: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()

	if err := a.Repack(tmpName); err != nil {
		os.Remove(tmpName)
		return nil, err
	}
	// Same mode as the fallback copy already at the output path.
	mode := os.FileMode(0o644)
	if info, err := os.Stat(req.OutputPath); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("could not set mode of %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, req.OutputPath); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("could not replace %s: %w", req.OutputPath, err)
	}
	return counts, nil
}

// ProcessSplit splits the workbook at req.InputPath into one file per sheet
// and reprices each of them into outDir as <sheet>.xlsx. req.OutputPath is
// ignored. Each Result carries the count of its own sheet only.
func (p *Processor) ProcessSplit(req Request, outDir string) ([]*Result, error) {
	if outDir == "" {
		return nil, &RequestError{Field: "output directory", Message: "no output directory given"}
	}

	work, err := os.MkdirTemp(p.TempDir, "pricekit-split-*")
	if err != nil {
		return nil, fmt.Errorf("could not create scratch directory: %w", err)
	}
	defer os.RemoveAll(work)

	copies, err := xlsx.SplitSheets(req.InputPath, work)
	if err != nil {
		return nil, fmt.Errorf("could not split %s: %w", req.InputPath, err)
	}

	results := make([]*Result, 0, len(copies))
	for _, c := range copies {
		sheetReq := req
		sheetReq.InputPath = c.Path
		sheetReq.OutputPath = filepath.Join(outDir, filepath.Base(c.Path))

		res, err := p.Process(sheetReq)
		if err != nil {
			return results, fmt.Errorf("sheet %q: %w", c.Sheet, err)
		}
		res.Sheet = c.Sheet
		p.log().Info("sheet repriced", "sheet", c.Sheet, "output", res.Output, "updated", res.Updated)
		results = append(results, res)
	}
	return results, nil
}

// DefaultOutputPath returns <dir>/<subdir>/<name>_Update<ext> for an input
// file. An empty subdir means DefaultOutputSubdir.
func DefaultOutputPath(input, subdir string) string {
	if subdir == "" {
		subdir = DefaultOutputSubdir
	}
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(filepath.Dir(input), subdir, name+"_Update"+ext)
}

func (p *Processor) log() *slog.Logger {
	if p == nil || p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s — check that the path is correct", src)
		}
		return fmt.Errorf("could not read %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("could not stat %s: %w", src, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", src)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("could not copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("could not write %s: %w", dst, err)
	}
	return nil
}
