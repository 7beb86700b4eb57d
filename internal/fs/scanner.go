// Package fs finds price lists and pricekit's working files on disk.
package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// File kinds reported by Classify.
const (
	KindPriceList = "price list"
	KindProcessed = "processed"
	KindPartial   = "partial"
	KindScratch   = "scratch"
	KindLock      = "lock"
)

// ScratchPrefix starts the names of pricekit's scratch directories.
const ScratchPrefix = "pricekit-"

// FileInfo represents a scanned file or scratch directory.
type FileInfo struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
	SHA256     string    `json:"sha256,omitempty"`
	IsDir      bool      `json:"isDir,omitempty"`
}

// ScanResult holds the results of a directory scan.
type ScanResult struct {
	RootDir   string         `json:"rootDir"`
	Files     []FileInfo     `json:"files"`
	ByKind    map[string]int `json:"byKind"`
	TotalSize int64          `json:"totalSize"`
	ScannedAt time.Time      `json:"scannedAt"`
}

// ScanOptions configures the directory scan.
type ScanOptions struct {
	Recursive bool
	Kinds     []string // filter to these kinds; empty = all
	ModBefore time.Time
	WithHash  bool
	// SkipDirs are directory names that are not descended into.
	SkipDirs []string
}

// Classify returns the kind of a file or directory name, or "" when
// pricekit has no interest in it.
func Classify(name string, isDir bool) string {
	if isDir {
		if strings.HasPrefix(name, ScratchPrefix) {
			return KindScratch
		}
		return ""
	}
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "~$"):
		return KindLock
	case strings.HasSuffix(lower, ".part"), strings.HasPrefix(name, ".") && strings.HasSuffix(lower, ".tmp"):
		return KindPartial
	case filepath.Ext(lower) != ".xlsx":
		return ""
	case strings.HasSuffix(strings.TrimSuffix(lower, ".xlsx"), "_update"):
		return KindProcessed
	}
	return KindPriceList
}

// Scan walks a directory and classifies what it finds. Scratch directories
// are reported as a whole and not descended into.
func Scan(root string, opts ScanOptions) (*ScanResult, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("could not resolve path: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("could not access %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	kindFilter := make(map[string]bool)
	for _, k := range opts.Kinds {
		kindFilter[k] = true
	}
	skip := make(map[string]bool)
	for _, d := range opts.SkipDirs {
		skip[d] = true
	}

	result := &ScanResult{
		RootDir:   root,
		ByKind:    make(map[string]int),
		ScannedAt: time.Now(),
	}

	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible
		}
		if path == root {
			return nil
		}

		kind := Classify(d.Name(), d.IsDir())
		if d.IsDir() && kind == "" {
			if !opts.Recursive || skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if kind == "" || (len(kindFilter) > 0 && !kindFilter[kind]) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		finfo, err := d.Info()
		if err != nil {
			return nil
		}
		if !opts.ModBefore.IsZero() && !finfo.ModTime().Before(opts.ModBefore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		fi := FileInfo{
			Path:       path,
			Name:       d.Name(),
			Kind:       kind,
			Size:       finfo.Size(),
			ModifiedAt: finfo.ModTime(),
			IsDir:      d.IsDir(),
		}
		if d.IsDir() {
			fi.Size = dirSize(path)
		} else if opts.WithHash {
			if hash, err := HashFile(path); err == nil {
				fi.SHA256 = hash
			}
		}

		result.Files = append(result.Files, fi)
		result.ByKind[kind]++
		result.TotalSize += fi.Size

		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}

	if err := filepath.WalkDir(root, walkFn); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	// Sort by path for deterministic output
	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].Path < result.Files[j].Path
	})

	return result, nil
}

func dirSize(root string) int64 {
	var total int64
	filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// HashFile computes the SHA-256 of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
