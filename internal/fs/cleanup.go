package fs

import (
	"fmt"
	"os"
	"sort"
	"time"
)

// RemoveResult records the removal of one file or directory.
type RemoveResult struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Size    int64  `json:"size"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// StaleFiles returns files not modified within maxAge of now, oldest first.
func StaleFiles(files []FileInfo, maxAge time.Duration, now time.Time) []FileInfo {
	cutoff := now.Add(-maxAge)
	var stale []FileInfo
	for _, f := range files {
		if f.ModifiedAt.Before(cutoff) {
			stale = append(stale, f)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].ModifiedAt.Before(stale[j].ModifiedAt)
	})
	return stale
}

// Remove deletes files, and scratch directories with their contents. With
// dryRun nothing is touched.
func Remove(files []FileInfo, dryRun bool) []RemoveResult {
	results := make([]RemoveResult, 0, len(files))
	for _, f := range files {
		result := RemoveResult{Path: f.Path, Kind: f.Kind, Size: f.Size}
		if dryRun {
			results = append(results, result)
			continue
		}

		var err error
		if f.IsDir {
			err = os.RemoveAll(f.Path)
		} else {
			err = os.Remove(f.Path)
		}
		if err != nil && !os.IsNotExist(err) {
			result.Error = err.Error()
		} else {
			result.Applied = true
		}
		results = append(results, result)
	}
	return results
}

// Freed sums the sizes of applied removals.
func Freed(results []RemoveResult) int64 {
	var n int64
	for _, r := range results {
		if r.Applied {
			n += r.Size
		}
	}
	return n
}

// FormatSize returns a human-readable file size string.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
