package fs

import (
	"fmt"
	"sort"
	"strings"
)

// DuplicateGroup represents a set of price lists with the same content.
type DuplicateGroup struct {
	SHA256 string     `json:"sha256"`
	Size   int64      `json:"size"`
	Files  []FileInfo `json:"files"`
}

// DedupeResult holds deduplication analysis results.
type DedupeResult struct {
	Groups     []DuplicateGroup `json:"groups"`
	TotalDupes int              `json:"totalDuplicates"`
}

// FindDuplicates groups files with identical content by SHA-256 hash.
// Files must have been scanned with WithHash=true. Within a group files
// keep their input order.
func FindDuplicates(files []FileInfo) *DedupeResult {
	hashGroups := make(map[string][]FileInfo)
	var order []string
	for _, f := range files {
		if f.SHA256 == "" {
			continue
		}
		if _, ok := hashGroups[f.SHA256]; !ok {
			order = append(order, f.SHA256)
		}
		hashGroups[f.SHA256] = append(hashGroups[f.SHA256], f)
	}

	result := &DedupeResult{}
	for _, hash := range order {
		group := hashGroups[hash]
		if len(group) < 2 {
			continue
		}
		result.Groups = append(result.Groups, DuplicateGroup{SHA256: hash, Size: group[0].Size, Files: group})
		result.TotalDupes += len(group) - 1
	}
	return result
}

// Unique returns files with every duplicate after the first of its group
// removed, and the removed ones.
func Unique(files []FileInfo) (keep, dupes []FileInfo) {
	seen := make(map[string]bool)
	for _, f := range files {
		if f.SHA256 != "" && seen[f.SHA256] {
			dupes = append(dupes, f)
			continue
		}
		if f.SHA256 != "" {
			seen[f.SHA256] = true
		}
		keep = append(keep, f)
	}
	return keep, dupes
}

// FormatDedupeReport returns a human-readable duplicate report.
func FormatDedupeReport(result *DedupeResult) string {
	if len(result.Groups) == 0 {
		return "No duplicates found"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d duplicate groups (%d files would be processed twice):\n\n", len(result.Groups), result.TotalDupes)

	for i, g := range result.Groups {
		fmt.Fprintf(&sb, "Group %d (%s, %d copies):\n", i+1, FormatSize(g.Size), len(g.Files))
		paths := make([]string, len(g.Files))
		for j, f := range g.Files {
			paths[j] = f.Path
		}
		sort.Strings(paths[1:])
		for j, p := range paths {
			marker := "  "
			if j == 0 {
				marker = "* " // kept
			}
			fmt.Fprintf(&sb, "  %s%s\n", marker, p)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
