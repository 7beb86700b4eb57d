package xlsx

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocateWorksheets returns the worksheet documents among the parts extracted
// into dir. A missing worksheets directory yields an empty result.
func LocateWorksheets(dir string) ([]string, error) {
	wsDir := filepath.Join(dir, filepath.FromSlash(WorksheetsDir))
	entries, err := os.ReadDir(wsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not list %s: %w", WorksheetsDir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isWorksheetName(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(wsDir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func isWorksheetName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xml")
}

// Worksheets lists the worksheet documents of an extracted archive.
func (a *Archive) Worksheets() ([]string, error) {
	return LocateWorksheets(a.Dir)
}
