package xlsx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetCopy is a single-sheet copy of a workbook produced by SplitSheets.
type SheetCopy struct {
	Sheet string
	Path  string
}

// SplitSheets writes one copy of the workbook at input per sheet into dir.
// Each copy keeps only its own sheet, made visible and active. Copies are
// named after their sheets.
func SplitSheets(input, dir string) ([]SheetCopy, error) {
	sheets, err := ListSheets(input)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create %s: %w", dir, err)
	}

	used := make(map[string]bool)
	copies := make([]SheetCopy, 0, len(sheets))
	for _, sheet := range sheets {
		base := SafeFileName(sheet)
		name := base
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[strings.ToLower(name)] = true

		target := filepath.Join(dir, name+".xlsx")
		if err := copyFile(input, target); err != nil {
			return nil, err
		}
		if err := keepOnlySheet(target, sheet, sheets); err != nil {
			return nil, err
		}
		copies = append(copies, SheetCopy{Sheet: sheet, Path: target})
	}
	return copies, nil
}

func keepOnlySheet(path, keep string, all []string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	// The kept sheet must be visible before the others go, excelize refuses
	// to leave a workbook without a visible sheet.
	if err := f.SetSheetVisible(keep, true); err != nil {
		return fmt.Errorf("could not show sheet %q: %w", keep, err)
	}
	for _, other := range all {
		if other == keep {
			continue
		}
		if err := f.DeleteSheet(other); err != nil {
			return fmt.Errorf("could not remove sheet %q: %w", other, err)
		}
	}
	idx, err := f.GetSheetIndex(keep)
	if err != nil {
		return fmt.Errorf("could not find sheet %q: %w", keep, err)
	}
	f.SetActiveSheet(idx)

	if err := f.Save(); err != nil {
		return fmt.Errorf("could not save %s: %w", path, err)
	}
	return nil
}

// SafeFileName turns a sheet name into something usable as a file name.
func SafeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	name = strings.Trim(name, ". ")
	if name == "" {
		return "sheet"
	}
	return name
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("could not copy %s: %w", src, err)
	}
	return out.Close()
}
