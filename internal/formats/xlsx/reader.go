// Package xlsx reads, splits and reprices .xlsx (Excel) price lists.
//
// Repricing works on the archive parts directly (see Extract and
// RewriteWorksheet) so images, drawings and styles survive untouched;
// excelize is only used where a workbook object model is acceptable.
package xlsx

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet represents a single worksheet's data.
type Sheet struct {
	Name string     `json:"name"`
	Rows [][]string `json:"rows"`
}

// Workbook represents a parsed Excel file with all its sheets.
type Workbook struct {
	Sheets []Sheet `json:"sheets"`
}

// PriceCell is one cell of the price column below the header row.
type PriceCell struct {
	Ref     string   `json:"ref"`
	Row     int      `json:"row"`
	Text    string   `json:"text"`
	Value   *float64 `json:"value,omitempty"`
	Numeric bool     `json:"numeric"`
}

// ReadFile reads an .xlsx file and returns its structured data.
func ReadFile(path string) (*Workbook, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readWorkbook(f)
}

// ListSheets returns the sheet names of an .xlsx file in workbook order.
func ListSheets(path string) ([]string, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// ReadPrices returns the cells of the price column strictly below headerRow.
// An empty sheet name selects the first sheet.
func ReadPrices(path, sheet string, column, headerRow int) ([]PriceCell, error) {
	if column < 1 {
		return nil, fmt.Errorf("invalid price column %d: must be a positive column index", column)
	}

	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("could not read sheet %q: %w", sheet, err)
	}

	letter := ColumnLetter(column)
	var cells []PriceCell
	for i := headerRow; i < len(rows); i++ {
		if column > len(rows[i]) {
			continue
		}
		text := rows[i][column-1]
		if text == "" {
			continue
		}
		pc := PriceCell{Ref: letter + strconv.Itoa(i+1), Row: i + 1, Text: text}
		if v, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
			pc.Value = &v
			pc.Numeric = true
		}
		cells = append(cells, pc)
	}
	return cells, nil
}

func openFile(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s — check that the path is correct", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s — is this a valid .xlsx file? %w", path, err)
	}
	return f, nil
}

func readWorkbook(f *excelize.File) (*Workbook, error) {
	wb := &Workbook{}

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("could not read sheet %q: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}

	return wb, nil
}

// GetSheet returns a specific sheet by name. Returns an error if the sheet is not found.
func (wb *Workbook) GetSheet(name string) (*Sheet, error) {
	for i := range wb.Sheets {
		if wb.Sheets[i].Name == name {
			return &wb.Sheets[i], nil
		}
	}

	available := make([]string, len(wb.Sheets))
	for i, s := range wb.Sheets {
		available[i] = s.Name
	}
	return nil, fmt.Errorf("sheet %q not found — available sheets: %v", name, available)
}
