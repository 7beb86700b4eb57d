package xlsx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// SpreadsheetML main namespaces (transitional and strict).
const (
	nsMain       = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	nsStrictMain = "http://purl.oclc.org/ooxml/spreadsheetml/main"
)

const xmlDeclaration = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

var (
	utf8BOM          = []byte{0xEF, 0xBB, 0xBF}
	declarationRegex = regexp.MustCompile(`^\s*<\?xml\s[^?]*?encoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)
)

// FormatPrice renders a rewritten price: the shortest decimal that parses
// back to the same float64, never in exponent form.
func FormatPrice(v float64) string {
	if v == 0 {
		v = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RewriteWorksheet adds markup to every numeric cell of the given column
// below headerRow in the worksheet document at path, and writes the document
// back in place. It returns the number of cells changed.
func RewriteWorksheet(path string, markup float64, column, headerRow int) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("could not read worksheet %s: %w", path, err)
	}

	out, n, err := RewriteWorksheetBytes(data, markup, column, headerRow)
	if err != nil {
		return 0, fmt.Errorf("worksheet %s: %w", path, err)
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return 0, fmt.Errorf("could not write worksheet %s: %w", path, err)
	}
	return n, nil
}

// RewriteWorksheetBytes is RewriteWorksheet on an in-memory document. Only
// the text of rewritten <v> elements changes; all other bytes are kept.
func RewriteWorksheetBytes(data []byte, markup float64, column, headerRow int) ([]byte, int, error) {
	if column < 1 {
		return nil, 0, fmt.Errorf("invalid price column %d: must be a positive column index", column)
	}

	enc, err := declaredEncoding(data)
	if err != nil {
		return nil, 0, err
	}

	src := data
	if enc != nil {
		if src, err = enc.NewDecoder().Bytes(data); err != nil {
			return nil, 0, fmt.Errorf("could not decode worksheet: %w", err)
		}
	}

	bom := 0
	if bytes.HasPrefix(src, utf8BOM) {
		bom = len(utf8BOM)
	}

	edits, err := scanPriceCells(src[bom:], markup, ColumnLetter(column), headerRow)
	if err != nil {
		return nil, 0, err
	}

	var out bytes.Buffer
	out.Grow(len(src) + len(xmlDeclaration))
	out.Write(src[:bom])
	if !hasDeclaration(src[bom:]) {
		out.WriteString(xmlDeclaration)
	}
	body := src[bom:]
	last := int64(0)
	for _, e := range edits {
		out.Write(body[last:e.start])
		out.WriteString(e.text)
		last = e.end
	}
	out.Write(body[last:])

	if enc == nil {
		return out.Bytes(), len(edits), nil
	}
	encoded, err := enc.NewEncoder().Bytes(out.Bytes())
	if err != nil {
		return nil, 0, fmt.Errorf("could not encode worksheet: %w", err)
	}
	return encoded, len(edits), nil
}

// edit replaces body[start:end] with text.
type edit struct {
	start, end int64
	text       string
}

// cellScan tracks the cell currently being read.
type cellScan struct {
	eligible bool
	// formula cells keep their cached <v>; Excel recomputes it on open.
	formula bool
}

func scanPriceCells(body []byte, markup float64, letter string, headerRow int) ([]edit, error) {
	d := xml.NewDecoder(bytes.NewReader(body))
	// The body is already UTF-8 here; a declared charset only needs to be accepted.
	d.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	var (
		edits       []edit
		inSheetData bool
		row         int
		cell        *cellScan
		inValue     bool
		valueStart  int64
		text        strings.Builder
	)

	for {
		pos := d.InputOffset()
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed worksheet markup near offset %d: %w", pos, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !isSpreadsheetML(t.Name) {
				continue
			}
			switch t.Name.Local {
			case "sheetData":
				inSheetData = true
			case "row":
				if !inSheetData {
					continue
				}
				n, err := rowNumber(t, row)
				if err != nil {
					return nil, err
				}
				row = n
			case "c":
				if !inSheetData {
					continue
				}
				cell = &cellScan{
					eligible: row > headerRow &&
						attr(t, "r") == letter+strconv.Itoa(row) &&
						isNumericType(attr(t, "t")),
				}
			case "f":
				if cell != nil {
					cell.formula = true
				}
			case "v":
				if cell != nil && cell.eligible && !cell.formula {
					inValue = true
					valueStart = d.InputOffset()
					text.Reset()
				}
			}

		case xml.CharData:
			if inValue {
				text.Write(t)
			}

		case xml.EndElement:
			if !isSpreadsheetML(t.Name) {
				continue
			}
			switch t.Name.Local {
			case "v":
				if !inValue {
					continue
				}
				inValue = false
				if price, ok := addMarkup(text.String(), markup); ok {
					edits = append(edits, edit{start: valueStart, end: pos, text: price})
				}
			case "c":
				cell = nil
			case "sheetData":
				inSheetData = false
			}
		}
	}

	return edits, nil
}

// addMarkup parses a stored cell value and returns the marked-up text.
// ok is false for blank, non-numeric or non-finite values.
func addMarkup(s string, markup float64) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return "", false
	}
	v += markup
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", false
	}
	return FormatPrice(v), true
}

func isSpreadsheetML(name xml.Name) bool {
	return name.Space == nsMain || name.Space == nsStrictMain
}

// isNumericType reports whether a cell type attribute denotes a plain number.
func isNumericType(t string) bool {
	return t == "" || t == "n"
}

// rowNumber returns the 1-based number of a <row>. Rows without an r
// attribute follow the previous row.
func rowNumber(start xml.StartElement, prev int) (int, error) {
	r := attr(start, "r")
	if r == "" {
		return prev + 1, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(r))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid row number %q", r)
	}
	return n, nil
}

func attr(start xml.StartElement, local string) string {
	for _, a := range start.Attr {
		if a.Name.Local == local && a.Name.Space == "" {
			return a.Value
		}
	}
	return ""
}

func hasDeclaration(body []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), []byte("<?xml"))
}

// declaredEncoding returns the encoding named in the XML declaration, or nil
// for UTF-8 documents.
func declaredEncoding(data []byte) (encoding.Encoding, error) {
	head := bytes.TrimPrefix(data, utf8BOM)
	if len(head) > 256 {
		head = head[:256]
	}
	m := declarationRegex.FindSubmatch(head)
	if m == nil {
		return nil, nil
	}
	label := strings.ToLower(string(m[1]))
	if label == "utf-8" || label == "utf8" {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported worksheet encoding %q: %w", label, err)
	}
	return enc, nil
}
