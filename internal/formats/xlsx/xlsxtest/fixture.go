// Package xlsxtest builds minimal but valid .xlsx archives for tests, with
// full control over the worksheet markup and a binary image part that must
// survive repricing byte for byte.
package xlsxtest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

const (
	NSMain = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	NSRel  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

// ImagePart is the member name of the embedded image.
const ImagePart = "xl/media/image1.png"

// Sheet describes one worksheet: its name and the raw rows inside <sheetData>.
type Sheet struct {
	Name string
	Rows []string
}

// Part is one archive member.
type Part struct {
	Name string
	Data []byte
}

// Row renders a <row> element.
func Row(n int, cells ...string) string {
	return fmt.Sprintf(`<row r="%d" spans="1:4">%s</row>`, n, strings.Join(cells, ""))
}

// Num renders a numeric cell.
func Num(ref, value string) string {
	return fmt.Sprintf(`<c r="%s" s="1"><v>%s</v></c>`, ref, value)
}

// Shared renders a shared-string cell pointing at index idx.
func Shared(ref string, idx int) string {
	return fmt.Sprintf(`<c r="%s" t="s"><v>%d</v></c>`, ref, idx)
}

// Inline renders an inline-string cell.
func Inline(ref, text string) string {
	return fmt.Sprintf(`<c r="%s" t="inlineStr"><is><t>%s</t></is></c>`, ref, text)
}

// SharedStrings are the strings Shared cells can refer to.
var SharedStrings = []string{"Model", "Price", "N/A"}

// WorksheetXML renders a complete worksheet document.
func WorksheetXML(rows ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<worksheet xmlns="` + NSMain + `" xmlns:r="` + NSRel + `"`)
	b.WriteString(` xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006" mc:Ignorable="x14ac"`)
	b.WriteString(` xmlns:x14ac="http://schemas.microsoft.com/office/spreadsheetml/2009/9/ac">`)
	b.WriteString(`<sheetViews><sheetView workbookViewId="0"/></sheetViews>`)
	b.WriteString(`<sheetFormatPr defaultRowHeight="15" x14ac:dyDescent="0.25"/>`)
	b.WriteString(`<sheetData>`)
	for _, r := range rows {
		b.WriteString(r)
	}
	b.WriteString(`</sheetData>`)
	b.WriteString(`<pageMargins left="0.7" right="0.7" top="0.75" bottom="0.75" header="0.3" footer="0.3"/>`)
	b.WriteString(`</worksheet>`)
	return b.String()
}

// ImageBytes is the binary payload stored at ImagePart.
func ImageBytes() []byte {
	data := []byte("\x89PNG\r\n\x1a\n")
	for i := 0; i < 512; i++ {
		data = append(data, byte(i*31))
	}
	return data
}

// Parts returns the members of a workbook holding the given sheets.
func Parts(sheets ...Sheet) []Part {
	var types, wbSheets, wbRels strings.Builder
	for i, s := range sheets {
		n := i + 1
		fmt.Fprintf(&types, `<Override PartName="/xl/worksheets/sheet%d.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>`, n)
		fmt.Fprintf(&wbSheets, `<sheet name="%s" sheetId="%d" r:id="rId%d"/>`, s.Name, n, n)
		fmt.Fprintf(&wbRels, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet%d.xml"/>`, n, n)
	}
	next := len(sheets) + 1
	fmt.Fprintf(&wbRels, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/sharedStrings" Target="sharedStrings.xml"/>`, next)
	fmt.Fprintf(&wbRels, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>`, next+1)

	var sst strings.Builder
	for _, s := range SharedStrings {
		fmt.Fprintf(&sst, `<si><t>%s</t></si>`, s)
	}

	const decl = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
	parts := []Part{
		{"[Content_Types].xml", []byte(decl + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Default Extension="png" ContentType="image/png"/>` +
			`<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>` +
			types.String() +
			`<Override PartName="/xl/sharedStrings.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"/>` +
			`<Override PartName="/xl/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.styles+xml"/>` +
			`</Types>`)},
		{"_rels/.rels", []byte(decl + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/>` +
			`</Relationships>`)},
		{"xl/workbook.xml", []byte(decl + `<workbook xmlns="` + NSMain + `" xmlns:r="` + NSRel + `"><sheets>` + wbSheets.String() + `</sheets></workbook>`)},
		{"xl/_rels/workbook.xml.rels", []byte(decl + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` + wbRels.String() + `</Relationships>`)},
		{"xl/styles.xml", []byte(decl + `<styleSheet xmlns="` + NSMain + `">` +
			`<numFmts count="1"><numFmt numFmtId="164" formatCode="#,##0.00&quot; ₽&quot;"/></numFmts>` +
			`<fonts count="1"><font><sz val="11"/><name val="Calibri"/></font></fonts>` +
			`<fills count="1"><fill><patternFill patternType="none"/></fill></fills>` +
			`<borders count="1"><border><left/><right/><top/><bottom/><diagonal/></border></borders>` +
			`<cellStyleXfs count="1"><xf numFmtId="0" fontId="0" fillId="0" borderId="0"/></cellStyleXfs>` +
			`<cellXfs count="2"><xf numFmtId="0" fontId="0" fillId="0" borderId="0" xfId="0"/><xf numFmtId="164" fontId="0" fillId="0" borderId="0" xfId="0" applyNumberFormat="1"/></cellXfs>` +
			`</styleSheet>`)},
		{"xl/sharedStrings.xml", []byte(decl + `<sst xmlns="` + NSMain + `" count="` + strconv.Itoa(len(SharedStrings)) + `" uniqueCount="` + strconv.Itoa(len(SharedStrings)) + `">` + sst.String() + `</sst>`)},
	}
	for i, s := range sheets {
		parts = append(parts, Part{fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1), []byte(WorksheetXML(s.Rows...))})
	}
	parts = append(parts, Part{ImagePart, ImageBytes()})
	return parts
}

// WriteArchive writes parts as a zip archive at path.
func WriteArchive(t testing.TB, path string, parts []Part) {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range parts {
		method := zip.Deflate
		if strings.HasPrefix(p.Name, "xl/media/") {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: p.Name, Method: method})
		if err != nil {
			t.Fatalf("create %s: %v", p.Name, err)
		}
		if _, err := w.Write(p.Data); err != nil {
			t.Fatalf("write %s: %v", p.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WritePriceList writes a workbook holding the given sheets to path.
func WritePriceList(t testing.TB, path string, sheets ...Sheet) {
	t.Helper()
	WriteArchive(t, path, Parts(sheets...))
}

// ReadArchive returns the members of the archive at path in archive order.
func ReadArchive(t testing.TB, path string) []Part {
	t.Helper()

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer r.Close()

	var parts []Part
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open member %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read member %s: %v", f.Name, err)
		}
		parts = append(parts, Part{f.Name, data})
	}
	return parts
}

// PartMap indexes parts by name.
func PartMap(parts []Part) map[string][]byte {
	m := make(map[string][]byte, len(parts))
	for _, p := range parts {
		m[p.Name] = p.Data
	}
	return m
}
