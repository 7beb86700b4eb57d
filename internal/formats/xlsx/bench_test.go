package xlsx

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/klytics/pricekit/internal/formats/xlsx/xlsxtest"
)

func benchRows(n int) []string {
	rows := []string{xlsxtest.Row(5, xlsxtest.Shared("D5", 1))}
	for i := range n {
		r := 6 + i
		rows = append(rows, xlsxtest.Row(r,
			xlsxtest.Inline(fmt.Sprintf("A%d", r), "iPhone 15 Pro case"),
			xlsxtest.Num(fmt.Sprintf("D%d", r), fmt.Sprintf("%d.5", 100+i)),
		))
	}
	return rows
}

func BenchmarkRewriteWorksheetBytes(b *testing.B) {
	for _, n := range []int{100, 10000} {
		data := []byte(xlsxtest.WorksheetXML(benchRows(n)...))
		b.Run(fmt.Sprintf("rows=%d", n), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, _, err := RewriteWorksheetBytes(data, 200, 4, 5); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkExtractRepack(b *testing.B) {
	dir := b.TempDir()
	in := filepath.Join(dir, "prices.xlsx")
	xlsxtest.WritePriceList(b, in, xlsxtest.Sheet{Name: "Prices", Rows: benchRows(2000)})
	out := filepath.Join(dir, "out.xlsx")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a, err := Extract(in, dir)
		if err != nil {
			b.Fatal(err)
		}
		if err := a.Repack(out); err != nil {
			b.Fatal(err)
		}
		a.Close()
	}
}

func BenchmarkFormatPrice(b *testing.B) {
	for i := 0; i < b.N; i++ {
		FormatPrice(float64(i) + 0.1)
	}
}
