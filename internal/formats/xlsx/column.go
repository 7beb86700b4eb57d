package xlsx

import (
	"fmt"
	"strings"
)

// ColumnLetter converts a 1-based column index to spreadsheet letters
// (1 -> A, 26 -> Z, 27 -> AA, 703 -> AAA). It returns "" for n <= 0.
//
// Unlike excelize.ColumnNumberToName this is not capped at the 16384 columns
// Excel itself supports.
func ColumnLetter(n int) string {
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}

// ColumnNumber is the inverse of ColumnLetter. Letters are case-insensitive.
func ColumnNumber(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("empty column name")
	}
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column name %q", letters)
		}
		n = n*26 + int(r-'A') + 1
		if n > maxColumnNumber {
			return 0, fmt.Errorf("column name %q is out of range", letters)
		}
	}
	return n, nil
}

// maxColumnNumber bounds ColumnNumber so the result cannot overflow.
const maxColumnNumber = 1 << 40
