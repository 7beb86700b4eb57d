package xlsx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestColumnLetterSpotValues(t *testing.T) {
	cases := map[int]string{
		1:     "A",
		4:     "D",
		26:    "Z",
		27:    "AA",
		52:    "AZ",
		53:    "BA",
		702:   "ZZ",
		703:   "AAA",
		16384: "XFD",
		18278: "ZZZ",
	}
	for n, want := range cases {
		assert.Equal(t, want, ColumnLetter(n), "ColumnLetter(%d)", n)
	}
}

func TestColumnLetterNonPositive(t *testing.T) {
	assert.Equal(t, "", ColumnLetter(0))
	assert.Equal(t, "", ColumnLetter(-3))
}

func TestColumnRoundTrip(t *testing.T) {
	for n := 1; n <= 18278; n++ {
		got, err := ColumnNumber(ColumnLetter(n))
		require.NoError(t, err)
		if got != n {
			t.Fatalf("ColumnNumber(ColumnLetter(%d)) = %d", n, got)
		}
	}
}

func TestColumnLetterMatchesExcelize(t *testing.T) {
	for n := 1; n <= excelize.MaxColumns; n++ {
		want, err := excelize.ColumnNumberToName(n)
		require.NoError(t, err)
		if got := ColumnLetter(n); got != want {
			t.Fatalf("ColumnLetter(%d) = %q, excelize says %q", n, got, want)
		}
	}
}

func TestColumnNumberLowercase(t *testing.T) {
	n, err := ColumnNumber("ad")
	require.NoError(t, err)
	assert.Equal(t, 30, n)
}

func TestColumnNumberInvalid(t *testing.T) {
	for _, s := range []string{"", "A1", "-", "Ä"} {
		_, err := ColumnNumber(s)
		assert.Error(t, err, "ColumnNumber(%q)", s)
	}
}
