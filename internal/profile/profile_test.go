package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectBuiltinProfiles(t *testing.T) {
	s, err := NewSelector(Defaults())
	require.NoError(t, err)

	cases := map[string]string{
		"BENKS прайс 12.09.xlsx":   "xtreme_case",
		"Pitaka_cases.xlsx":        "xtreme_case",
		"12.09 Прайс Лист CR.xlsx": "cifrovoy_ray",
		"digital-store.xlsx":       "cifrovoy_ray",
		"suppliers.xlsx":           DefaultName,
	}
	for name, want := range cases {
		p, err := s.Select(NewCandidate("/inbox/"+name, "inbox"))
		require.NoError(t, err)
		assert.Equal(t, want, p.Name, name)
	}
}

func TestSelectFirstMatchWins(t *testing.T) {
	// "uag cr.xlsx" matches both keyword lists.
	s, err := NewSelector(Defaults())
	require.NoError(t, err)

	p, err := s.Select(NewCandidate("uag cr.xlsx", "cli"))
	require.NoError(t, err)
	assert.Equal(t, "xtreme_case", p.Name)
	assert.Equal(t, 200.0, p.Markup)
}

func TestSelectMatchExpression(t *testing.T) {
	s, err := NewSelector([]Profile{
		{Name: "shared", Match: `Source == "sheets" && Ext == ".xlsx"`, Markup: 75, SplitSheets: true},
		{Name: "big", Match: `hasPrefix(lower(Name), "wholesale")`, Markup: 10},
	})
	require.NoError(t, err)

	p, err := s.Select(Candidate{Name: "CifrovoyRay_20260301_120000.xlsx", Source: "sheets", Ext: ".xlsx"})
	require.NoError(t, err)
	assert.Equal(t, "shared", p.Name)
	assert.True(t, p.SplitSheets)

	p, err = s.Select(NewCandidate("Wholesale March.xlsx", "inbox"))
	require.NoError(t, err)
	assert.Equal(t, "big", p.Name)

	p, err = s.Select(NewCandidate("retail.xlsx", "inbox"))
	require.NoError(t, err)
	assert.Equal(t, DefaultName, p.Name, "built-in default applies when none is configured")
	assert.Equal(t, 50.0, p.Markup)
}

func TestNewSelectorRejectsBadProfiles(t *testing.T) {
	cases := map[string][]Profile{
		"non-bool expression": {{Name: "x", Match: `Name + "x"`}},
		"unknown field":       {{Name: "x", Match: `Supplier == "a"`}},
		"syntax":              {{Name: "x", Match: `Name ==`}},
		"duplicate":           {{Name: "a"}, {Name: "A"}},
		"no name":             {{Markup: 1}},
		"negative header":     {{Name: "x", HeaderRow: -1}},
	}
	for name, profiles := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewSelector(profiles)
			assert.Error(t, err)
		})
	}
}

func TestConfiguredDefault(t *testing.T) {
	s, err := NewSelector([]Profile{{Name: "default", Markup: 15, HeaderRow: 2}})
	require.NoError(t, err)

	p, err := s.Select(NewCandidate("x.xlsx", "cli"))
	require.NoError(t, err)
	assert.Equal(t, 15.0, p.Markup)
	assert.Equal(t, 2, p.Header())
	assert.Equal(t, 4, p.Column())

	got, ok := s.Lookup("DEFAULT")
	assert.True(t, ok)
	assert.Equal(t, 15.0, got.Markup)
	assert.Len(t, s.Profiles(), 1)
}

func TestLookup(t *testing.T) {
	s, err := NewSelector(Defaults())
	require.NoError(t, err)

	p, ok := s.Lookup("cifrovoy_ray")
	require.True(t, ok)
	assert.True(t, p.SplitSheets)

	_, ok = s.Lookup("unknown")
	assert.False(t, ok)
}

func TestRequest(t *testing.T) {
	p := Profile{Name: "x", Markup: 12.5, PriceColumn: 6}
	req := p.Request("in.xlsx", "out.xlsx")

	assert.Equal(t, "in.xlsx", req.InputPath)
	assert.Equal(t, "out.xlsx", req.OutputPath)
	assert.Equal(t, 12.5, req.Markup)
	assert.Equal(t, 6, req.PriceColumn)
	assert.Equal(t, 5, req.HeaderRow)
	assert.NoError(t, req.Validate())
}
