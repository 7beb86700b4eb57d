// Package profile decides which markup applies to an incoming price list.
//
// A profile matches a file by keyword (a case-insensitive substring of the
// file name) or by an expr-lang expression evaluated against a Candidate,
// e.g. `Source == "sheets" && hasPrefix(lower(Name), "cifrovoy")`.
package profile

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/klytics/pricekit/internal/reprice"
)

// DefaultName is the profile used when nothing else matches.
const DefaultName = "default"

// Profile is a named repricing policy.
type Profile struct {
	Name        string   `mapstructure:"name" yaml:"name" json:"name"`
	Keywords    []string `mapstructure:"keywords" yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Match       string   `mapstructure:"match" yaml:"match,omitempty" json:"match,omitempty"`
	Markup      float64  `mapstructure:"markup" yaml:"markup" json:"markup"`
	PriceColumn int      `mapstructure:"price_column" yaml:"price_column,omitempty" json:"price_column,omitempty"`
	HeaderRow   int      `mapstructure:"header_row" yaml:"header_row,omitempty" json:"header_row,omitempty"`
	SplitSheets bool     `mapstructure:"split_sheets" yaml:"split_sheets,omitempty" json:"split_sheets,omitempty"`
}

// Candidate is what a profile is matched against.
type Candidate struct {
	// Name is the original file name, without directories.
	Name string
	// Source names where the file came from: "inbox", "sheets", "cli".
	Source string
	// Ext is the lower-case extension including the dot.
	Ext string
}

// NewCandidate builds a Candidate from a file path.
func NewCandidate(path, source string) Candidate {
	name := filepath.Base(path)
	return Candidate{Name: name, Source: source, Ext: strings.ToLower(filepath.Ext(name))}
}

// Defaults returns the built-in profiles.
func Defaults() []Profile {
	return []Profile{
		{
			Name:     "xtreme_case",
			Keywords: []string{"benks", "energea", "pitaka", "uag", "uniq", "vaja"},
			Markup:   200,
		},
		{
			Name:        "cifrovoy_ray",
			Keywords:    []string{"cifrovoy", "digital", "cr"},
			Markup:      50,
			SplitSheets: true,
		},
		{
			Name:   DefaultName,
			Markup: 50,
		},
	}
}

// Column returns the price column, defaulting to column D.
func (p Profile) Column() int {
	if p.PriceColumn > 0 {
		return p.PriceColumn
	}
	return reprice.DefaultPriceColumn
}

// Header returns the header row, defaulting to row 5.
func (p Profile) Header() int {
	if p.HeaderRow > 0 {
		return p.HeaderRow
	}
	return reprice.DefaultHeaderRow
}

// Request builds a repricing request for this profile.
func (p Profile) Request(input, output string) reprice.Request {
	return reprice.Request{
		InputPath:   input,
		OutputPath:  output,
		Markup:      p.Markup,
		PriceColumn: p.Column(),
		HeaderRow:   p.Header(),
	}
}

// Validate checks the static fields of a profile.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile has no name")
	}
	if math.IsNaN(p.Markup) || math.IsInf(p.Markup, 0) {
		return fmt.Errorf("profile %q: markup must be a finite number", p.Name)
	}
	if p.PriceColumn < 0 {
		return fmt.Errorf("profile %q: price_column must be positive", p.Name)
	}
	if p.HeaderRow < 0 {
		return fmt.Errorf("profile %q: header_row must not be negative", p.Name)
	}
	return nil
}

type compiled struct {
	Profile
	program *vm.Program
}

// Selector picks the profile for a file.
type Selector struct {
	profiles []compiled
	fallback Profile
}

// NewSelector compiles the match expressions of profiles. Profiles are
// tried in order; the one named "default" is only used when nothing else
// matches. Without a "default" profile the built-in one is used.
func NewSelector(profiles []Profile) (*Selector, error) {
	s := &Selector{fallback: Defaults()[2]}
	seen := make(map[string]bool, len(profiles))

	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		key := strings.ToLower(p.Name)
		if seen[key] {
			return nil, fmt.Errorf("duplicate profile %q", p.Name)
		}
		seen[key] = true

		if key == DefaultName {
			s.fallback = p
			continue
		}

		c := compiled{Profile: p}
		if strings.TrimSpace(p.Match) != "" {
			program, err := expr.Compile(p.Match, expr.Env(Candidate{}), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("profile %q: invalid match expression: %w", p.Name, err)
			}
			c.program = program
		}
		s.profiles = append(s.profiles, c)
	}
	return s, nil
}

// Select returns the first profile matching c, or the default profile.
func (s *Selector) Select(c Candidate) (Profile, error) {
	name := strings.ToLower(c.Name)
	for _, p := range s.profiles {
		for _, kw := range p.Keywords {
			if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
				return p.Profile, nil
			}
		}
		if p.program == nil {
			continue
		}
		out, err := expr.Run(p.program, c)
		if err != nil {
			return Profile{}, fmt.Errorf("profile %q: evaluate match expression: %w", p.Name, err)
		}
		if ok, _ := out.(bool); ok {
			return p.Profile, nil
		}
	}
	return s.fallback, nil
}

// Lookup returns the profile with the given name.
func (s *Selector) Lookup(name string) (Profile, bool) {
	if strings.EqualFold(name, s.fallback.Name) || strings.EqualFold(name, DefaultName) {
		return s.fallback, true
	}
	for _, p := range s.profiles {
		if strings.EqualFold(p.Name, name) {
			return p.Profile, true
		}
	}
	return Profile{}, false
}

// Profiles returns all profiles in selection order, default last.
func (s *Selector) Profiles() []Profile {
	out := make([]Profile, 0, len(s.profiles)+1)
	for _, p := range s.profiles {
		out = append(out, p.Profile)
	}
	return append(out, s.fallback)
}
