// Package sheets pulls a shared online spreadsheet as an .xlsx price list,
// either through the spreadsheet's export link or by reading its cell
// values and writing a workbook locally.
package sheets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klytics/pricekit/internal/formats/xlsx"
)

// Default endpoints.
const (
	DefaultExportURL = "https://docs.google.com"
	DefaultAPIURL    = "https://sheets.googleapis.com"
	DefaultPrefix    = "CifrovoyRay"
)

// Export modes.
const (
	ModeExport = "export" // download the .xlsx rendition
	ModeValues = "values" // read cell values and build the workbook locally
)

// Config describes the spreadsheet to pull.
type Config struct {
	SpreadsheetID string        `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
	Mode          string        `mapstructure:"mode" yaml:"mode,omitempty"`
	Token         string        `mapstructure:"token" yaml:"token,omitempty"`
	APIKey        string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Prefix        string        `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Profile       string        `mapstructure:"profile" yaml:"profile,omitempty"`
	Interval      time.Duration `mapstructure:"interval" yaml:"interval,omitempty"`
	ExportURL     string        `mapstructure:"export_url" yaml:"export_url,omitempty"`
	APIURL        string        `mapstructure:"api_url" yaml:"api_url,omitempty"`
}

// Validate checks that a spreadsheet is configured.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SpreadsheetID) == "" {
		return fmt.Errorf("sheets.spreadsheet_id is not set — copy it from the spreadsheet URL")
	}
	switch c.Mode {
	case "", ModeExport:
	case ModeValues:
		if c.Token == "" && c.APIKey == "" {
			return fmt.Errorf("sheets mode %q needs sheets.token or sheets.api_key", ModeValues)
		}
	default:
		return fmt.Errorf("unknown sheets.mode %q — use %q or %q", c.Mode, ModeExport, ModeValues)
	}
	return nil
}

// Export is one downloaded copy of the spreadsheet.
type Export struct {
	Path string `json:"path"`
	// Digest identifies the content; equal digests mean nothing changed.
	Digest string `json:"digest"`
}

// Exporter downloads the spreadsheet.
type Exporter struct {
	Config Config
	Client *http.Client
	// Now is used for file names.
	Now func() time.Time
}

// NewExporter creates an Exporter with a default HTTP client.
func NewExporter(cfg Config) *Exporter {
	return &Exporter{
		Config: cfg,
		Client: &http.Client{Timeout: 2 * time.Minute},
		Now:    time.Now,
	}
}

// Export writes <prefix>_YYYYMMDD_HHMMSS.xlsx into dir.
func (e *Exporter) Export(ctx context.Context, dir string) (*Export, error) {
	if err := e.Config.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create %s: %w", dir, err)
	}

	prefix := e.Config.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.xlsx", prefix, now().Format("20060102_150405")))

	if e.Config.Mode == ModeValues {
		return e.exportValues(ctx, path)
	}
	return e.exportFile(ctx, path)
}

func (e *Exporter) exportFile(ctx context.Context, path string) (*Export, error) {
	base := e.Config.ExportURL
	if base == "" {
		base = DefaultExportURL
	}
	u := strings.TrimRight(base, "/") + "/spreadsheets/d/" + url.PathEscape(e.Config.SpreadsheetID) + "/export?format=xlsx"

	resp, err := e.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	tmp := path + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("could not create %s: %w", path, err)
	}
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("could not download spreadsheet: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("could not write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("could not write %s: %w", path, err)
	}
	return &Export{Path: path, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

type spreadsheetMeta struct {
	Sheets []struct {
		Properties struct {
			Title string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

type valueRange struct {
	Values [][]any `json:"values"`
}

// cellText renders an unformatted cell value the way WriteFile expects:
// numbers as plain decimals, everything else as text.
func cellText(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return xlsx.FormatPrice(f)
		}
		return v.String()
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(v)
	}
}

func (e *Exporter) exportValues(ctx context.Context, path string) (*Export, error) {
	base := e.Config.APIURL
	if base == "" {
		base = DefaultAPIURL
	}
	root := strings.TrimRight(base, "/") + "/v4/spreadsheets/" + url.PathEscape(e.Config.SpreadsheetID)

	var meta spreadsheetMeta
	if err := e.getJSON(ctx, root+"?fields=sheets.properties.title", &meta); err != nil {
		return nil, err
	}

	wb := &xlsx.Workbook{}
	h := sha256.New()
	for _, s := range meta.Sheets {
		title := s.Properties.Title
		var vr valueRange
		rng := "'" + strings.ReplaceAll(title, "'", "''") + "'"
		if err := e.getJSON(ctx, root+"/values/"+url.PathEscape(rng)+"?valueRenderOption=UNFORMATTED_VALUE", &vr); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", title, err)
		}
		if len(vr.Values) == 0 {
			continue // empty sheets are not exported
		}
		rows := make([][]string, len(vr.Values))
		for i, row := range vr.Values {
			rows[i] = make([]string, len(row))
			for j, v := range row {
				rows[i][j] = cellText(v)
			}
		}
		wb.Sheets = append(wb.Sheets, xlsx.Sheet{Name: title, Rows: rows})
		json.NewEncoder(h).Encode(xlsx.Sheet{Name: title, Rows: rows})
	}
	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet %s has no data", e.Config.SpreadsheetID)
	}

	if err := xlsx.WriteFile(wb, path); err != nil {
		return nil, err
	}
	return &Export{Path: path, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

func (e *Exporter) getJSON(ctx context.Context, u string, v any) error {
	resp, err := e.get(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}

func (e *Exporter) get(ctx context.Context, u string) (*http.Response, error) {
	if e.Config.APIKey != "" && e.Config.Token == "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "key=" + url.QueryEscape(e.Config.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if e.Config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.Config.Token)
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("spreadsheet request returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
