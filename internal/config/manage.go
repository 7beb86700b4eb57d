package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/klytics/pricekit/internal/profile"
	"github.com/klytics/pricekit/internal/publish"
	"github.com/klytics/pricekit/internal/watch"
)

// ConfigIssue represents a validation finding.
type ConfigIssue struct {
	Key      string `json:"key"`
	Severity string `json:"severity"` // "error", "warning", "info"
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Validate checks a loaded configuration and returns a list of issues.
func Validate(cfg *Config) []ConfigIssue {
	var issues []ConfigIssue

	if sel, err := profile.NewSelector(cfg.Profiles); err != nil {
		issues = append(issues, ConfigIssue{
			Key:      "profiles",
			Severity: "error",
			Message:  err.Error(),
			Fix:      "edit the profiles list in " + ConfigPath(),
		})
	} else {
		issues = append(issues, ConfigIssue{
			Key:      "profiles",
			Severity: "info",
			Message:  fmt.Sprintf("%d profiles configured", len(sel.Profiles())),
		})
	}

	if _, err := publish.New(cfg.Publish); err != nil {
		issues = append(issues, ConfigIssue{
			Key:      "publish",
			Severity: "error",
			Message:  err.Error(),
			Fix:      "pricekit config set publish.kind none",
		})
	} else if k := strings.ToLower(cfg.Publish.Kind); k == "" || k == publish.KindNone {
		issues = append(issues, ConfigIssue{
			Key:      "publish.kind",
			Severity: "warning",
			Message:  "no publisher configured — processed files are only written locally",
			Fix:      "pricekit config set publish.kind dir",
		})
	}

	if len(cfg.Watch.Directories) == 0 {
		issues = append(issues, ConfigIssue{
			Key:      "watch.directories",
			Severity: "warning",
			Message:  "no inbox directory is set — pricekit watch start needs one",
			Fix:      "pricekit config set watch.directories ~/PriceInbox",
		})
	}
	for _, dir := range cfg.Watch.Directories {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			issues = append(issues, ConfigIssue{
				Key:      "watch.directories",
				Severity: "error",
				Message:  fmt.Sprintf("inbox %s is not a directory", dir),
				Fix:      "mkdir -p " + dir,
			})
		}
	}

	if cfg.OutputDir != "" {
		wc := watch.WatchConfig{Directories: cfg.Watch.Directories, IgnorePaths: []string{cfg.OutputDir}}
		if err := wc.Validate(); err != nil {
			issues = append(issues, ConfigIssue{
				Key:      "output_dir",
				Severity: "error",
				Message:  err.Error(),
				Fix:      "pricekit config set output_dir <dir outside the inbox>",
			})
		}
	}

	if cfg.Sheets.SpreadsheetID != "" {
		if err := cfg.Sheets.Validate(); err != nil {
			issues = append(issues, ConfigIssue{Key: "sheets", Severity: "error", Message: err.Error()})
		} else {
			issues = append(issues, ConfigIssue{Key: "sheets", Severity: "info", Message: "shared spreadsheet configured"})
		}
	}

	if cfg.Cleanup.MaxAge < 0 {
		issues = append(issues, ConfigIssue{
			Key:      "cleanup.max_age",
			Severity: "error",
			Message:  fmt.Sprintf("cleanup.max_age must not be negative, got %s", cfg.Cleanup.MaxAge),
			Fix:      "pricekit config set cleanup.max_age 24h",
		})
	}

	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []ConfigIssue) bool {
	for _, i := range issues {
		if i.Severity == "error" {
			return true
		}
	}
	return false
}

// envKeys maps config keys to the environment variables shown by ToEnv.
var envKeys = []string{
	"temp_dir", "output_dir", "output_subdir", "keep_files", "log_level",
	"publish.kind", "publish.dir",
	"publish.smtp.host", "publish.smtp.port", "publish.smtp.username", "publish.smtp.from",
	"publish.telegram.chat_id",
	"sheets.spreadsheet_id", "sheets.mode", "sheets.interval",
	"journal.enabled", "journal.path", "cleanup.max_age",
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// ToEnv returns the set config values as a map of env var name -> value.
// Secrets are left out.
func ToEnv() map[string]string {
	env := make(map[string]string)
	for _, key := range envKeys {
		if v := viper.GetString(key); v != "" {
			env[EnvName(key)] = v
		}
	}
	return env
}

// Set sets a config value and saves to disk.
func Set(key, value string) error {
	viper.Set(key, value)
	return SaveConfig()
}

// Get retrieves a config value.
func Get(key string) string {
	return viper.GetString(key)
}

// ResetConfig removes the config file and restores the defaults.
func ResetConfig() error {
	path := ConfigPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete config: %w", err)
	}
	viper.Reset()
	setDefaults()
	return nil
}

// SaveConfig writes the current config to ~/.pricekit/config.yaml.
func SaveConfig() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("could not write config: %w", err)
	}

	// Tokens and passwords may live here.
	os.Chmod(path, 0o600)
	return nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Marshal renders cfg as YAML with secrets masked.
func Marshal(cfg *Config) ([]byte, error) {
	masked := *cfg
	masked.Publish.SMTP.Password = mask(masked.Publish.SMTP.Password)
	masked.Publish.Telegram.Token = mask(masked.Publish.Telegram.Token)
	masked.Sheets.Token = mask(masked.Sheets.Token)
	masked.Sheets.APIKey = mask(masked.Sheets.APIKey)
	return yaml.Marshal(&masked)
}

// ShowConfig returns a formatted summary of the configuration.
func ShowConfig(cfg *Config) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Config: %s\n\n", ConfigPath())

	sb.WriteString("Processing\n")
	fmt.Fprintf(&sb, "  temp_dir:    %s\n", cfg.TempDir)
	if cfg.OutputDir != "" {
		fmt.Fprintf(&sb, "  output_dir:  %s\n", cfg.OutputDir)
	} else {
		fmt.Fprintf(&sb, "  output:      <input dir>/%s\n", cfg.OutputSubdir)
	}
	fmt.Fprintf(&sb, "  keep_files:  %t\n", cfg.KeepFiles)
	sb.WriteString("\n")

	sb.WriteString("Profiles\n")
	for _, p := range cfg.Profiles {
		line := fmt.Sprintf("  %-14s +%g", p.Name, p.Markup)
		if len(p.Keywords) > 0 {
			line += "  keywords: " + strings.Join(p.Keywords, ", ")
		}
		if p.SplitSheets {
			line += "  (split sheets)"
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n")

	if len(cfg.Watch.Directories) > 0 {
		sb.WriteString("Inbox\n")
		for _, d := range cfg.Watch.Directories {
			fmt.Fprintf(&sb, "  %s\n", d)
		}
		sb.WriteString("\n")
	}

	if cfg.Sheets.SpreadsheetID != "" {
		sb.WriteString("Shared spreadsheet\n")
		fmt.Fprintf(&sb, "  id:        %s\n", cfg.Sheets.SpreadsheetID)
		fmt.Fprintf(&sb, "  mode:      %s\n", cfg.Sheets.Mode)
		fmt.Fprintf(&sb, "  interval:  %s\n", cfg.Sheets.Interval)
		sb.WriteString("\n")
	}

	sb.WriteString("Publish\n")
	fmt.Fprintf(&sb, "  kind:      %s\n", orNone(cfg.Publish.Kind))
	switch strings.ToLower(cfg.Publish.Kind) {
	case publish.KindDir:
		fmt.Fprintf(&sb, "  dir:       %s\n", cfg.Publish.Dir)
	case publish.KindSMTP:
		fmt.Fprintf(&sb, "  host:      %s\n", cfg.Publish.SMTP.Host)
		fmt.Fprintf(&sb, "  username:  %s\n", cfg.Publish.SMTP.Username)
		fmt.Fprintf(&sb, "  to:        %s\n", strings.Join(cfg.Publish.SMTP.To, ", "))
	case publish.KindTelegram:
		fmt.Fprintf(&sb, "  chat:      %s\n", cfg.Publish.Telegram.ChatID)
		fmt.Fprintf(&sb, "  token:     %s\n", mask(cfg.Publish.Telegram.Token))
	}
	sb.WriteString("\n")

	if cfg.Journal.Enabled {
		fmt.Fprintf(&sb, "Journal: %s\n", cfg.Journal.Path)
	} else {
		sb.WriteString("Journal: disabled\n")
	}
	return sb.String()
}

// Keys returns all known config keys in sorted order.
func Keys() []string {
	keys := viper.AllKeys()
	sort.Strings(keys)
	return keys
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return secret[:min(4, len(secret))] + "****"
}

func orNone(s string) string {
	if s == "" {
		return publish.KindNone
	}
	return s
}
