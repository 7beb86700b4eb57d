// Package config manages application configuration from files and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/klytics/pricekit/internal/profile"
	"github.com/klytics/pricekit/internal/publish"
	"github.com/klytics/pricekit/internal/reprice"
	"github.com/klytics/pricekit/internal/sheets"
)

// EnvPrefix prefixes every environment override, e.g. PRICEKIT_PUBLISH_KIND.
const EnvPrefix = "PRICEKIT"

// Config holds the application configuration.
type Config struct {
	TempDir      string            `mapstructure:"temp_dir" yaml:"temp_dir"`
	OutputDir    string            `mapstructure:"output_dir" yaml:"output_dir,omitempty"`
	OutputSubdir string            `mapstructure:"output_subdir" yaml:"output_subdir"`
	KeepFiles    bool              `mapstructure:"keep_files" yaml:"keep_files"`
	LogLevel     string            `mapstructure:"log_level" yaml:"log_level"`
	Profiles     []profile.Profile `mapstructure:"profiles" yaml:"profiles,omitempty"`
	Watch        WatchConfig       `mapstructure:"watch" yaml:"watch"`
	Sheets       sheets.Config     `mapstructure:"sheets" yaml:"sheets,omitempty"`
	Publish      publish.Config    `mapstructure:"publish" yaml:"publish"`
	Journal      JournalConfig     `mapstructure:"journal" yaml:"journal"`
	Cleanup      CleanupConfig     `mapstructure:"cleanup" yaml:"cleanup"`
}

// WatchConfig lists the inbox directories the watcher observes.
type WatchConfig struct {
	Directories []string `mapstructure:"directories" yaml:"directories,omitempty"`
	Recursive   bool     `mapstructure:"recursive" yaml:"recursive"`
	DebounceMs  int      `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// JournalConfig controls the processing journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"`
}

// CleanupConfig controls removal of stale working files.
type CleanupConfig struct {
	MaxAge time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// Load reads the configuration from ~/.pricekit/config.yaml and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(Dir())

	setDefaults()

	// Environment variable overrides
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (non-fatal if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("could not read config %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = profile.Defaults()
	}
	cfg.Journal.Path = ExpandHome(cfg.Journal.Path)
	cfg.TempDir = ExpandHome(cfg.TempDir)
	cfg.OutputDir = ExpandHome(cfg.OutputDir)
	for i, d := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = ExpandHome(d)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("temp_dir", "./temp")
	viper.SetDefault("output_subdir", reprice.DefaultOutputSubdir)
	viper.SetDefault("keep_files", false)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("watch.recursive", false)
	viper.SetDefault("watch.debounce_ms", 2000)
	viper.SetDefault("sheets.mode", sheets.ModeExport)
	viper.SetDefault("sheets.prefix", sheets.DefaultPrefix)
	viper.SetDefault("sheets.interval", "5m")
	viper.SetDefault("publish.kind", publish.KindNone)
	viper.SetDefault("journal.enabled", true)
	viper.SetDefault("journal.path", filepath.Join(Dir(), "journal.jsonl"))
	viper.SetDefault("cleanup.max_age", "24h")

	// Unset keys still need registering for environment overrides to reach Unmarshal.
	for _, key := range []string{
		"output_dir", "publish.dir",
		"publish.smtp.host", "publish.smtp.port", "publish.smtp.username", "publish.smtp.password",
		"publish.smtp.from", "publish.smtp.subject",
		"publish.telegram.token", "publish.telegram.chat_id", "publish.telegram.base_url",
		"sheets.spreadsheet_id", "sheets.token", "sheets.api_key", "sheets.profile",
	} {
		viper.SetDefault(key, "")
	}
}

// Dir returns the configuration directory, ~/.pricekit.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pricekit"
	}
	return filepath.Join(home, ".pricekit")
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
