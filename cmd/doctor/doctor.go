// Package doctor provides the "pricekit doctor" command for checking system health.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/pricekit/internal/config"
	"github.com/klytics/pricekit/internal/journal"
	"github.com/klytics/pricekit/internal/output"
	"github.com/klytics/pricekit/internal/profile"
	"github.com/klytics/pricekit/internal/publish"
	"github.com/klytics/pricekit/internal/watch"
)

// Check represents a single health check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message"`
}

// NewCommand creates the "doctor" command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and environment health",
		Long:  "Run diagnostic checks to verify pricekit is properly configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			checks := runChecks(cfg)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return output.PrintJSON("doctor", checks)
			}

			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "pricekit doctor")
			fmt.Fprintln(out, "===============")
			fmt.Fprintln(out)

			okCount, warnCount, errCount := 0, 0, 0
			for _, c := range checks {
				var icon string
				switch c.Status {
				case "ok":
					icon = green("✓")
					okCount++
				case "warning":
					icon = yellow("!")
					warnCount++
				case "error":
					icon = red("✗")
					errCount++
				}
				fmt.Fprintf(out, "  %s %s: %s\n", icon, c.Name, c.Message)
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "  %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)

			if errCount > 0 {
				return fmt.Errorf("%d check(s) failed", errCount)
			}
			return nil
		},
	}
}

func runChecks(cfg *config.Config) []Check {
	var checks []Check

	checks = append(checks, Check{
		Name:    "Go Runtime",
		Status:  "ok",
		Message: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	configDir := config.Dir()
	if info, err := os.Stat(configDir); err == nil && info.IsDir() {
		checks = append(checks, Check{Name: "Config Directory", Status: "ok", Message: configDir})
	} else {
		checks = append(checks, Check{
			Name:    "Config Directory",
			Status:  "warning",
			Message: fmt.Sprintf("%s not found — run 'pricekit config init'", configDir),
		})
	}

	if _, err := os.Stat(config.ConfigPath()); err == nil {
		checks = append(checks, Check{Name: "Config File", Status: "ok", Message: config.ConfigPath()})
	} else {
		checks = append(checks, Check{
			Name:    "Config File",
			Status:  "warning",
			Message: "Not found, using defaults — run 'pricekit config init'",
		})
	}

	checks = append(checks, checkWritable("Temp Directory", cfg.TempDir))

	if cfg.Journal.Enabled {
		checks = append(checks, Check{
			Name:    "Journal",
			Status:  "ok",
			Message: fmt.Sprintf("%s (%d bytes)", cfg.Journal.Path, journal.Size(cfg.Journal.Path)),
		})
	} else {
		checks = append(checks, Check{Name: "Journal", Status: "warning", Message: "Disabled"})
	}

	if sel, err := profile.NewSelector(cfg.Profiles); err != nil {
		checks = append(checks, Check{Name: "Profiles", Status: "error", Message: err.Error()})
	} else {
		checks = append(checks, Check{
			Name:    "Profiles",
			Status:  "ok",
			Message: fmt.Sprintf("%d profiles compiled", len(sel.Profiles())),
		})
	}

	switch p, err := publish.New(cfg.Publish); {
	case err != nil:
		checks = append(checks, Check{Name: "Publisher", Status: "error", Message: err.Error()})
	case p.Name() == publish.KindNone:
		checks = append(checks, Check{
			Name:    "Publisher",
			Status:  "warning",
			Message: "None — results stay local; run 'pricekit config set publish.kind dir'",
		})
	default:
		checks = append(checks, Check{Name: "Publisher", Status: "ok", Message: p.Name()})
	}

	if len(cfg.Watch.Directories) == 0 {
		checks = append(checks, Check{Name: "Watch Directories", Status: "warning", Message: "None configured"})
	}
	for _, dir := range cfg.Watch.Directories {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			checks = append(checks, Check{Name: "Watch Directory", Status: "ok", Message: dir})
		} else {
			checks = append(checks, Check{Name: "Watch Directory", Status: "error", Message: dir + " does not exist"})
		}
	}

	if cfg.Sheets.SpreadsheetID == "" {
		checks = append(checks, Check{Name: "Spreadsheet Source", Status: "warning", Message: "sheets.spreadsheet_id not set"})
	} else if err := cfg.Sheets.Validate(); err != nil {
		checks = append(checks, Check{Name: "Spreadsheet Source", Status: "error", Message: err.Error()})
	} else {
		checks = append(checks, Check{Name: "Spreadsheet Source", Status: "ok", Message: cfg.Sheets.SpreadsheetID})
	}

	checks = append(checks, checkWatcher(watch.DefaultConfigDir()))

	return checks
}

// checkWritable creates and removes a scratch file in dir.
func checkWritable(name, dir string) Check {
	if dir == "" {
		return Check{Name: name, Status: "error", Message: "not set"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: name, Status: "error", Message: fmt.Sprintf("could not create %s: %v", dir, err)}
	}
	scratch, err := os.CreateTemp(dir, ".pricekit-write-*")
	if err != nil {
		return Check{Name: name, Status: "error", Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	scratch.Close()
	os.Remove(scratch.Name())

	abs, _ := filepath.Abs(dir)
	return Check{Name: name, Status: "ok", Message: abs}
}

func checkWatcher(stateDir string) Check {
	pid, err := watch.ReadPIDFile(stateDir)
	if err != nil {
		return Check{Name: "Watcher", Status: "ok", Message: "Not running"}
	}
	process, err := os.FindProcess(pid)
	if err != nil || process.Signal(syscall.Signal(0)) != nil {
		return Check{
			Name:    "Watcher",
			Status:  "warning",
			Message: fmt.Sprintf("Stale PID file for %d — run 'pricekit watch status' to clear it", pid),
		}
	}
	return Check{Name: "Watcher", Status: "ok", Message: fmt.Sprintf("Running (PID %d)", pid)}
}
