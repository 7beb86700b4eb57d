// Package watch provides the "pricekit watch" commands for the inbox watcher.
package watch

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/klytics/pricekit/internal/app"
	"github.com/klytics/pricekit/internal/output"
	w "github.com/klytics/pricekit/internal/watch"
)

// NewCommand creates the "watch" command with subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch inbox directories and reprice new price lists",
		Long: `Watch directories for new or modified .xlsx price lists and run each one
through profile selection, repricing and delivery.

Example:
  pricekit watch start ~/PriceInbox
  pricekit watch status
  pricekit watch stop`,
	}

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func newStartCmd() *cobra.Command {
	var (
		recursive   bool
		debounce    int
		profileName string
		pattern     string
		outDir      string
	)

	cmd := &cobra.Command{
		Use:   "start [directory...]",
		Short: "Start watching (default: watch.directories from the config)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.FromCommand(cmd, false)
			if err != nil {
				return err
			}

			config := a.WatchConfig(args)
			if len(config.Directories) == 0 {
				return fmt.Errorf("no directory to watch — pass one or run 'pricekit config set watch.directories <dir>'")
			}
			if cmd.Flags().Changed("recursive") {
				config.Recursive = recursive
			}
			if cmd.Flags().Changed("debounce") {
				config.Debounce = debounce
			}
			if outDir != "" {
				config.IgnorePaths = append(config.IgnorePaths, outDir)
			}
			if profileName != "" || pattern != "" {
				config.Rules = []w.Rule{{ID: "cli", Pattern: pattern, Profile: profileName, Enabled: true}}
			}

			watcher, err := w.New(config)
			if err != nil {
				return err
			}
			runner := a.Runner(outDir)
			watcher.Logger = a.Logger
			watcher.Handler = app.WatchHandler(runner)

			// Write PID
			configDir := w.DefaultConfigDir()
			if err := w.WritePIDFile(configDir); err != nil {
				a.Logger.Warn("could not write PID file", "error", err)
			}
			defer w.RemovePIDFile(configDir)

			// Save config for status command
			if err := w.SaveConfig(configDir, config); err != nil {
				a.Logger.Warn("could not save watcher config", "error", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for price lists\n", strings.Join(config.Directories, ", "))
			fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			err = watcher.Start(ctx)
			stats := runner.Stats()
			a.Logger.Info("watcher stopped", "processed", stats.Processed, "errors", stats.Errors, "skipped", stats.Skipped, "uptime", stats.Uptime())
			return err
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Watch directories recursively")
	cmd.Flags().IntVar(&debounce, "debounce", 2000, "Milliseconds a file must stay unchanged before processing")
	cmd.Flags().StringVar(&profileName, "profile", "", "Use this profile for every file")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Only process files whose name matches this glob")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Output directory (default: processed_files next to each input)")

	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir := w.DefaultConfigDir()
			pid, err := w.ReadPIDFile(configDir)
			if err != nil {
				return fmt.Errorf("no watcher running (PID file not found)")
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("could not find process %d: %w", pid, err)
			}

			if err := process.Signal(syscall.SIGTERM); err != nil {
				w.RemovePIDFile(configDir)
				return fmt.Errorf("could not stop watcher (PID %d): %w", pid, err)
			}

			w.RemovePIDFile(configDir)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return output.PrintJSON("watch stop", map[string]any{"stopped": true, "pid": pid})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Stopped watcher (PID %d)\n", pid)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current watcher status",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir := w.DefaultConfigDir()

			pid, err := w.ReadPIDFile(configDir)
			running := err == nil

			// Signal 0 checks that the process still exists.
			if running {
				process, err := os.FindProcess(pid)
				if err != nil || process.Signal(syscall.Signal(0)) != nil {
					running = false
					w.RemovePIDFile(configDir)
				}
			}

			jsonOut, _ := cmd.Flags().GetBool("json")

			if !running {
				if jsonOut {
					return output.PrintJSON("watch status", map[string]any{"running": false})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Watcher is not running")
				return nil
			}

			config, _ := w.LoadConfig(configDir)

			status := map[string]any{
				"running": true,
				"pid":     pid,
			}
			if config != nil {
				status["directories"] = config.Directories
				status["rules"] = len(config.Rules)
				status["recursive"] = config.Recursive
			}

			if jsonOut {
				return output.PrintJSON("watch status", status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watcher is running (PID %d)\n", pid)
			if config != nil {
				fmt.Fprintf(out, "  Directories: %s\n", strings.Join(config.Directories, ", "))
				fmt.Fprintf(out, "  Rules:       %d\n", len(config.Rules))
				fmt.Fprintf(out, "  Recursive:   %v\n", config.Recursive)
			}
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the configuration of the last started watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := w.LoadConfig(w.DefaultConfigDir())
			if err != nil {
				return fmt.Errorf("no watcher configuration found (run 'pricekit watch start' first)")
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return output.PrintJSON("watch config", config)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Directories: %s\n", strings.Join(config.Directories, ", "))
			fmt.Fprintf(out, "Recursive:   %v\n", config.Recursive)
			fmt.Fprintf(out, "Debounce:    %s\n", time.Duration(config.Debounce)*time.Millisecond)
			fmt.Fprintf(out, "Ignored:     %s\n", strings.Join(config.IgnoreDirs, ", "))
			fmt.Fprintf(out, "Rules:       %d\n", len(config.Rules))
			for _, r := range config.Rules {
				profile := r.Profile
				if profile == "" {
					profile = "by file name"
				}
				fmt.Fprintf(out, "  [%s] pattern=%q ext=%v profile=%s enabled=%v\n",
					r.ID, r.Pattern, r.Extensions, profile, r.Enabled)
			}
			return nil
		},
	}
}

