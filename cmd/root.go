// Package cmd contains all CLI commands for the pricekit binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/pricekit/cmd/batch"
	"github.com/klytics/pricekit/cmd/cleanup"
	"github.com/klytics/pricekit/cmd/completion"
	cmdconfig "github.com/klytics/pricekit/cmd/config"
	"github.com/klytics/pricekit/cmd/doctor"
	"github.com/klytics/pricekit/cmd/history"
	"github.com/klytics/pricekit/cmd/inspect"
	"github.com/klytics/pricekit/cmd/process"
	cmdpublish "github.com/klytics/pricekit/cmd/publish"
	cmdsheets "github.com/klytics/pricekit/cmd/sheets"
	"github.com/klytics/pricekit/cmd/split"
	"github.com/klytics/pricekit/cmd/version"
	cmdwatch "github.com/klytics/pricekit/cmd/watch"
	"github.com/klytics/pricekit/internal/output"
)

var (
	jsonOutput bool
	verbose    bool
	noColor    bool
)

// NewRootCommand creates and returns the root cobra command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pricekit",
		Short: "Reprice supplier .xlsx price lists without touching anything else",
		Long: `pricekit adds a markup to the price column of supplier price lists.

Only the numeric price cells change. Images, styles, merged cells and every
other part of the workbook are kept byte for byte. When a workbook cannot be
rewritten, an unmodified copy is delivered instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
			if jsonOutput {
				os.Setenv("PRICEKIT_JSON", "true")
			}
		},
	}

	// Global persistent flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable ANSI color output")

	// Register subcommands
	rootCmd.AddCommand(process.NewCommand())
	rootCmd.AddCommand(split.NewCommand())
	rootCmd.AddCommand(batch.NewCommand())
	rootCmd.AddCommand(inspect.NewCommand())
	rootCmd.AddCommand(cmdwatch.NewCommand())
	rootCmd.AddCommand(cmdsheets.NewCommand())
	rootCmd.AddCommand(cmdpublish.NewCommand())
	rootCmd.AddCommand(history.NewCommand())
	rootCmd.AddCommand(cleanup.NewCommand())
	rootCmd.AddCommand(cmdconfig.NewCommand())
	rootCmd.AddCommand(doctor.NewCommand())
	rootCmd.AddCommand(completion.NewCommand(rootCmd))
	rootCmd.AddCommand(version.NewCommand())

	return rootCmd
}

// Execute runs the root command and handles any returned errors.
func Execute() {
	rootCmd := NewRootCommand()
	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}
	if jsonOutput {
		output.PrintJSONError(cmd.CommandPath(), err, output.ExitUserError)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(output.ExitUserError)
}
