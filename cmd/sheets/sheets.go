// Package sheets provides the "pricekit sheets" commands for the shared
// online spreadsheet source.
package sheets

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/klytics/pricekit/cmd/process"
	"github.com/klytics/pricekit/internal/app"
	"github.com/klytics/pricekit/internal/output"
	"github.com/klytics/pricekit/internal/pipeline"
	"github.com/klytics/pricekit/internal/progress"
	s "github.com/klytics/pricekit/internal/sheets"
)

// NewCommand returns the sheets command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Pull price lists from a shared online spreadsheet",
		Long: `Downloads the spreadsheet configured under sheets.* as an .xlsx file.

Mode "export" downloads the spreadsheet's own .xlsx rendition. Mode "values"
reads the cell values through the API and builds the workbook locally.`,
	}

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newPollCmd())
	return cmd
}

func newFetchCmd() *cobra.Command {
	var (
		dir     string
		reprice bool
		publish bool
		sheetID string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the spreadsheet once",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")

			a, err := app.FromCommand(cmd, !publish)
			if err != nil {
				return err
			}
			cfg := a.Config.Sheets
			if sheetID != "" {
				cfg.SpreadsheetID = sheetID
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if dir == "" {
				dir = "."
			}

			spin := progress.NewSpinner("Downloading spreadsheet " + cfg.SpreadsheetID)
			spin.Start()
			exp, err := s.NewExporter(cfg).Export(cmd.Context(), dir)
			if err != nil {
				spin.Stop("download failed")
				return err
			}
			if !reprice {
				spin.Stop("saved " + exp.Path)
				if jsonFlag {
					return output.PrintJSON("sheets fetch", exp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", exp.Path)
				return nil
			}

			runner := a.Runner("")
			runner.KeepFiles = !publish
			spin.Update("Repricing " + exp.Path)
			out, err := runner.Handle(cmd.Context(), pipeline.Intake{Path: exp.Path, Source: "sheets", Profile: cfg.Profile})
			if err != nil {
				spin.Stop("repricing failed")
				return err
			}
			spin.Stop("repriced " + exp.Path)
			if jsonFlag {
				return output.PrintJSON("sheets fetch", out)
			}
			process.PrintOutcome(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory for the downloaded file (default: current directory)")
	cmd.Flags().BoolVar(&reprice, "process", false, "Reprice the downloaded file")
	cmd.Flags().BoolVar(&publish, "publish", false, "Deliver the repriced file through the configured publisher")
	cmd.Flags().StringVar(&sheetID, "id", "", "Spreadsheet ID (default: sheets.spreadsheet_id)")

	return cmd
}

func newPollCmd() *cobra.Command {
	var (
		once   bool
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll the spreadsheet and process every change",
		Long: `Exports the spreadsheet every sheets.interval, reprices each export whose
content changed since the previous one, and delivers it through the
configured publisher. Downloaded files are removed after processing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.FromCommand(cmd, false)
			if err != nil {
				return err
			}
			runner := a.Runner(outDir)
			poller, err := a.Poller(runner)
			if err != nil {
				return err
			}

			if once {
				changed, err := poller.Poll(cmd.Context())
				if err != nil {
					return err
				}
				jsonFlag, _ := cmd.Flags().GetBool("json")
				if jsonFlag {
					return output.PrintJSON("sheets poll", map[string]any{"changed": changed, "stats": runner.Stats()})
				}
				if changed {
					fmt.Fprintln(cmd.OutOrStdout(), "Spreadsheet processed")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "No changes")
				}
				return nil
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			fmt.Fprintf(cmd.OutOrStdout(), "Polling spreadsheet %s every %s\n", a.Config.Sheets.SpreadsheetID, poller.Interval)
			fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")
			err = poller.Run(ctx)

			stats := runner.Stats()
			a.Logger.Info("poller stopped", "processed", stats.Processed, "errors", stats.Errors, "uptime", stats.Uptime())
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Poll a single time and exit")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Output directory (default: processed_files in temp_dir)")

	return cmd
}
