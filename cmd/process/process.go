// Package process provides the "pricekit process" command.
package process

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/pricekit/internal/app"
	"github.com/klytics/pricekit/internal/output"
	"github.com/klytics/pricekit/internal/pipeline"
	"github.com/klytics/pricekit/internal/reprice"
)

// NewCommand returns the process subcommand.
func NewCommand() *cobra.Command {
	var (
		markup      float64
		profileName string
		outPath     string
		column      string
		headerRow   int
		publish     bool
	)

	cmd := &cobra.Command{
		Use:   "process <file.xlsx>",
		Short: "Add a markup to the prices of one price list",
		Long: `Adds a markup to every numeric cell of the price column below the header row.

With --markup the file is repriced directly. Without it the markup, column and
header row come from the profile matching the file name (or --profile), and
the result is delivered through the configured publisher when --publish is set.

If the workbook cannot be rewritten, an unmodified copy is written to the
output path and the result is reported as a fallback. In profile mode only
the directory of --out is used; the file is named <name>_Update.xlsx.`,
		Example: `  pricekit process "Benks 01.03.xlsx"
  pricekit process prices.xlsx --markup 50 --column D --header-row 5
  pricekit process prices.xlsx --profile xtreme_case --publish`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")
			input := args[0]
			if !strings.EqualFold(filepath.Ext(input), ".xlsx") {
				return fmt.Errorf("expected an .xlsx file, got %q — use 'pricekit process <file.xlsx>'", input)
			}

			a, err := app.FromCommand(cmd, !publish)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("markup") {
				col, err := app.ParseColumn(column)
				if err != nil {
					return err
				}
				if outPath == "" {
					outPath = reprice.DefaultOutputPath(input, a.Config.OutputSubdir)
				}
				res, err := a.Processor.Process(reprice.Request{
					InputPath:   input,
					OutputPath:  outPath,
					Markup:      markup,
					PriceColumn: col,
					HeaderRow:   headerRow,
				})
				if err != nil {
					return err
				}
				if jsonFlag {
					return output.PrintJSON("process", res)
				}
				PrintResult(cmd.OutOrStdout(), res)
				return nil
			}

			outDir := ""
			if outPath != "" {
				outDir = filepath.Dir(outPath)
			}
			runner := a.Runner(outDir)
			runner.KeepFiles = true
			out, err := runner.Handle(cmd.Context(), pipeline.Intake{Path: input, Source: "cli", Profile: profileName})
			if err != nil {
				return err
			}
			if jsonFlag {
				return output.PrintJSON("process", out)
			}
			PrintOutcome(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().Float64Var(&markup, "markup", 0, "Amount added to every price (overrides the profile)")
	cmd.Flags().StringVar(&profileName, "profile", "", "Use this profile instead of matching by file name")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default: <dir>/processed_files/<name>_Update.xlsx)")
	cmd.Flags().StringVar(&column, "column", "D", "Price column as letters or 1-based index (with --markup)")
	cmd.Flags().IntVar(&headerRow, "header-row", reprice.DefaultHeaderRow, "Last header row; prices start below it (with --markup)")
	cmd.Flags().BoolVar(&publish, "publish", false, "Deliver the result through the configured publisher")
	cmd.MarkFlagsMutuallyExclusive("markup", "profile")

	return cmd
}

// PrintResult prints one repricing result.
func PrintResult(w io.Writer, res *reprice.Result) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	name := filepath.Base(res.Output)
	if res.Sheet != "" {
		name = fmt.Sprintf("%s (%s)", name, res.Sheet)
	}
	if res.Fallback {
		fmt.Fprintf(w, "%s %s: copied unmodified — %s\n", yellow("!"), name, res.Reason)
		return
	}
	fmt.Fprintf(w, "%s %s: %d price(s) updated\n", green("✓"), name, res.Updated)
	for _, s := range res.Sheets {
		fmt.Fprintf(w, "    %s: %d\n", s.Part, s.Updated)
	}
	fmt.Fprintf(w, "  → %s\n", res.Output)
}

// PrintOutcome prints what happened to one pipeline intake.
func PrintOutcome(w io.Writer, out *pipeline.Outcome) {
	if out.Skipped != "" {
		fmt.Fprintf(w, "%s skipped: %s\n", filepath.Base(out.Input), out.Skipped)
		return
	}
	fmt.Fprintf(w, "Profile %s (markup +%g)\n", color.New(color.Bold).Sprint(out.Profile), out.Markup)
	for _, res := range out.Results {
		PrintResult(w, res)
	}
	if out.Published {
		fmt.Fprintln(w, "Delivered")
	}
}
