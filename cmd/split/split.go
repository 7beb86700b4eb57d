// Package split provides the "pricekit split" command.
package split

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klytics/pricekit/cmd/process"
	"github.com/klytics/pricekit/internal/app"
	"github.com/klytics/pricekit/internal/formats/xlsx"
	"github.com/klytics/pricekit/internal/output"
	"github.com/klytics/pricekit/internal/profile"
	"github.com/klytics/pricekit/internal/reprice"
)

// NewCommand returns the split subcommand.
func NewCommand() *cobra.Command {
	var (
		outDir      string
		markup      float64
		profileName string
		column      string
		headerRow   int
		noReprice   bool
	)

	cmd := &cobra.Command{
		Use:   "split <file.xlsx>",
		Short: "Split a workbook into one price list per sheet",
		Long: `Writes every sheet of a workbook to its own <sheet>.xlsx file and reprices each
of them. The markup comes from --markup, --profile, or the profile matching
the file name. Use --no-reprice to only split.`,
		Example: `  pricekit split "CR prices.xlsx" --out-dir ./out
  pricekit split catalog.xlsx --no-reprice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")
			input := args[0]
			if outDir == "" {
				stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
				outDir = filepath.Join(filepath.Dir(input), reprice.DefaultOutputSubdir, stem)
			}

			if noReprice {
				copies, err := xlsx.SplitSheets(input, outDir)
				if err != nil {
					return err
				}
				if jsonFlag {
					return output.PrintJSON("split", copies)
				}
				for _, c := range copies {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s → %s\n", c.Sheet, c.Path)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Split %d sheet(s)\n", len(copies))
				return nil
			}

			a, err := app.FromCommand(cmd, true)
			if err != nil {
				return err
			}

			req, err := request(a, cmd, input, profileName, markup, column, headerRow)
			if err != nil {
				return err
			}
			results, err := a.Processor.ProcessSplit(req, outDir)
			if err != nil {
				return err
			}

			if jsonFlag {
				return output.PrintJSON("split", results)
			}
			total := 0
			for _, res := range results {
				process.PrintResult(cmd.OutOrStdout(), res)
				total += res.Updated
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d sheet(s), %d price(s) updated\n", len(results), total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Directory for the per-sheet files (default: <dir>/processed_files/<name>)")
	cmd.Flags().Float64Var(&markup, "markup", 0, "Amount added to every price (overrides the profile)")
	cmd.Flags().StringVar(&profileName, "profile", "", "Use this profile instead of matching by file name")
	cmd.Flags().StringVar(&column, "column", "D", "Price column as letters or 1-based index (with --markup)")
	cmd.Flags().IntVar(&headerRow, "header-row", reprice.DefaultHeaderRow, "Last header row (with --markup)")
	cmd.Flags().BoolVar(&noReprice, "no-reprice", false, "Only split, do not change prices")
	cmd.MarkFlagsMutuallyExclusive("markup", "profile")

	return cmd
}

func request(a *app.App, cmd *cobra.Command, input, profileName string, markup float64, column string, headerRow int) (reprice.Request, error) {
	if cmd.Flags().Changed("markup") {
		col, err := app.ParseColumn(column)
		if err != nil {
			return reprice.Request{}, err
		}
		return reprice.Request{InputPath: input, Markup: markup, PriceColumn: col, HeaderRow: headerRow}, nil
	}

	if profileName != "" {
		p, ok := a.Selector.Lookup(profileName)
		if !ok {
			return reprice.Request{}, fmt.Errorf("unknown profile %q — run 'pricekit config show' to list profiles", profileName)
		}
		return p.Request(input, ""), nil
	}

	p, err := a.Selector.Select(profile.NewCandidate(input, "cli"))
	if err != nil {
		return reprice.Request{}, err
	}
	return p.Request(input, ""), nil
}
