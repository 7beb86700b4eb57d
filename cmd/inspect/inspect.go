// Package inspect provides the "pricekit inspect" command.
package inspect

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/pricekit/internal/app"
	"github.com/klytics/pricekit/internal/formats/xlsx"
	"github.com/klytics/pricekit/internal/output"
	"github.com/klytics/pricekit/internal/profile"
	"github.com/klytics/pricekit/internal/reprice"
)

type sheetReport struct {
	Name    string           `json:"name"`
	Cells   []xlsx.PriceCell `json:"cells"`
	Numeric int              `json:"numeric"`
}

type report struct {
	File    string        `json:"file"`
	Profile string        `json:"profile"`
	Markup  float64       `json:"markup"`
	Column  string        `json:"column"`
	Header  int           `json:"headerRow"`
	Sheets  []sheetReport `json:"sheets"`
}

// NewCommand returns the inspect subcommand.
func NewCommand() *cobra.Command {
	var (
		sheetName string
		column    string
		headerRow int
		limit     int
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <file.xlsx>",
		Short: "Show the price cells a run would change",
		Long: `Lists the cells of the price column below the header row, which profile the
file name selects, and which cells are numeric and would receive the markup.
Nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")
			input := args[0]

			if all {
				return dumpWorkbook(cmd, input, sheetName, limit, jsonFlag)
			}

			a, err := app.FromCommand(cmd, true)
			if err != nil {
				return err
			}
			p, err := a.Selector.Select(profile.NewCandidate(input, "cli"))
			if err != nil {
				return err
			}

			col := p.Column()
			if column != "" {
				if col, err = app.ParseColumn(column); err != nil {
					return err
				}
			}
			header := p.Header()
			if cmd.Flags().Changed("header-row") {
				header = headerRow
			}

			names := []string{sheetName}
			if sheetName == "" {
				if names, err = xlsx.ListSheets(input); err != nil {
					return err
				}
			}

			rep := report{File: input, Profile: p.Name, Markup: p.Markup, Column: xlsx.ColumnLetter(col), Header: header}
			for _, name := range names {
				cells, err := xlsx.ReadPrices(input, name, col, header)
				if err != nil {
					return err
				}
				sr := sheetReport{Name: name, Cells: cells}
				for _, c := range cells {
					if c.Numeric {
						sr.Numeric++
					}
				}
				rep.Sheets = append(rep.Sheets, sr)
			}

			if jsonFlag {
				return output.PrintJSON("inspect", rep)
			}
			printReport(cmd, rep, limit)
			return nil
		},
	}

	cmd.Flags().StringVar(&sheetName, "sheet", "", "Inspect only the named sheet")
	cmd.Flags().StringVar(&column, "column", "", "Price column as letters or 1-based index (default: from profile)")
	cmd.Flags().IntVar(&headerRow, "header-row", reprice.DefaultHeaderRow, "Last header row (default: from profile)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Cells (or rows with --all) to list per sheet (0 for all)")
	cmd.Flags().BoolVar(&all, "all", false, "Dump every row of the workbook instead of the price column")

	return cmd
}

func printReport(cmd *cobra.Command, rep report, limit int) {
	w := cmd.OutOrStdout()
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(w, "%s\n", bold(filepath.Base(rep.File)))
	fmt.Fprintf(w, "  profile %s, markup +%g, column %s, prices below row %d\n\n", rep.Profile, rep.Markup, rep.Column, rep.Header)

	for _, s := range rep.Sheets {
		fmt.Fprintf(w, "Sheet %s: %d of %d cell(s) numeric\n", bold(s.Name), s.Numeric, len(s.Cells))
		for i, c := range s.Cells {
			if limit > 0 && i == limit {
				fmt.Fprintf(w, "  %s\n", dim(fmt.Sprintf("... %d more", len(s.Cells)-limit)))
				break
			}
			if c.Numeric {
				fmt.Fprintf(w, "  %-8s %-14s → %s\n", c.Ref, c.Text, xlsx.FormatPrice(*c.Value+rep.Markup))
			} else {
				fmt.Fprintf(w, "  %-8s %s\n", c.Ref, dim(c.Text+" (kept)"))
			}
		}
		fmt.Fprintln(w)
	}
}

// dumpWorkbook prints the cell text of every row, as excelize reads it.
func dumpWorkbook(cmd *cobra.Command, input, sheetName string, limit int, jsonFlag bool) error {
	wb, err := xlsx.ReadFile(input)
	if err != nil {
		return err
	}
	sheets := wb.Sheets
	if sheetName != "" {
		s, err := wb.GetSheet(sheetName)
		if err != nil {
			return err
		}
		sheets = []xlsx.Sheet{*s}
	}

	if jsonFlag {
		return output.PrintJSON("inspect", sheets)
	}

	w := cmd.OutOrStdout()
	bold := color.New(color.Bold).SprintFunc()
	for _, s := range sheets {
		fmt.Fprintf(w, "Sheet %s (%d rows)\n", bold(s.Name), len(s.Rows))
		for i, row := range s.Rows {
			if limit > 0 && i == limit {
				fmt.Fprintf(w, "  ... %d more\n", len(s.Rows)-limit)
				break
			}
			fmt.Fprintf(w, "  %4d  %s\n", i+1, strings.Join(row, " | "))
		}
		fmt.Fprintln(w)
	}
	return nil
}
