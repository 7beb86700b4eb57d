// Package history provides the "pricekit history" command.
package history

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/pricekit/internal/app"
	"github.com/klytics/pricekit/internal/config"
	"github.com/klytics/pricekit/internal/journal"
	"github.com/klytics/pricekit/internal/output"
)

// NewCommand returns the history subcommand.
func NewCommand() *cobra.Command {
	var (
		since   string
		source  string
		prof    string
		status  string
		limit   int
		summary bool
		clear   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show processed price lists",
		Long:  "Reads the processing journal: one entry per input file with its profile, markup, outputs and outcome.",
		Example: `  pricekit history --since 24h
  pricekit history --status fallback
  pricekit history --summary --since 7d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			path := cfg.Journal.Path

			if clear {
				if err := journal.Clear(path); err != nil {
					return err
				}
				if jsonFlag {
					return output.PrintJSON("history", map[string]any{"cleared": true})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Journal cleared")
				return nil
			}

			q := journal.Query{Source: source, Profile: prof, Status: status}
			if since != "" {
				if q.Since, err = app.ParseSince(since, time.Now()); err != nil {
					return err
				}
			}

			entries, err := journal.Read(path)
			if err != nil {
				return err
			}
			entries = journal.Filter(entries, q)
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			if summary {
				s := journal.Summarize(entries)
				if jsonFlag {
					return output.PrintJSON("history", s)
				}
				fmt.Fprint(cmd.OutOrStdout(), formatSummary(s))
				return nil
			}

			if jsonFlag {
				return output.PrintJSON("history", entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No entries")
				return nil
			}
			output.PrintLong(formatEntries(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only entries newer than a duration (24h, 7d) or date (2006-01-02)")
	cmd.Flags().StringVar(&source, "source", "", "Filter by source (inbox, sheets, cli, batch, publish)")
	cmd.Flags().StringVar(&prof, "profile", "", "Filter by profile name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (ok, fallback, error, skipped)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the last N entries")
	cmd.Flags().BoolVar(&summary, "summary", false, "Show totals instead of entries")
	cmd.Flags().BoolVar(&clear, "clear", false, "Truncate the journal")

	return cmd
}

func formatEntries(entries []journal.Entry) string {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	var b strings.Builder
	for _, e := range entries {
		icon := green("✓")
		switch e.Status {
		case journal.StatusFallback, journal.StatusSkipped:
			icon = yellow("!")
		case journal.StatusError:
			icon = red("✗")
		}
		fmt.Fprintf(&b, "%s %s  %-7s %-8s %s", icon, e.Timestamp.Format("2006-01-02 15:04:05"), e.Source, e.Status, e.Input)
		if e.Profile != "" {
			fmt.Fprintf(&b, "  [%s %+g, %d updated]", e.Profile, e.Markup, e.Updated)
		}
		b.WriteString("\n")
		for _, out := range e.Outputs {
			fmt.Fprintf(&b, "    → %s\n", filepath.Base(out))
		}
		if e.Error != "" {
			fmt.Fprintf(&b, "    %s\n", e.Error)
		}
	}
	return b.String()
}

func formatSummary(s journal.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Files:          %d\n", s.Files)
	fmt.Fprintf(&b, "Prices updated: %d\n", s.Updated)
	fmt.Fprintf(&b, "Fallbacks:      %d\n", s.Fallbacks)
	fmt.Fprintf(&b, "Errors:         %d\n", s.Errors)
	fmt.Fprintf(&b, "Skipped:        %d\n", s.Skipped)
	if !s.First.IsZero() {
		fmt.Fprintf(&b, "Period:         %s — %s\n", s.First.Format("2006-01-02 15:04"), s.Last.Format("2006-01-02 15:04"))
	}
	if len(s.ByProfile) > 0 {
		b.WriteString("By profile:\n")
		for _, name := range s.Profiles() {
			fmt.Fprintf(&b, "  %-16s %d\n", name, s.ByProfile[name])
		}
	}
	return b.String()
}
