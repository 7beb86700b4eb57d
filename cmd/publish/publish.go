// Package publish provides the "pricekit publish" command.
package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/klytics/pricekit/internal/app"
	"github.com/klytics/pricekit/internal/journal"
	"github.com/klytics/pricekit/internal/output"
	pub "github.com/klytics/pricekit/internal/publish"
)

// NewCommand returns the publish subcommand.
func NewCommand() *cobra.Command {
	var (
		caption string
		name    string
	)

	cmd := &cobra.Command{
		Use:   "publish <file>...",
		Short: "Deliver files through the configured publisher",
		Long: `Sends already processed files to the channel configured under publish.*
(an outbox directory, email or a Telegram chat). Useful to resend a result
or to test the publisher configuration.`,
		Example: `  pricekit publish processed_files/Benks_Update.xlsx
  pricekit publish out.xlsx --caption "Updated prices"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")

			a, err := app.FromCommand(cmd, false)
			if err != nil {
				return err
			}
			if a.Publisher.Name() == pub.KindNone {
				return fmt.Errorf("no publisher configured — run 'pricekit config set publish.kind dir' (or smtp, telegram)")
			}

			// Earlier runs supply the caption details for files they produced.
			entries, _ := journal.Read(a.Config.Journal.Path)

			var sent []string
			for _, path := range args {
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("file not found: %s — check that the path is correct", path)
				}
				item := pub.Item{Path: path, Caption: caption}
				if item.Caption == "" {
					item.Caption = captionFor(path, name, entries)
				}
				if err := a.Publisher.Publish(cmd.Context(), item); err != nil {
					return fmt.Errorf("could not publish %s: %w", path, err)
				}
				a.Journal.Record(journal.Entry{
					Source:  "publish",
					Input:   filepath.Base(path),
					Outputs: []string{path},
					Status:  journal.StatusOK,
				})
				sent = append(sent, path)
				if !jsonFlag {
					fmt.Fprintf(cmd.OutOrStdout(), "Sent %s via %s\n", filepath.Base(path), a.Publisher.Name())
				}
			}

			if jsonFlag {
				return output.PrintJSON("publish", map[string]any{"publisher": a.Publisher.Name(), "files": sent})
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caption, "caption", "", "Caption sent with each file (default: generated)")
	cmd.Flags().StringVar(&name, "name", "", "Source file name shown in the generated caption")

	return cmd
}

// captionFor describes path using the latest journal entry that produced
// it, or just its name when it has no history.
func captionFor(path, name string, entries []journal.Entry) string {
	abs, _ := filepath.Abs(path)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Source == "publish" || !slices.ContainsFunc(e.Outputs, func(o string) bool {
			oAbs, _ := filepath.Abs(o)
			return oAbs == abs
		}) {
			continue
		}
		original := e.Input
		if name != "" {
			original = name
		}
		return pub.Caption(original, e.Profile, e.Markup, e.Updated, e.Timestamp)
	}

	label := filepath.Base(path)
	if name != "" {
		label = name
	}
	return fmt.Sprintf("Price list: %s", label)
}
