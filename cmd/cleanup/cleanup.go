// Package cleanup provides the "pricekit cleanup" command.
package cleanup

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/pricekit/internal/config"
	"github.com/klytics/pricekit/internal/fs"
	"github.com/klytics/pricekit/internal/output"
)

// leftoverKinds are removed from inbox directories. Price lists and
// processed files there belong to the user.
var leftoverKinds = []string{fs.KindPartial, fs.KindScratch, fs.KindLock}

// NewCommand returns the cleanup subcommand.
func NewCommand() *cobra.Command {
	var (
		maxAge time.Duration
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup [dir]...",
		Short: "Remove stale temporary files",
		Long: `Removes everything older than --max-age from temp_dir, and stale partial
downloads, scratch directories and Office lock files from the given
directories (default: the watched inbox directories).`,
		Example: `  pricekit cleanup --dry-run
  pricekit cleanup ~/Inbox --max-age 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-age") {
				maxAge = cfg.Cleanup.MaxAge
			}
			if maxAge < 0 {
				return fmt.Errorf("invalid --max-age %s — must not be negative", maxAge)
			}

			dirs := args
			if len(dirs) == 0 {
				dirs = cfg.Watch.Directories
			}

			stale, err := collect(cfg.TempDir, dirs, cfg.Watch.Recursive, maxAge, time.Now())
			if err != nil {
				return err
			}
			results := fs.Remove(stale, dryRun)

			if jsonFlag {
				return output.PrintJSON("cleanup", map[string]any{
					"dryRun":  dryRun,
					"maxAge":  maxAge.String(),
					"removed": results,
					"freed":   fs.Freed(results),
				})
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintf(out, "Nothing older than %s to clean up\n", maxAge)
				return nil
			}

			failed := 0
			var planned int64
			for _, r := range results {
				planned += r.Size
				switch {
				case r.Error != "":
					failed++
					color.New(color.FgRed).Fprintf(out, "  ✗ %s: %s\n", r.Path, r.Error)
				case dryRun:
					fmt.Fprintf(out, "  would remove %-8s %s (%s)\n", r.Kind, r.Path, fs.FormatSize(r.Size))
				default:
					fmt.Fprintf(out, "  removed %-8s %s (%s)\n", r.Kind, r.Path, fs.FormatSize(r.Size))
				}
			}

			if dryRun {
				fmt.Fprintf(out, "\n%d items, %s would be freed (dry run)\n", len(results), fs.FormatSize(planned))
				return nil
			}
			fmt.Fprintf(out, "\nRemoved %d items, freed %s\n", len(results)-failed, fs.FormatSize(fs.Freed(results)))
			if failed > 0 {
				return fmt.Errorf("%d items could not be removed", failed)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "Remove files not modified within this duration (default: cleanup.max_age)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be removed without deleting")

	return cmd
}

// collect returns the stale files of tempDir (any kind) and of dirs
// (leftovers only), oldest first. Missing directories are skipped.
func collect(tempDir string, dirs []string, recursive bool, maxAge time.Duration, now time.Time) ([]fs.FileInfo, error) {
	var files []fs.FileInfo

	if tempDir != "" {
		if _, err := os.Stat(tempDir); err == nil {
			res, err := fs.Scan(tempDir, fs.ScanOptions{Recursive: true})
			if err != nil {
				return nil, err
			}
			files = append(files, res.Files...)
		}
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		res, err := fs.Scan(dir, fs.ScanOptions{Recursive: recursive, Kinds: leftoverKinds})
		if err != nil {
			return nil, err
		}
		files = append(files, res.Files...)
	}

	return fs.StaleFiles(dedupePaths(files), maxAge, now), nil
}

// dedupePaths drops repeated entries when tempDir lies inside a scanned dir.
func dedupePaths(files []fs.FileInfo) []fs.FileInfo {
	seen := make(map[string]bool, len(files))
	out := files[:0]
	for _, f := range files {
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		out = append(out, f)
	}
	return out
}
