// Package batch provides the "pricekit batch" command for repricing many files.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/pricekit/internal/app"
	"github.com/klytics/pricekit/internal/fs"
	"github.com/klytics/pricekit/internal/output"
	"github.com/klytics/pricekit/internal/pipeline"
	"github.com/klytics/pricekit/internal/progress"
)

type batchResultItem struct {
	File    string            `json:"file"`
	Status  string            `json:"status"`
	Outcome *pipeline.Outcome `json:"outcome,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type batchSummary struct {
	Files     []batchResultItem `json:"files"`
	Succeeded int               `json:"succeeded"`
	Fallbacks int               `json:"fallbacks"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Updated   int               `json:"updated"`
}

// NewCommand returns the batch subcommand.
func NewCommand() *cobra.Command {
	var (
		outDir      string
		profileName string
		concurrency int
		recursive   bool
		dedupe      bool
		publish     bool
	)

	cmd := &cobra.Command{
		Use:   "batch <directory|glob-pattern>",
		Short: "Reprice every price list in a directory or matching a pattern",
		Long: `Runs each matching .xlsx file through profile selection and repricing.

On error, the batch logs the failure and continues with the next file.
Files that fall back to an unmodified copy are reported but do not fail
the batch.`,
		Example: `  pricekit batch ./inbox
  pricekit batch './inbox/*.xlsx' --concurrency 4 --out-dir ./out
  pricekit batch ./inbox -r --dedupe --publish`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")

			files, err := collect(args[0], recursive, dedupe)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no price lists found in %q", args[0])
			}

			a, err := app.FromCommand(cmd, !publish)
			if err != nil {
				return err
			}
			runner := a.Runner(outDir)
			if !publish {
				runner.KeepFiles = true
			}

			results := make([]batchResultItem, len(files))
			bar := progress.New("Repricing", len(files))
			if concurrency < 1 {
				concurrency = 1
			}

			var wg sync.WaitGroup
			sem := make(chan struct{}, concurrency)
			for i, file := range files {
				wg.Add(1)
				go func(idx int, f string) {
					defer wg.Done()
					sem <- struct{}{}
					defer func() { <-sem }()

					item := batchResultItem{File: f, Status: "ok"}
					out, err := runner.Handle(cmd.Context(), pipeline.Intake{Path: f, Source: "batch", Profile: profileName})
					item.Outcome = out
					switch {
					case err != nil:
						item.Status = "error"
						item.Error = err.Error()
						bar.Note("%s %s: %v", color.RedString("✗"), filepath.Base(f), err)
					case out.Skipped != "":
						item.Status = "skipped"
					case out.Fallback:
						item.Status = "fallback"
						bar.Note("%s %s: copied unmodified", color.YellowString("!"), filepath.Base(f))
					}
					results[idx] = item
					bar.Increment(filepath.Base(f))
				}(i, file)
			}
			wg.Wait()

			summary := summarize(results)
			bar.Finish(fmt.Sprintf("%d file(s), %d price(s) updated", len(files), summary.Updated))

			if jsonFlag {
				return output.PrintJSON("batch", summary)
			}

			w := cmd.OutOrStdout()
			for _, r := range summary.Files {
				switch r.Status {
				case "ok":
					fmt.Fprintf(w, "  %s %s (%s, %d updated)\n", color.GreenString("✓"), filepath.Base(r.File), r.Outcome.Profile, r.Outcome.Updated)
				case "fallback":
					fmt.Fprintf(w, "  %s %s (copied unmodified)\n", color.YellowString("!"), filepath.Base(r.File))
				case "skipped":
					fmt.Fprintf(w, "  - %s (%s)\n", filepath.Base(r.File), r.Outcome.Skipped)
				default:
					fmt.Fprintf(w, "  %s %s: %s\n", color.RedString("✗"), filepath.Base(r.File), r.Error)
				}
			}
			fmt.Fprintf(w, "\nProcessed %d files. %d succeeded, %d fell back, %d failed, %d skipped.\n",
				len(files), summary.Succeeded, summary.Fallbacks, summary.Failed, summary.Skipped)

			if summary.Failed > 0 {
				return fmt.Errorf("%d file(s) failed", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Output directory (default: processed_files next to each input)")
	cmd.Flags().StringVar(&profileName, "profile", "", "Use this profile for every file")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Number of parallel workers")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	cmd.Flags().BoolVar(&dedupe, "dedupe", false, "Process files with identical content only once")
	cmd.Flags().BoolVar(&publish, "publish", false, "Deliver results through the configured publisher")

	return cmd
}

// collect resolves a directory or glob into the price lists to process.
func collect(arg string, recursive, dedupe bool) ([]string, error) {
	var infos []fs.FileInfo

	if st, err := os.Stat(arg); err == nil && st.IsDir() {
		res, err := fs.Scan(arg, fs.ScanOptions{
			Recursive: recursive,
			Kinds:     []string{fs.KindPriceList},
			WithHash:  dedupe,
			SkipDirs:  []string{"processed_files"},
		})
		if err != nil {
			return nil, err
		}
		infos = res.Files
	} else {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", arg, err)
		}
		for _, m := range matches {
			fi := fs.FileInfo{Path: m, Name: filepath.Base(m)}
			if dedupe {
				fi.SHA256, _ = fs.HashFile(m)
			}
			infos = append(infos, fi)
		}
	}

	if dedupe {
		infos, _ = fs.Unique(infos)
	}
	files := make([]string, len(infos))
	for i, f := range infos {
		files[i] = f.Path
	}
	return files, nil
}

func summarize(results []batchResultItem) batchSummary {
	s := batchSummary{Files: results}
	for _, r := range results {
		switch r.Status {
		case "ok":
			s.Succeeded++
		case "fallback":
			s.Fallbacks++
		case "skipped":
			s.Skipped++
		default:
			s.Failed++
		}
		if r.Outcome != nil {
			s.Updated += r.Outcome.Updated
		}
	}
	return s
}
