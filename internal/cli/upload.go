package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"dedup/internal/adapter/fs"
	"dedup/internal/domain"
)

var uploadNoProgress bool

var uploadCmd = &cobra.Command{
	Use:   "upload [paths or globs...]",
	Short: "Upload files, skipping ones identical to stored files",
	Long: `Upload text files through the same duplicate check as the web form.
Directories are walked using upload.includes/excludes from the config;
other arguments may be files or doublestar globs.

Examples:
  dedup upload notes/
  dedup upload 'docs/**/*.md' README.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().BoolVar(&uploadNoProgress, "no-progress", false, "disable the progress bar")
}

type uploadSummary struct {
	Stored     int
	Duplicates int
	Failed     int
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	walker := fs.NewWalker(cfg.Upload.Includes, cfg.Upload.Excludes)
	files, err := walker.Expand(args)
	if err != nil {
		return fmt.Errorf("failed to resolve files: %w", err)
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "No files to upload.")
		return nil
	}

	ctx := context.Background()
	docs, err := openDocumentStore(ctx)
	if err != nil {
		return err
	}
	defer docs.Close()
	uploads := newUploadUseCase(docs)

	var bar *progressbar.ProgressBar
	if !uploadNoProgress {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("[cyan]Uploading[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionClearOnFinish(),
		)
	}

	var summary uploadSummary
	var messages []string
	// Stored ids are base names, so a later file with the same name replaces an earlier one.
	storedFrom := map[string]string{}
	for _, f := range files {
		name := filepath.Base(f.Path)
		if f.Size > cfg.Upload.MaxBytes {
			summary.Failed++
			messages = append(messages, fmt.Sprintf("%s: exceeds the %d byte upload limit", name, cfg.Upload.MaxBytes))
		} else if content, err := os.ReadFile(f.Path); err != nil {
			summary.Failed++
			messages = append(messages, fmt.Sprintf("%s: %v", name, err))
		} else {
			res, err := uploads.Upload(ctx, name, content)
			switch {
			case err != nil:
				summary.Failed++
				messages = append(messages, fmt.Sprintf("%s: %v", name, err))
			case res.Status == domain.UploadDuplicate:
				summary.Duplicates++
				messages = append(messages, fmt.Sprintf("%s: identical to existing files in the database: %s", name, strings.Join(res.Duplicates, ", ")))
			default:
				summary.Stored++
				if prev, ok := storedFrom[name]; ok {
					messages = append(messages, fmt.Sprintf("%s: same name as %s from this upload; it replaces that file", f.Path, prev))
				}
				storedFrom[name] = f.Path
			}
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if len(messages) > 0 {
		fmt.Fprintf(out, "Warnings:\n")
		for _, m := range messages {
			fmt.Fprintf(out, "  - %s\n", m)
		}
	}
	fmt.Fprintf(out, "Upload complete: %d stored, %d duplicates, %d failed\n",
		summary.Stored, summary.Duplicates, summary.Failed)

	if summary.Failed > 0 && summary.Stored == 0 && summary.Duplicates == 0 {
		return fmt.Errorf("all %d uploads failed", summary.Failed)
	}
	return nil
}
