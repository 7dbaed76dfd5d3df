package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	matchFile string
	matchText string
	matchJSON bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Find stored files identical to a file or text",
	Long: `Print the names of stored files whose content is identical to the input.

Examples:
  dedup match -f draft.txt
  dedup match -t "hello world" --json`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().StringVarP(&matchFile, "file", "f", "", "file to compare")
	matchCmd.Flags().StringVarP(&matchText, "text", "t", "", "text to compare")
	matchCmd.Flags().BoolVar(&matchJSON, "json", false, "output as JSON")
	matchCmd.MarkFlagsOneRequired("file", "text")
	matchCmd.MarkFlagsMutuallyExclusive("file", "text")
}

func runMatch(cmd *cobra.Command, args []string) error {
	text := matchText
	if matchFile != "" {
		data, err := os.ReadFile(matchFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", matchFile, err)
		}
		text = string(data)
	}

	ctx := context.Background()
	docs, err := openDocumentStore(ctx)
	if err != nil {
		return err
	}
	defer docs.Close()

	ids, err := docs.FindExactMatches(ctx, text)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if matchJSON {
		return json.NewEncoder(out).Encode(map[string][]string{"ids": ids})
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No identical files found.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}
