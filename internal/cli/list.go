package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"dedup/internal/port"
)

var (
	listJSON        bool
	listCollections bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored file names",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
	listCmd.Flags().BoolVar(&listCollections, "collections", false, "list collection names instead of files")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if listCollections {
		return runListCollections(ctx, cmd)
	}

	docs, err := openDocumentStore(ctx)
	if err != nil {
		return err
	}
	defer docs.Close()

	ids := newUploadUseCase(docs).Inventory(ctx)
	out := cmd.OutOrStdout()

	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string][]string{"ids": ids})
	}

	if len(ids) == 0 {
		fmt.Fprintln(out, "No files found in the database.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

// runListCollections prints collection names without opening or creating one.
func runListCollections(ctx context.Context, cmd *cobra.Command) error {
	backend, _, err := openConfiguredBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	lister, ok := backend.(port.CollectionLister)
	if !ok {
		return fmt.Errorf("the %s backend cannot list collections", GetConfig().Store.Backend)
	}
	names, err := lister.Collections(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string][]string{"collections": names})
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "No collections found.")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}
