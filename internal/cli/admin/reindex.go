package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cloo-solutions/kbpipe/internal/service"
	"github.com/spf13/cobra"
)

const defaultReindexLimit = 500

// ReindexCmd returns the one-shot reindex command
func ReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Process items flagged for reindexing",
		Long: `Run one pass over the knowledge items flagged needs_reindex and exit.
Without --org every organization is swept.`,
		RunE: runReindex,
	}

	cmd.Flags().String("org", "", "Only reindex items of this organization")
	cmd.Flags().IntP("limit", "n", defaultReindexLimit, "Maximum number of items to process")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	orgID, _ := cmd.Flags().GetString("org")
	limit, _ := cmd.Flags().GetInt("limit")
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	a, err := newApp(ctx, cfg, pool)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ProcessTimeout)
	defer cancel()

	summary, err := a.processing.ReindexDirty(ctx, orgID, limit)
	if err != nil {
		return fmt.Errorf("failed to reindex: %w", err)
	}

	printReindexSummary(outputFormat, summary)
	return nil
}

func printReindexSummary(outputFormat string, summary *service.ReindexSummary) {
	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(map[string]any{
			"processed": summary.Processed,
			"failed":    summary.Failed,
			"errors":    summary.Errors,
		}, "", "  ")
		fmt.Println(string(jsonBytes))
		return
	}

	fmt.Printf("Reindexed %d items, %d failed\n", summary.Processed, summary.Failed)
	ids := make([]string, 0, len(summary.Errors))
	for id := range summary.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  %s: %s\n", id, summary.Errors[id])
	}
}
