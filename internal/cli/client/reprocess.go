package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ReprocessCmd creates the reprocess command.
func ReprocessCmd() *cobra.Command {
	var (
		itemIDs []string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Re-run extraction cleanup, chunking and embedding",
		Long: `Reprocess items from their stored original content.
Pass --item once or several times, or --all for every item of the organization.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(itemIDs) > 0) {
				return fmt.Errorf("pass either --item or --all")
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			body := map[string]any{}
			switch {
			case all:
				orgID, err := resolveOrg(cmd)
				if err != nil {
					return err
				}
				body["organizationId"] = orgID
			case len(itemIDs) == 1:
				body["itemId"] = itemIDs[0]
			default:
				body["itemIds"] = itemIDs
			}

			resp, err := api.Post("/knowledge/reprocess", body)
			if err != nil {
				return fmt.Errorf("failed to reprocess: %w", err)
			}

			if len(itemIDs) == 1 {
				var result struct {
					ItemID     string `json:"itemId"`
					ChunkCount int    `json:"chunkCount"`
					CharCount  int    `json:"charCount"`
				}
				if err := resp.Decode(&result); err != nil {
					return err
				}
				if wantJSON(cmd) {
					printJSON(result)
					return nil
				}
				fmt.Printf("Reprocessed %s: %d chunks from %d characters\n", result.ItemID, result.ChunkCount, result.CharCount)
				return nil
			}

			var summary struct {
				Processed int               `json:"processed"`
				Failed    int               `json:"failed"`
				Errors    map[string]string `json:"errors,omitempty"`
			}
			if err := resp.Decode(&summary); err != nil {
				return err
			}
			if wantJSON(cmd) {
				printJSON(summary)
				return nil
			}
			fmt.Printf("Reprocessed %d items, %d failed\n", summary.Processed, summary.Failed)
			for id, msg := range summary.Errors {
				fmt.Printf("  %s: %s\n", id, msg)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&itemIDs, "item", nil, "Item to reprocess (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Reprocess every item of the organization")

	return cmd
}
