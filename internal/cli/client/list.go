package client

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// ListAPIResponse represents the list API response.
type ListAPIResponse struct {
	Items   []Knowledge `json:"items"`
	Cursor  string      `json:"cursor,omitempty"`
	HasMore bool        `json:"hasMore"`
}

// ListCmd creates the list command.
func ListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active knowledge items",
		Long:  "Lists the active knowledge items of the organization, most recently updated first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, limit, cursor)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runList(cmd *cobra.Command, limit int, cursor string) error {
	orgID, err := resolveOrg(cmd)
	if err != nil {
		return err
	}
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("organizationId", orgID)
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	resp, err := api.Get("/knowledge?" + q.Encode())
	if err != nil {
		return fmt.Errorf("failed to list knowledge: %w", err)
	}

	var page ListAPIResponse
	if err := resp.Decode(&page); err != nil {
		return err
	}

	if wantJSON(cmd) {
		printJSON(page)
		return nil
	}

	if len(page.Items) == 0 {
		fmt.Println("No knowledge items found")
		return nil
	}
	for _, item := range page.Items {
		marker := " "
		if item.NeedsReindex {
			marker = "*"
		}
		fmt.Printf("%s %s  %-10s  %-10s  %s\n", marker, item.ID, item.Status, item.Type, item.Title)
	}
	if page.HasMore && page.Cursor != "" {
		fmt.Printf("\nMore results available. Use --cursor %s\n", page.Cursor)
	}
	return nil
}
