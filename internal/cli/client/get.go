package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// Knowledge represents a knowledge item from the API.
type Knowledge struct {
	ID              string         `json:"id"`
	OrgID           string         `json:"organizationId"`
	ProductID       string         `json:"productId,omitempty"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	ResolvedContent string         `json:"resolvedContent"`
	Type            string         `json:"type"`
	Category        string         `json:"category,omitempty"`
	Scope           string         `json:"scope"`
	Status          string         `json:"status"`
	Source          string         `json:"source"`
	SourceURL       string         `json:"sourceUrl,omitempty"`
	IsActive        bool           `json:"isActive"`
	NeedsReindex    bool           `json:"needsReindex"`
	ContentVersion  int64          `json:"contentVersion"`
	ErrorMessage    string         `json:"errorMessage,omitempty"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       string         `json:"createdAt"`
	UpdatedAt       string         `json:"updatedAt"`
}

// HistoryEntry is one row of an item's change ledger.
type HistoryEntry struct {
	ID            string  `json:"id"`
	ChangeType    string  `json:"changeType"`
	ChangeSource  string  `json:"changeSource"`
	PreviousTitle *string `json:"previousTitle,omitempty"`
	NewTitle      *string `json:"newTitle,omitempty"`
	EditRequestID string  `json:"editRequestId,omitempty"`
	ChangedBy     string  `json:"changedBy,omitempty"`
	CreatedAt     string  `json:"createdAt"`
}

// GetCmd creates the get command.
func GetCmd() *cobra.Command {
	var history bool

	cmd := &cobra.Command{
		Use:     "get <item-id>",
		Short:   "Get a knowledge item by ID",
		Long:    "Retrieves a knowledge item and displays its content, or its change history with --history.",
		Aliases: []string{"view"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if history {
				return runHistory(cmd, args[0])
			}
			return runGet(cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "Show the change history instead of the content")

	return cmd
}

func runGet(cmd *cobra.Command, itemID string) error {
	orgID, err := resolveOrg(cmd)
	if err != nil {
		return err
	}
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(fmt.Sprintf("/knowledge/%s?organizationId=%s", url.PathEscape(itemID), url.QueryEscape(orgID)))
	if err != nil {
		return fmt.Errorf("failed to get knowledge: %w", err)
	}

	var item Knowledge
	if err := resp.Decode(&item); err != nil {
		return err
	}

	if wantJSON(cmd) {
		printJSON(item)
		return nil
	}

	fmt.Printf("Title: %s\n", item.Title)
	fmt.Printf("Type: %s\n", item.Type)
	fmt.Printf("Status: %s (version %d)\n", item.Status, item.ContentVersion)
	if item.Category != "" {
		fmt.Printf("Category: %s\n", item.Category)
	}
	if item.SourceURL != "" {
		fmt.Printf("Source: %s\n", item.SourceURL)
	}
	if item.NeedsReindex {
		fmt.Println("Reindex pending")
	}
	if item.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", item.ErrorMessage)
	}
	fmt.Printf("Updated: %s\n", item.UpdatedAt)
	fmt.Println()
	fmt.Println("--- Content ---")
	fmt.Println(item.Content)

	return nil
}

func runHistory(cmd *cobra.Command, itemID string) error {
	orgID, err := resolveOrg(cmd)
	if err != nil {
		return err
	}
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(fmt.Sprintf("/knowledge/%s/history?organizationId=%s", url.PathEscape(itemID), url.QueryEscape(orgID)))
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	var entries []HistoryEntry
	if err := resp.Decode(&entries); err != nil {
		return err
	}

	if wantJSON(cmd) {
		printJSON(entries)
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("No history recorded")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-6s  %-12s", e.CreatedAt, e.ChangeType, e.ChangeSource)
		if e.ChangedBy != "" {
			line += "  by " + e.ChangedBy
		}
		if e.EditRequestID != "" {
			line += "  request " + e.EditRequestID
		}
		fmt.Println(line)
	}
	return nil
}
