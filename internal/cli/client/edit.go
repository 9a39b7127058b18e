package client

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// ProposedChange is one change of an edit request.
type ProposedChange struct {
	Action          string  `json:"action"`
	ItemID          string  `json:"item_id,omitempty"`
	ProposedTitle   *string `json:"proposed_title,omitempty"`
	ProposedContent *string `json:"proposed_content,omitempty"`
	ProductSlug     string  `json:"product_slug,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// EditRequest is a persisted proposal.
type EditRequest struct {
	ID              string           `json:"id"`
	UserRequest     string           `json:"userRequest"`
	ProposedChanges []ProposedChange `json:"proposedChanges"`
	Warnings        []string         `json:"warnings"`
	Explanation     string           `json:"explanation"`
	Status          string           `json:"status"`
	ExpiresAt       string           `json:"expiresAt"`
}

// Proposal is the broker's answer to an instruction.
type Proposal struct {
	Understood    bool         `json:"understood"`
	Clarification string       `json:"clarification,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
	Warnings      []string     `json:"warnings"`
	Request       *EditRequest `json:"request,omitempty"`
}

// ApplyResult reports what happened to each change.
type ApplyResult struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	AppliedAt string `json:"appliedAt"`
	Changes   []struct {
		Index  int    `json:"index"`
		Action string `json:"action"`
		ItemID string `json:"itemId,omitempty"`
		Error  string `json:"error,omitempty"`
	} `json:"changes"`
	Errors  []string `json:"errors"`
	Reindex *struct {
		Processed int `json:"processed"`
		Failed    int `json:"failed"`
	} `json:"reindex,omitempty"`
}

// EditCmd creates the edit command.
func EditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Propose and apply natural-language edits",
		Long: `Turn a free-text instruction into an edit request, review it, and apply it.
Requests expire if they are not applied in time.`,
	}

	cmd.AddCommand(editRequestCmd())
	cmd.AddCommand(editConfirmCmd())
	cmd.AddCommand(editApplyCmd())

	return cmd
}

func editRequestCmd() *cobra.Command {
	var createdBy string

	cmd := &cobra.Command{
		Use:   "request <instruction>",
		Short: "Propose changes for an instruction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := resolveOrg(cmd)
			if err != nil {
				return err
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post("/knowledge/edit-requests", map[string]string{
				"organizationId": orgID,
				"userRequest":    strings.Join(args, " "),
				"createdBy":      createdBy,
			})
			if err != nil {
				return fmt.Errorf("failed to propose edit: %w", err)
			}

			var p Proposal
			if err := resp.Decode(&p); err != nil {
				return err
			}
			if wantJSON(cmd) {
				printJSON(p)
				return nil
			}
			printProposal(p)
			return nil
		},
	}

	cmd.Flags().StringVar(&createdBy, "by", "", "Who is asking")

	return cmd
}

func printProposal(p Proposal) {
	if !p.Understood {
		fmt.Printf("Clarification needed: %s\n", p.Clarification)
		return
	}
	if p.Request == nil {
		return
	}

	fmt.Printf("Edit request %s (expires %s)\n", p.Request.ID, p.Request.ExpiresAt)
	if p.Explanation != "" {
		fmt.Printf("  %s\n", p.Explanation)
	}
	for i, c := range p.Request.ProposedChanges {
		target := c.ItemID
		if c.ProposedTitle != nil {
			target = *c.ProposedTitle
		}
		fmt.Printf("  %d. %s %s\n", i+1, c.Action, target)
		if c.Reason != "" {
			fmt.Printf("     %s\n", c.Reason)
		}
	}
	for _, w := range p.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	fmt.Printf("\nApply with: kbpipe edit apply %s\n", p.Request.ID)
}

func editConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <request-id>",
		Short: "Mark an edit request as reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := resolveOrg(cmd)
			if err != nil {
				return err
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post(fmt.Sprintf("/knowledge/edit-requests/%s/confirm", url.PathEscape(args[0])), map[string]string{
				"organizationId": orgID,
			})
			if err != nil {
				return fmt.Errorf("failed to confirm edit request: %w", err)
			}

			var req EditRequest
			if err := resp.Decode(&req); err != nil {
				return err
			}
			if wantJSON(cmd) {
				printJSON(req)
				return nil
			}
			fmt.Printf("Edit request %s is %s\n", req.ID, req.Status)
			return nil
		},
	}
}

func editApplyCmd() *cobra.Command {
	var appliedBy string

	cmd := &cobra.Command{
		Use:   "apply <request-id>",
		Short: "Apply the changes of an edit request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := resolveOrg(cmd)
			if err != nil {
				return err
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post("/knowledge/edit-requests/apply", map[string]string{
				"organizationId": orgID,
				"requestId":      args[0],
				"appliedBy":      appliedBy,
			})
			if err != nil {
				return fmt.Errorf("failed to apply edit request: %w", err)
			}

			var result ApplyResult
			if err := resp.Decode(&result); err != nil {
				return err
			}
			if wantJSON(cmd) {
				printJSON(result)
				return nil
			}

			fmt.Printf("Edit request %s %s\n", result.RequestID, result.Status)
			for _, c := range result.Changes {
				if c.Error != "" {
					fmt.Printf("  %d. %s failed: %s\n", c.Index+1, c.Action, c.Error)
					continue
				}
				fmt.Printf("  %d. %s %s\n", c.Index+1, c.Action, c.ItemID)
			}
			if result.Reindex != nil {
				fmt.Printf("Reindexed %d items, %d failed\n", result.Reindex.Processed, result.Reindex.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&appliedBy, "by", "", "Who applies the request")

	return cmd
}
