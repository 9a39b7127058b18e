package client

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// ImportResult is the answer of an import endpoint.
type ImportResult struct {
	Item              Knowledge `json:"item"`
	ImportLogID       string    `json:"importLogId"`
	ChunkCount        int       `json:"chunkCount"`
	EmbeddingFallback bool      `json:"embeddingFallback"`
}

// ImportLog is the progress record of one import.
type ImportLog struct {
	ID              string  `json:"id"`
	KnowledgeItemID string  `json:"knowledgeItemId,omitempty"`
	Source          string  `json:"source"`
	SourceRef       string  `json:"sourceRef"`
	Status          string  `json:"status"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	Attempts        int32   `json:"attempts"`
	CreatedAt       string  `json:"createdAt"`
	FinishedAt      *string `json:"finishedAt,omitempty"`
}

type importFlags struct {
	title     string
	kind      string
	agentID   string
	productID string
	category  string
}

func (f *importFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Item title (defaults to the file name or page title)")
	cmd.Flags().StringVarP(&f.kind, "type", "t", "general", "Knowledge type")
	cmd.Flags().StringVar(&f.agentID, "agent", "", "Agent the item belongs to")
	cmd.Flags().StringVar(&f.category, "category", "", "Free-form category")
}

// ImportCmd creates the import command.
func ImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import documents and web pages",
		Long:  "Extract, chunk and embed a document or web page into a new knowledge item.",
	}

	cmd.AddCommand(importFileCmd())
	cmd.AddCommand(importURLCmd())
	cmd.AddCommand(importStatusCmd())

	return cmd
}

func importFileCmd() *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Import a PDF, DOCX, text or Markdown file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportFile(cmd, args[0], f)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&f.productID, "product", "", "Bind the item to a product")

	return cmd
}

func runImportFile(cmd *cobra.Command, path string, f importFlags) error {
	orgID, err := resolveOrg(cmd)
	if err != nil {
		return err
	}
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	name := filepath.Base(path)
	resp, err := api.PostMultipart("/knowledge/import/file", map[string]string{
		"organizationId": orgID,
		"title":          f.title,
		"type":           f.kind,
		"agentId":        f.agentID,
		"productId":      f.productID,
		"category":       f.category,
	}, FilePart{
		Field:       "file",
		FileName:    name,
		ContentType: contentTypeFor(name),
		Body:        file,
	})
	if err != nil {
		return fmt.Errorf("failed to import file: %w", err)
	}

	return printImportResult(cmd, resp)
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func importURLCmd() *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "url <url>",
		Short: "Import a web page",
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

			resp, err := api.Post("/knowledge/import/url", map[string]string{
				"organizationId": orgID,
				"url":            args[0],
				"title":          f.title,
				"type":           f.kind,
				"agentId":        f.agentID,
				"category":       f.category,
			})
			if err != nil {
				return fmt.Errorf("failed to import url: %w", err)
			}
			return printImportResult(cmd, resp)
		},
	}

	f.register(cmd)

	return cmd
}

func printImportResult(cmd *cobra.Command, resp *APIResponse) error {
	var result ImportResult
	if err := resp.Decode(&result); err != nil {
		return err
	}

	if wantJSON(cmd) {
		printJSON(result)
		return nil
	}

	fmt.Printf("Imported %q (%s)\n", result.Item.Title, result.Item.ID)
	fmt.Printf("  chunks: %d, status: %s, import log: %s\n", result.ChunkCount, result.Item.Status, result.ImportLogID)
	if result.EmbeddingFallback {
		fmt.Println("  WARNING: stored with placeholder vectors, the reindex sweep will retry")
	}
	return nil
}

func importStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <import-log-id>",
		Short: "Show the progress record of an import",
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

			resp, err := api.Get(fmt.Sprintf("/knowledge/imports/%s?organizationId=%s", url.PathEscape(args[0]), url.QueryEscape(orgID)))
			if err != nil {
				return fmt.Errorf("failed to get import: %w", err)
			}

			var l ImportLog
			if err := resp.Decode(&l); err != nil {
				return err
			}
			if wantJSON(cmd) {
				printJSON(l)
				return nil
			}

			fmt.Printf("%s  %s  %s (attempts: %d)\n", l.ID, l.Source, l.Status, l.Attempts)
			fmt.Printf("  source: %s\n", l.SourceRef)
			if l.KnowledgeItemID != "" {
				fmt.Printf("  item: %s\n", l.KnowledgeItemID)
			}
			if l.ErrorMessage != "" {
				fmt.Printf("  error: %s\n", l.ErrorMessage)
			}
			return nil
		},
	}
}
