package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloo-solutions/kbpipe/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z][a-zA-Z0-9_]*(?:\.[a-zA-Z][a-zA-Z0-9_]*)?)\s*\}\}`)

// ContentChange is a requested edit. Nil fields keep the stored value; an
// empty change only rematerializes.
type ContentChange struct {
	Title    *string
	Content  *string
	Category *string
}

// ContentWriter is the only path that writes item content. Every write
// recomputes resolved_content from the organization's variables (and the
// bound product, for product-scoped items) and flags the item for reindexing.
type ContentWriter struct {
	variables VariableRepositoryInterface
	products  ProductRepositoryInterface
}

func NewContentWriter(variables VariableRepositoryInterface, products ProductRepositoryInterface) *ContentWriter {
	return &ContentWriter{variables: variables, products: products}
}

// Materialize renders {{key}} and {{product.field}} placeholders in content.
// Unknown placeholders are left intact.
func (w *ContentWriter) Materialize(ctx context.Context, orgID, productID, content string) (string, error) {
	if !strings.Contains(content, "{{") {
		return content, nil
	}

	vars, err := w.variables.ListByOrg(ctx, orgID)
	if err != nil {
		return "", fmt.Errorf("failed to load variables: %w", err)
	}
	values := make(map[string]string, len(vars)+4)
	for k, v := range vars {
		values[k] = v
	}
	if productID != "" && w.products != nil {
		product, err := w.products.GetByID(ctx, productID)
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
		case err != nil:
			return "", fmt.Errorf("failed to load product: %w", err)
		default:
			for k, v := range product.TemplateValues() {
				values[k] = v
			}
		}
	}

	return renderTemplate(content, values), nil
}

// Prepare materializes a new item before it is created and marks it dirty.
func (w *ContentWriter) Prepare(ctx context.Context, item *domain.KnowledgeItem) error {
	resolved, err := w.Materialize(ctx, item.OrgID, item.ProductID, item.Content)
	if err != nil {
		return err
	}
	item.ResolvedContent = resolved
	item.NeedsReindex = true
	item.ContentVersion = 1
	return nil
}

// Write applies change to item through repo and returns the updated item.
// repo may be transaction-bound.
func (w *ContentWriter) Write(ctx context.Context, repo KnowledgeRepositoryInterface, item *domain.KnowledgeItem, change ContentChange) (*domain.KnowledgeItem, error) {
	content := item.Content
	if change.Content != nil {
		content = *change.Content
	}

	resolved, err := w.Materialize(ctx, item.OrgID, item.ProductID, content)
	if err != nil {
		return nil, err
	}

	version, err := repo.UpdateContent(ctx, item.ID, ContentUpdate{
		Title:           change.Title,
		Content:         content,
		ResolvedContent: resolved,
		Category:        change.Category,
	})
	if err != nil {
		return nil, err
	}

	updated := *item
	updated.Content = content
	updated.ResolvedContent = resolved
	if change.Title != nil {
		updated.Title = *change.Title
	}
	if change.Category != nil {
		updated.Category = *change.Category
	}
	updated.ContentVersion = version
	updated.NeedsReindex = true
	return &updated, nil
}

func renderTemplate(content string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(m string) string {
		key := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := values[key]; ok {
			return v
		}
		return m
	})
}
