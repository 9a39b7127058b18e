package domain

import (
	"fmt"
	"time"
)

// Product is a catalog entry of an organization. Product-scoped knowledge
// items reference it, and its fields are available as template variables.
type Product struct {
	ID          string
	OrgID       string
	Slug        string
	Name        string
	Description string
	Price       string
	IsActive    bool
	CreatedAt   time.Time
}

// ValidateProduct validates a Product instance
func ValidateProduct(p *Product) error {
	if p == nil {
		return fmt.Errorf("product cannot be nil")
	}

	if p.ID == "" {
		return fmt.Errorf("product ID is required")
	}

	if p.OrgID == "" {
		return fmt.Errorf("product OrgID is required")
	}

	if p.Slug == "" {
		return fmt.Errorf("product Slug is required")
	}

	if p.Name == "" {
		return fmt.Errorf("product Name is required")
	}

	return nil
}

// TemplateValues returns the placeholder values a product contributes to
// content materialization.
func (p *Product) TemplateValues() map[string]string {
	return map[string]string{
		"product.name":        p.Name,
		"product.description": p.Description,
		"product.price":       p.Price,
		"product.slug":        p.Slug,
	}
}
