package domain

import (
	"fmt"
	"strings"
	"time"
)

// EditRequestStatus represents the lifecycle state of an edit request
type EditRequestStatus string

const (
	EditRequestStatusPending   EditRequestStatus = "pending"
	EditRequestStatusConfirmed EditRequestStatus = "confirmed"
	EditRequestStatusApplied   EditRequestStatus = "applied"
	EditRequestStatusExpired   EditRequestStatus = "expired"
)

// ProposedChange is one validated entry of a change set. Action is the tag:
//   - update: ItemID set; ProposedTitle/ProposedContent nil mean "unchanged"
//   - create: ItemID empty; ProposedContent required
//   - delete: ItemID set; no content fields
type ProposedChange struct {
	Action          ChangeType     `json:"action"`
	ItemID          string         `json:"item_id,omitempty"`
	ProposedTitle   *string        `json:"proposed_title,omitempty"`
	ProposedContent *string        `json:"proposed_content,omitempty"`
	Category        *string        `json:"category,omitempty"`
	Scope           KnowledgeScope `json:"scope,omitempty"`
	ProductSlug     string         `json:"product_slug,omitempty"`
	ProductID       string         `json:"product_id,omitempty"`
	Reason          string         `json:"reason,omitempty"`
}

// Validate checks the fields required by the change's tag.
func (c ProposedChange) Validate() error {
	switch c.Action {
	case ChangeTypeUpdate:
		if c.ItemID == "" {
			return fmt.Errorf("update requires item_id")
		}
		if c.ProposedTitle == nil && c.ProposedContent == nil && c.Category == nil {
			return fmt.Errorf("update for %s changes nothing", c.ItemID)
		}
	case ChangeTypeCreate:
		if c.ItemID != "" {
			return fmt.Errorf("create must not reference an item_id")
		}
		if c.ProposedContent == nil || strings.TrimSpace(*c.ProposedContent) == "" {
			return fmt.Errorf("create requires proposed_content")
		}
	case ChangeTypeDelete:
		if c.ItemID == "" {
			return fmt.Errorf("delete requires item_id")
		}
	default:
		return fmt.Errorf("unknown change action %q", c.Action)
	}
	return nil
}

// RawProposedChange is the untrusted shape a language model returns.
type RawProposedChange struct {
	Action          string  `json:"action"`
	Type            string  `json:"type"`
	ItemID          *string `json:"item_id"`
	ProposedTitle   *string `json:"proposed_title"`
	ProposedContent *string `json:"proposed_content"`
	Category        *string `json:"category"`
	Scope           *string `json:"scope"`
	ProductSlug     *string `json:"product_slug"`
	Reason          *string `json:"reason"`
}

// Coerce normalizes a raw model change into the tagged union and validates it.
func (r RawProposedChange) Coerce() (ProposedChange, error) {
	action := strings.ToLower(strings.TrimSpace(r.Action))
	if action == "" {
		action = strings.ToLower(strings.TrimSpace(r.Type))
	}
	switch action {
	case "edit", "modify", "change":
		action = string(ChangeTypeUpdate)
	case "add", "new", "insert":
		action = string(ChangeTypeCreate)
	case "remove", "deactivate", "archive":
		action = string(ChangeTypeDelete)
	}

	c := ProposedChange{
		Action:          ChangeType(action),
		ItemID:          trimmed(r.ItemID),
		ProposedTitle:   nonEmpty(r.ProposedTitle),
		ProposedContent: nonEmpty(r.ProposedContent),
		Category:        nonEmpty(r.Category),
		ProductSlug:     trimmed(r.ProductSlug),
		Reason:          trimmed(r.Reason),
	}

	switch c.Action {
	case ChangeTypeCreate:
		c.ItemID = ""
		c.Scope = KnowledgeScopeGlobal
		if strings.EqualFold(trimmed(r.Scope), string(KnowledgeScopeProduct)) && c.ProductSlug != "" {
			c.Scope = KnowledgeScopeProduct
		}
	case ChangeTypeDelete:
		c.ProposedTitle = nil
		c.ProposedContent = nil
		c.Category = nil
		c.ProductSlug = ""
	}

	if err := c.Validate(); err != nil {
		return ProposedChange{}, err
	}
	return c, nil
}

// KnowledgeEditRequest is a time-boxed, approvable change proposal.
type KnowledgeEditRequest struct {
	ID              string
	OrgID           string
	UserRequest     string
	ProposedChanges []ProposedChange
	Warnings        []string
	Explanation     string
	Status          EditRequestStatus
	ExpiresAt       time.Time
	AppliedAt       *time.Time
	ClaimedAt       *time.Time
	CreatedBy       string
	CreatedAt       time.Time
}

// IsTerminal reports whether the request can never change again.
func (r *KnowledgeEditRequest) IsTerminal() bool {
	return r.Status == EditRequestStatusApplied || r.Status == EditRequestStatusExpired
}

// CheckApplicable returns nil when the request may be applied at now.
// It returns ErrEditRequestExpired when the deadline has passed, even if the
// stored status is still pending.
func (r *KnowledgeEditRequest) CheckApplicable(now time.Time) error {
	if r.Status != EditRequestStatusPending && r.Status != EditRequestStatusConfirmed {
		return NewDomainError(ErrCodeInvalidOperation, fmt.Sprintf("edit request already %s", r.Status))
	}
	if !now.Before(r.ExpiresAt) {
		return ErrEditRequestExpired
	}
	return nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
