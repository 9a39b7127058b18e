package domain

import (
	"fmt"
	"time"
)

// ChangeType is the kind of mutation recorded in the history ledger
type ChangeType string

const (
	ChangeTypeCreate ChangeType = "create"
	ChangeTypeUpdate ChangeType = "update"
	ChangeTypeDelete ChangeType = "delete"
)

// Change sources recorded on history rows.
const (
	ChangeSourceConversation = "conversation"
	ChangeSourceManual       = "manual"
)

// KnowledgeItemHistory is an append-only audit row for one applied change.
// Previous* fields are nil for creates, New* fields are nil for deletes.
type KnowledgeItemHistory struct {
	ID                      string
	ItemID                  string
	OrgID                   string
	EditRequestID           string
	PreviousTitle           *string
	PreviousContent         *string
	PreviousResolvedContent *string
	NewTitle                *string
	NewContent              *string
	NewResolvedContent      *string
	ChangeType              ChangeType
	ChangeSource            string
	ChangeDescription       string
	ChangedBy               string
	CreatedAt               time.Time
}

// ValidateHistory validates a KnowledgeItemHistory row against its change type
func ValidateHistory(h *KnowledgeItemHistory) error {
	if h == nil {
		return fmt.Errorf("history cannot be nil")
	}
	if h.ID == "" || h.ItemID == "" {
		return fmt.Errorf("history ID and ItemID are required")
	}

	switch h.ChangeType {
	case ChangeTypeCreate:
		if h.PreviousContent != nil || h.PreviousTitle != nil {
			return fmt.Errorf("create history must not carry previous values")
		}
		if h.NewContent == nil {
			return fmt.Errorf("create history requires NewContent")
		}
	case ChangeTypeUpdate:
		if h.PreviousContent == nil || h.NewContent == nil {
			return fmt.Errorf("update history requires previous and new content")
		}
	case ChangeTypeDelete:
		if h.NewContent != nil || h.NewTitle != nil {
			return fmt.Errorf("delete history must not carry new values")
		}
		if h.PreviousContent == nil {
			return fmt.Errorf("delete history requires PreviousContent")
		}
	default:
		return fmt.Errorf("history ChangeType is invalid: %s", h.ChangeType)
	}
	return nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
