package domain

import (
	"fmt"
	"time"
)

// ImportStatus represents the status of an import job
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

// ImportSource names the orchestrator that produced an import log
type ImportSource string

const (
	ImportSourceFile   ImportSource = "file"
	ImportSourceURL    ImportSource = "url"
	ImportSourceWizard ImportSource = "wizard"
)

// ImportLog tracks the progress of one ingestion request
type ImportLog struct {
	ID              string
	OrgID           string
	KnowledgeItemID string // empty until the item exists
	Source          ImportSource
	SourceRef       string // file name, URL or wizard type
	Status          ImportStatus
	ErrorMessage    string
	Attempts        int32
	CreatedAt       time.Time
	FinishedAt      *time.Time
}

// ValidateImportLog validates an ImportLog instance
func ValidateImportLog(l *ImportLog) error {
	if l == nil {
		return fmt.Errorf("import log cannot be nil")
	}

	if l.ID == "" {
		return fmt.Errorf("import log ID is required")
	}

	if l.OrgID == "" {
		return fmt.Errorf("import log OrgID is required")
	}

	switch l.Source {
	case ImportSourceFile, ImportSourceURL, ImportSourceWizard:
	default:
		return fmt.Errorf("import log Source is invalid: %s", l.Source)
	}

	if !isValidImportStatus(l.Status) {
		return fmt.Errorf("import log Status is invalid: %s", l.Status)
	}

	if l.Status == ImportStatusFailed && l.ErrorMessage == "" {
		return fmt.Errorf("failed import log requires ErrorMessage")
	}

	if l.Attempts < 0 {
		return fmt.Errorf("import log Attempts cannot be negative")
	}

	return nil
}

// IsFinished reports whether the import reached a terminal status.
func (l *ImportLog) IsFinished() bool {
	return l.Status == ImportStatusCompleted || l.Status == ImportStatusFailed
}

func isValidImportStatus(s ImportStatus) bool {
	switch s {
	case ImportStatusPending, ImportStatusProcessing,
		ImportStatusCompleted, ImportStatusFailed:
		return true
	}
	return false
}
