package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/api"
	"github.com/cloo-solutions/kbpipe/internal/api/middleware"
	"github.com/cloo-solutions/kbpipe/internal/domain"
)

// decodeJSON decodes the request body into v and writes the error response
// itself when it fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// requireOrg checks the organization id and tags the request with it.
func requireOrg(w http.ResponseWriter, r *http.Request, orgID string) bool {
	if orgID == "" {
		api.Error(w, http.StatusBadRequest, "organizationId is required")
		return false
	}
	middleware.SetOrgID(r.Context(), orgID)
	return true
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

type KnowledgeItemResponse struct {
	ID             string         `json:"id"`
	OrgID          string         `json:"organizationId"`
	AgentID        string         `json:"agentId,omitempty"`
	ProductID      string         `json:"productId,omitempty"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	Resolved       string         `json:"resolvedContent"`
	Type           string         `json:"type"`
	Category       string         `json:"category,omitempty"`
	Scope          string         `json:"scope"`
	Status         string         `json:"status"`
	Source         string         `json:"source"`
	SourceURL      string         `json:"sourceUrl,omitempty"`
	SourceFilePath string         `json:"sourceFilePath,omitempty"`
	IsActive       bool           `json:"isActive"`
	NeedsReindex   bool           `json:"needsReindex"`
	ContentVersion int64          `json:"contentVersion"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      string         `json:"createdAt"`
	UpdatedAt      string         `json:"updatedAt"`
}

func itemToResponse(k *domain.KnowledgeItem) *KnowledgeItemResponse {
	if k == nil {
		return nil
	}
	meta := make(map[string]any, len(k.Metadata))
	for key, v := range k.Metadata {
		// the snapshot can be large and is only needed for reprocessing
		if key == domain.MetaOriginalContent {
			continue
		}
		meta[key] = v
	}
	return &KnowledgeItemResponse{
		ID:             k.ID,
		OrgID:          k.OrgID,
		AgentID:        k.AgentID,
		ProductID:      k.ProductID,
		Title:          k.Title,
		Content:        k.Content,
		Resolved:       k.ResolvedContent,
		Type:           string(k.Type),
		Category:       k.Category,
		Scope:          string(k.Scope),
		Status:         string(k.Status),
		Source:         string(k.Source),
		SourceURL:      k.SourceURL,
		SourceFilePath: k.SourceFilePath,
		IsActive:       k.IsActive,
		NeedsReindex:   k.NeedsReindex,
		ContentVersion: k.ContentVersion,
		ErrorMessage:   k.ErrorMessage,
		Metadata:       meta,
		CreatedAt:      formatTime(k.CreatedAt),
		UpdatedAt:      formatTime(k.UpdatedAt),
	}
}
