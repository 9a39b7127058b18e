package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/kbpipe/internal/api"
	"github.com/cloo-solutions/kbpipe/internal/service"
)

type Reprocessor interface {
	Reprocess(ctx context.Context, itemID string) (*service.ProcessResult, error)
	ReprocessMany(ctx context.Context, itemIDs []string) *service.ReindexSummary
	ReprocessOrg(ctx context.Context, orgID string) (*service.ReindexSummary, error)
}

type ProcessingHandler struct {
	svc Reprocessor
}

func NewProcessingHandler(svc Reprocessor) *ProcessingHandler {
	return &ProcessingHandler{svc: svc}
}

// ReprocessRequest selects items by exactly one of its fields.
type ReprocessRequest struct {
	ItemID  string   `json:"itemId"`
	ItemIDs []string `json:"itemIds"`
	OrgID   string   `json:"organizationId"`
}

type ReindexResponse struct {
	Processed int               `json:"processed"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type ProcessResultResponse struct {
	ItemID     string `json:"itemId"`
	ChunkCount int    `json:"chunkCount"`
	CharCount  int    `json:"charCount"`
}

func summaryToResponse(s *service.ReindexSummary) *ReindexResponse {
	if s == nil {
		return nil
	}
	return &ReindexResponse{Processed: s.Processed, Failed: s.Failed, Errors: s.Errors}
}

func (h *ProcessingHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	var req ReprocessRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	selectors := 0
	for _, set := range []bool{req.ItemID != "", len(req.ItemIDs) > 0, req.OrgID != ""} {
		if set {
			selectors++
		}
	}
	if selectors != 1 {
		api.Error(w, http.StatusBadRequest, "exactly one of itemId, itemIds or organizationId is required")
		return
	}

	switch {
	case req.ItemID != "":
		result, err := h.svc.Reprocess(r.Context(), req.ItemID)
		if err != nil {
			api.HandleError(w, r, err)
			return
		}
		api.Success(w, http.StatusOK, ProcessResultResponse{ItemID: result.ItemID, ChunkCount: result.ChunkCount, CharCount: result.CharCount})
	case len(req.ItemIDs) > 0:
		api.Success(w, http.StatusOK, summaryToResponse(h.svc.ReprocessMany(r.Context(), req.ItemIDs)))
	default:
		requireOrg(w, r, req.OrgID)
		summary, err := h.svc.ReprocessOrg(r.Context(), req.OrgID)
		if err != nil {
			api.HandleError(w, r, err)
			return
		}
		api.Success(w, http.StatusOK, summaryToResponse(summary))
	}
}
