package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/kbpipe/internal/api"
	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/service"
	"github.com/go-chi/chi/v5"
)

type EditBroker interface {
	Propose(ctx context.Context, input service.EditRequestInput) (*service.EditProposal, error)
	Confirm(ctx context.Context, orgID, requestID string) (*domain.KnowledgeEditRequest, error)
}

type EditApplier interface {
	Apply(ctx context.Context, input service.ApplyInput) (*service.ApplyResult, error)
}

type EditRequestHandler struct {
	broker  EditBroker
	applier EditApplier
}

func NewEditRequestHandler(broker EditBroker, applier EditApplier) *EditRequestHandler {
	return &EditRequestHandler{broker: broker, applier: applier}
}

type ProposeEditRequest struct {
	OrgID       string `json:"organizationId"`
	UserRequest string `json:"userRequest"`
	CreatedBy   string `json:"createdBy"`
}

type ConfirmEditRequest struct {
	OrgID string `json:"organizationId"`
}

type ApplyEditRequest struct {
	OrgID     string `json:"organizationId"`
	RequestID string `json:"requestId"`
	AppliedBy string `json:"appliedBy"`
}

type EditRequestResponse struct {
	ID              string                  `json:"id"`
	OrgID           string                  `json:"organizationId"`
	UserRequest     string                  `json:"userRequest"`
	ProposedChanges []domain.ProposedChange `json:"proposedChanges"`
	Warnings        []string                `json:"warnings"`
	Explanation     string                  `json:"explanation"`
	Status          string                  `json:"status"`
	ExpiresAt       string                  `json:"expiresAt"`
	AppliedAt       *string                 `json:"appliedAt,omitempty"`
	CreatedBy       string                  `json:"createdBy,omitempty"`
	CreatedAt       string                  `json:"createdAt"`
}

type ProposalResponse struct {
	Understood    bool                 `json:"understood"`
	Clarification string               `json:"clarification,omitempty"`
	Explanation   string               `json:"explanation,omitempty"`
	Warnings      []string             `json:"warnings"`
	Request       *EditRequestResponse `json:"request,omitempty"`
}

type ChangeOutcomeResponse struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
	ItemID string `json:"itemId,omitempty"`
	Error  string `json:"error,omitempty"`
}

type ApplyResponse struct {
	RequestID string                  `json:"requestId"`
	Status    string                  `json:"status"`
	AppliedAt string                  `json:"appliedAt"`
	Changes   []ChangeOutcomeResponse `json:"changes"`
	Errors    []string                `json:"errors"`
	Reindex   *ReindexResponse        `json:"reindex,omitempty"`
}

func editRequestToResponse(req *domain.KnowledgeEditRequest) *EditRequestResponse {
	if req == nil {
		return nil
	}
	changes := req.ProposedChanges
	if changes == nil {
		changes = []domain.ProposedChange{}
	}
	warnings := req.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return &EditRequestResponse{
		ID:              req.ID,
		OrgID:           req.OrgID,
		UserRequest:     req.UserRequest,
		ProposedChanges: changes,
		Warnings:        warnings,
		Explanation:     req.Explanation,
		Status:          string(req.Status),
		ExpiresAt:       formatTime(req.ExpiresAt),
		AppliedAt:       formatTimePtr(req.AppliedAt),
		CreatedBy:       req.CreatedBy,
		CreatedAt:       formatTime(req.CreatedAt),
	}
}

// Propose interprets a natural-language edit. A proposal that needs
// clarification is still a 200: nothing was persisted.
func (h *EditRequestHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var req ProposeEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireOrg(w, r, req.OrgID) {
		return
	}

	proposal, err := h.broker.Propose(r.Context(), service.EditRequestInput{
		OrgID:       req.OrgID,
		UserRequest: req.UserRequest,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	warnings := proposal.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	status := http.StatusOK
	if proposal.Request != nil {
		status = http.StatusCreated
	}
	api.Success(w, status, ProposalResponse{
		Understood:    proposal.Understood,
		Clarification: proposal.Clarification,
		Explanation:   proposal.Explanation,
		Warnings:      warnings,
		Request:       editRequestToResponse(proposal.Request),
	})
}

func (h *EditRequestHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireOrg(w, r, req.OrgID) {
		return
	}

	confirmed, err := h.broker.Confirm(r.Context(), req.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, editRequestToResponse(confirmed))
}

func (h *EditRequestHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req ApplyEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireOrg(w, r, req.OrgID) {
		return
	}
	if req.RequestID == "" {
		api.Error(w, http.StatusBadRequest, "requestId is required")
		return
	}

	result, err := h.applier.Apply(r.Context(), service.ApplyInput{
		OrgID:     req.OrgID,
		RequestID: req.RequestID,
		AppliedBy: req.AppliedBy,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	resp := ApplyResponse{
		RequestID: result.RequestID,
		Status:    string(result.Status),
		AppliedAt: formatTime(result.AppliedAt),
		Changes:   make([]ChangeOutcomeResponse, 0, len(result.Changes)),
		Errors:    result.Errors,
		Reindex:   summaryToResponse(result.Reindex),
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	for _, c := range result.Changes {
		resp.Changes = append(resp.Changes, ChangeOutcomeResponse{Index: c.Index, Action: string(c.Action), ItemID: c.ItemID, Error: c.Error})
	}
	api.Success(w, http.StatusOK, resp)
}
