package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/kbpipe/internal/api"
	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/service"
	"github.com/go-chi/chi/v5"
)

type KnowledgeService interface {
	Get(ctx context.Context, orgID, id string) (*domain.KnowledgeItem, error)
	List(ctx context.Context, input service.ListKnowledgeInput) (*service.ListKnowledgeOutput, error)
	History(ctx context.Context, orgID, id string) ([]*domain.KnowledgeItemHistory, error)
	Update(ctx context.Context, input service.UpdateInput) (*domain.KnowledgeItem, error)
	Delete(ctx context.Context, orgID, id, changedBy string) error
	SetVariable(ctx context.Context, orgID, key, value string) (int, error)
}

type KnowledgeHandler struct {
	svc KnowledgeService
}

func NewKnowledgeHandler(svc KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

type UpdateKnowledgeRequest struct {
	OrgID     string  `json:"organizationId"`
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	Category  *string `json:"category"`
	ChangedBy string  `json:"changedBy"`
}

type ListKnowledgeResponse struct {
	Items   []*KnowledgeItemResponse `json:"items"`
	Cursor  string                   `json:"cursor,omitempty"`
	HasMore bool                     `json:"hasMore"`
}

type HistoryEntryResponse struct {
	ID                      string  `json:"id"`
	EditRequestID           string  `json:"editRequestId,omitempty"`
	ChangeType              string  `json:"changeType"`
	ChangeSource            string  `json:"changeSource"`
	ChangeDescription       string  `json:"changeDescription,omitempty"`
	ChangedBy               string  `json:"changedBy,omitempty"`
	PreviousTitle           *string `json:"previousTitle,omitempty"`
	PreviousContent         *string `json:"previousContent,omitempty"`
	PreviousResolvedContent *string `json:"previousResolvedContent,omitempty"`
	NewTitle                *string `json:"newTitle,omitempty"`
	NewContent              *string `json:"newContent,omitempty"`
	NewResolvedContent      *string `json:"newResolvedContent,omitempty"`
	CreatedAt               string  `json:"createdAt"`
}

type SetVariableRequest struct {
	Value string `json:"value"`
}

type SetVariableResponse struct {
	Key          string `json:"key"`
	Value        string `json:"value"`
	UpdatedItems int    `json:"updatedItems"`
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orgID := q.Get("organizationId")
	if !requireOrg(w, r, orgID) {
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	out, err := h.svc.List(r.Context(), service.ListKnowledgeInput{OrgID: orgID, Cursor: q.Get("cursor"), Limit: limit})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	resp := ListKnowledgeResponse{
		Items:   make([]*KnowledgeItemResponse, 0, len(out.Items)),
		Cursor:  out.Cursor,
		HasMore: out.HasMore,
	}
	for _, item := range out.Items {
		resp.Items = append(resp.Items, itemToResponse(item))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organizationId")
	if !requireOrg(w, r, orgID) {
		return
	}

	item, err := h.svc.Get(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, itemToResponse(item))
}

func (h *KnowledgeHandler) History(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organizationId")
	if !requireOrg(w, r, orgID) {
		return
	}

	rows, err := h.svc.History(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	resp := make([]HistoryEntryResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, HistoryEntryResponse{
			ID:                      row.ID,
			EditRequestID:           row.EditRequestID,
			ChangeType:              string(row.ChangeType),
			ChangeSource:            row.ChangeSource,
			ChangeDescription:       row.ChangeDescription,
			ChangedBy:               row.ChangedBy,
			PreviousTitle:           row.PreviousTitle,
			PreviousContent:         row.PreviousContent,
			PreviousResolvedContent: row.PreviousResolvedContent,
			NewTitle:                row.NewTitle,
			NewContent:              row.NewContent,
			NewResolvedContent:      row.NewResolvedContent,
			CreatedAt:               formatTime(row.CreatedAt),
		})
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *KnowledgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateKnowledgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireOrg(w, r, req.OrgID) {
		return
	}

	item, err := h.svc.Update(r.Context(), service.UpdateInput{
		OrgID:     req.OrgID,
		ItemID:    chi.URLParam(r, "id"),
		Title:     req.Title,
		Content:   req.Content,
		Category:  req.Category,
		ChangedBy: req.ChangedBy,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, itemToResponse(item))
}

func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orgID := q.Get("organizationId")
	if !requireOrg(w, r, orgID) {
		return
	}

	if err := h.svc.Delete(r.Context(), orgID, chi.URLParam(r, "id"), q.Get("deletedBy")); err != nil {
		api.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *KnowledgeHandler) SetVariable(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgId")
	if !requireOrg(w, r, orgID) {
		return
	}

	var req SetVariableRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	key := chi.URLParam(r, "key")
	n, err := h.svc.SetVariable(r.Context(), orgID, key, req.Value)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, SetVariableResponse{Key: key, Value: req.Value, UpdatedItems: n})
}
