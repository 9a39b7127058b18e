package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/kbpipe/internal/api"
	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/service"
)

type Wizard interface {
	Turn(ctx context.Context, input service.WizardTurnInput) (*domain.WizardResponse, error)
	Synthesize(ctx context.Context, input service.SynthesizeInput) (*service.ImportResult, error)
}

type FeedbackClassifier interface {
	Classify(ctx context.Context, input domain.FeedbackInput) (*domain.FeedbackClassification, error)
}

type WizardHandler struct {
	wizard   Wizard
	feedback FeedbackClassifier
}

func NewWizardHandler(wizard Wizard, feedback FeedbackClassifier) *WizardHandler {
	return &WizardHandler{wizard: wizard, feedback: feedback}
}

type WizardTurnRequest struct {
	State   domain.WizardState `json:"state"`
	Message string             `json:"message"`
}

type SynthesizeRequest struct {
	State     domain.WizardState `json:"state"`
	AgentID   string             `json:"agentId"`
	ProductID string             `json:"productId"`
	Title     string             `json:"title"`
	Category  string             `json:"category"`
}

type ClassifyFeedbackRequest struct {
	OrgID           string `json:"organizationId"`
	CustomerMessage string `json:"customerMessage"`
	AgentAnswer     string `json:"agentAnswer"`
	HumanCorrection string `json:"humanCorrection"`
}

func (h *WizardHandler) Turn(w http.ResponseWriter, r *http.Request) {
	var req WizardTurnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireOrg(w, r, req.State.OrgID) {
		return
	}

	resp, err := h.wizard.Turn(r.Context(), service.WizardTurnInput{State: req.State, Message: req.Message})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *WizardHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req SynthesizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireOrg(w, r, req.State.OrgID) {
		return
	}

	result, err := h.wizard.Synthesize(r.Context(), service.SynthesizeInput{
		State:     req.State,
		AgentID:   req.AgentID,
		ProductID: req.ProductID,
		Title:     req.Title,
		Category:  req.Category,
	})
	writeImportResult(w, r, result, err)
}

// ClassifyFeedback returns a classification only; it never changes knowledge.
func (h *WizardHandler) ClassifyFeedback(w http.ResponseWriter, r *http.Request) {
	var req ClassifyFeedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireOrg(w, r, req.OrgID) {
		return
	}

	out, err := h.feedback.Classify(r.Context(), domain.FeedbackInput{
		OrgID:           req.OrgID,
		CustomerMessage: req.CustomerMessage,
		AgentAnswer:     req.AgentAnswer,
		HumanCorrection: req.HumanCorrection,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, out)
}
