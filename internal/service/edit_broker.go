package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/telemetry"
)

const (
	// DefaultEditRequestTTL is the approval window of a new edit request.
	DefaultEditRequestTTL = 30 * time.Minute

	contextItemLimit   = 200
	contextPreviewSize = 600

	clarificationUnavailable = "The knowledge assistant is unavailable right now, so no change was proposed. Please try again in a few minutes."
	clarificationNoChanges   = "I could not turn that into a concrete change. Which knowledge item should change, and how?"
)

const editBrokerPrompt = `You maintain the knowledge base of a customer service AI agent.
Given the organization's products and knowledge items, interpret the user's request as a list of changes.

Return only a JSON object:
{
  "understood": true | false,
  "needs_clarification": "<question to ask when the request is ambiguous, else null>",
  "proposed_changes": [
    {
      "action": "update" | "create" | "delete",
      "item_id": "<existing item id for update/delete, null for create>",
      "proposed_title": "<new title or null to keep>",
      "proposed_content": "<full new content or null to keep; required for create>",
      "category": "<category or null>",
      "scope": "global" | "product",
      "product_slug": "<product slug when scope is product, else null>",
      "reason": "<one sentence>"
    }
  ],
  "warnings": ["<anything the reviewer should double check>"],
  "explanation": "<short summary of the proposal>"
}

Rules:
- Only reference item ids and product slugs that appear in the context.
- For update, proposed_content must be the complete new text of the item, not a diff.
- Never invent prices, policies or facts the user did not state.
- If the request is ambiguous, set understood to false and ask one clarifying question.`

// EditRequestRepositoryInterface defines persistence for edit requests
type EditRequestRepositoryInterface interface {
	Create(ctx context.Context, req *domain.KnowledgeEditRequest) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeEditRequest, error)
	Transition(ctx context.Context, id string, status domain.EditRequestStatus, appliedAt *time.Time) error
	Claim(ctx context.Context, id string, now time.Time) error
}

// LLM is the language-model surface the orchestrators use.
type LLM interface {
	CompleteJSON(ctx context.Context, system, user string, out any) error
	CompleteText(ctx context.Context, system, user string) (string, error)
}

// EditBroker turns a free-text instruction into a pending, time-boxed
// KnowledgeEditRequest. It never mutates knowledge items.
type EditBroker struct {
	items    KnowledgeRepositoryInterface
	products ProductRepositoryInterface
	requests EditRequestRepositoryInterface
	llm      LLM
	ttl      time.Duration
	uuidGen  UUIDGenerator
	now      func() time.Time
}

// NewEditBroker creates an EditBroker. llm may be nil, in which case every
// request fails closed with a clarification.
func NewEditBroker(
	items KnowledgeRepositoryInterface,
	products ProductRepositoryInterface,
	requests EditRequestRepositoryInterface,
	llm LLM,
	ttl time.Duration,
) *EditBroker {
	if ttl <= 0 {
		ttl = DefaultEditRequestTTL
	}
	return &EditBroker{
		items:    items,
		products: products,
		requests: requests,
		llm:      llm,
		ttl:      ttl,
		uuidGen:  &DefaultUUIDGenerator{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type EditRequestInput struct {
	OrgID       string
	UserRequest string
	CreatedBy   string
}

// EditProposal is the broker's answer. Request is nil whenever Understood is false.
type EditProposal struct {
	Understood    bool
	Clarification string
	Explanation   string
	Warnings      []string
	Request       *domain.KnowledgeEditRequest
}

type editInterpretation struct {
	Understood         bool              `json:"understood"`
	NeedsClarification json.RawMessage   `json:"needs_clarification"`
	ProposedChanges    []json.RawMessage `json:"proposed_changes"`
	Warnings           []string          `json:"warnings"`
	Explanation        string            `json:"explanation"`
}

// Propose interprets input.UserRequest and persists the validated proposal.
func (b *EditBroker) Propose(ctx context.Context, input EditRequestInput) (*EditProposal, error) {
	ctx, span := telemetry.StartSpan(ctx, "EditBroker.Propose", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		Operation: "propose_edit",
	})
	defer span.End()

	if input.OrgID == "" || strings.TrimSpace(input.UserRequest) == "" {
		return nil, domain.ErrMissingRequiredField
	}

	if b.llm == nil {
		return unavailableProposal(), nil
	}

	products, err := b.products.ListActiveByOrg(ctx, input.OrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	items, err := b.items.ListActiveByOrg(ctx, input.OrgID, contextItemLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge items: %w", err)
	}

	var out editInterpretation
	if err := b.llm.CompleteJSON(ctx, editBrokerPrompt, buildEditContext(input.UserRequest, products, items), &out); err != nil {
		log.Printf("Edit request interpretation failed for org %s: %v", input.OrgID, err)
		span.SetError(err)
		return unavailableProposal(), nil
	}

	if !out.Understood {
		return &EditProposal{
			Understood:    false,
			Clarification: clarificationText(out.NeedsClarification, out.Explanation),
			Explanation:   out.Explanation,
			Warnings:      out.Warnings,
		}, nil
	}

	changes, warnings := b.enrich(ctx, input.OrgID, out.ProposedChanges, products)
	warnings = append(out.Warnings, warnings...)
	if len(changes) == 0 {
		return &EditProposal{
			Understood:    false,
			Clarification: clarificationNoChanges,
			Explanation:   out.Explanation,
			Warnings:      warnings,
		}, nil
	}

	now := b.now()
	req := &domain.KnowledgeEditRequest{
		ID:              b.uuidGen.NewString(),
		OrgID:           input.OrgID,
		UserRequest:     input.UserRequest,
		ProposedChanges: changes,
		Warnings:        warnings,
		Explanation:     out.Explanation,
		Status:          domain.EditRequestStatusPending,
		ExpiresAt:       now.Add(b.ttl),
		CreatedBy:       input.CreatedBy,
		CreatedAt:       now,
	}
	if err := b.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to store edit request: %w", err)
	}

	return &EditProposal{
		Understood:  true,
		Explanation: out.Explanation,
		Warnings:    warnings,
		Request:     req,
	}, nil
}

// Confirm moves a pending request to confirmed. An expired request is
// transitioned to expired instead.
func (b *EditBroker) Confirm(ctx context.Context, orgID, requestID string) (*domain.KnowledgeEditRequest, error) {
	ctx, span := telemetry.StartSpan(ctx, "EditBroker.Confirm", telemetry.SpanAttributes{
		OrgID:         orgID,
		EditRequestID: requestID,
		Operation:     "confirm_edit",
	})
	defer span.End()

	req, err := loadEditRequest(ctx, b.requests, orgID, requestID)
	if err != nil {
		return nil, err
	}
	if err := checkApplicable(ctx, b.requests, req, b.now()); err != nil {
		return nil, err
	}
	if req.Status == domain.EditRequestStatusConfirmed {
		return req, nil
	}
	if err := b.requests.Transition(ctx, req.ID, domain.EditRequestStatusConfirmed, nil); err != nil {
		return nil, err
	}
	req.Status = domain.EditRequestStatusConfirmed
	return req, nil
}

// enrich validates raw model changes at the trust boundary. Invalid entries
// are dropped with a warning; product slugs are resolved here, never trusted.
func (b *EditBroker) enrich(ctx context.Context, orgID string, raw []json.RawMessage, products []*domain.Product) ([]domain.ProposedChange, []string) {
	bySlug := make(map[string]*domain.Product, len(products))
	for _, p := range products {
		bySlug[strings.ToLower(p.Slug)] = p
	}

	var changes []domain.ProposedChange
	var warnings []string
	for i, msg := range raw {
		var rc domain.RawProposedChange
		if err := json.Unmarshal(msg, &rc); err != nil {
			warnings = append(warnings, fmt.Sprintf("change %d ignored: malformed entry", i+1))
			continue
		}
		c, err := rc.Coerce()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("change %d ignored: %v", i+1, err))
			continue
		}

		if c.ItemID != "" {
			item, err := getOwnedItem(ctx, b.items, orgID, c.ItemID)
			if err != nil || !item.IsActive {
				warnings = append(warnings, fmt.Sprintf("change %d ignored: item %s is not an active item of this organization", i+1, c.ItemID))
				continue
			}
		}

		if c.ProductSlug != "" {
			if p, ok := bySlug[strings.ToLower(c.ProductSlug)]; ok {
				c.ProductID = p.ID
			} else {
				warnings = append(warnings, fmt.Sprintf("change %d: unknown product %q, applied as global knowledge", i+1, c.ProductSlug))
				c.ProductSlug = ""
				c.Scope = domain.KnowledgeScopeGlobal
			}
		}
		if c.Action == domain.ChangeTypeCreate && c.Scope == domain.KnowledgeScopeProduct && c.ProductID == "" {
			c.Scope = domain.KnowledgeScopeGlobal
		}

		changes = append(changes, c)
	}
	return changes, warnings
}

func buildEditContext(userRequest string, products []*domain.Product, items []*domain.KnowledgeItem) string {
	productSlugs := make(map[string]string, len(products))
	var sb strings.Builder

	sb.WriteString("## Products\n")
	if len(products) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, p := range products {
		productSlugs[p.ID] = p.Slug
		fmt.Fprintf(&sb, "- slug=%s name=%q price=%q\n", p.Slug, p.Name, p.Price)
	}

	sb.WriteString("\n## Knowledge items\n")
	if len(items) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, k := range items {
		fmt.Fprintf(&sb, "### id=%s\ntitle: %s\ncategory: %s\nscope: %s\n", k.ID, k.Title, k.Category, k.Scope)
		if slug, ok := productSlugs[k.ProductID]; ok {
			fmt.Fprintf(&sb, "product: %s\n", slug)
		}
		fmt.Fprintf(&sb, "content: %s\n\n", preview(k.Content, contextPreviewSize))
	}

	sb.WriteString("\n## Request\n")
	sb.WriteString(userRequest)
	return sb.String()
}

func preview(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

func clarificationText(raw json.RawMessage, explanation string) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if strings.TrimSpace(explanation) != "" {
		return strings.TrimSpace(explanation)
	}
	return clarificationNoChanges
}

func unavailableProposal() *EditProposal {
	return &EditProposal{
		Understood:    false,
		Clarification: clarificationUnavailable,
	}
}

func loadEditRequest(ctx context.Context, repo EditRequestRepositoryInterface, orgID, id string) (*domain.KnowledgeEditRequest, error) {
	req, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if orgID != "" && req.OrgID != orgID {
		return nil, domain.ErrEditRequestNotFound
	}
	return req, nil
}

// checkApplicable enforces the approval window. A request found past its
// deadline is moved to expired before the error is returned.
func checkApplicable(ctx context.Context, repo EditRequestRepositoryInterface, req *domain.KnowledgeEditRequest, now time.Time) error {
	err := req.CheckApplicable(now)
	if errors.Is(err, domain.ErrEditRequestExpired) {
		if terr := repo.Transition(ctx, req.ID, domain.EditRequestStatusExpired, nil); terr != nil && !errors.Is(terr, domain.ErrEditRequestNotApplicable) {
			log.Printf("Failed to expire edit request %s: %v", req.ID, terr)
		}
		req.Status = domain.EditRequestStatusExpired
	}
	return err
}
