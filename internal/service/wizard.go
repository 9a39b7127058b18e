package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/telemetry"
)

const (
	wizardFallbackMessage = "Sorry, I could not process that answer. Could you say it again in other words?"
	wizardHistoryTurns    = 20
)

const wizardTurnContract = `
Return only a JSON object:
{
  "message": "<your reply to the user>",
  "stage": "collecting" | "faq" | "review" | "complete",
  "nextQuestion": "<the single next question, or empty>",
  "slotUpdates": {"<slot name>": "<value>"},
  "missingSlots": ["<slot name>"],
  "suggestedQuestions": ["<question a customer might ask>"],
  "faqAnswered": {"question": "<question>", "answer": "<answer>"} | null
}
Only fill a slot with what the user actually said. Ask one question at a time.`

var wizardPrompts = map[domain.WizardType]string{
	domain.WizardTypeGeneral: `You help a business owner document general knowledge for their customer service AI agent.
Collect the slots: topic (what this knowledge is about), audience (who asks about it), key_points (the facts the agent must know).
Stay in "collecting" until at least two slots are filled, then move to "faq" and collect a few likely customer questions with answers.
Use "review" when everything is filled and "complete" once the user confirms.`,
	domain.WizardTypeFAQ: `You help a business owner write a FAQ for their customer service AI agent.
Suggest likely customer questions and collect the owner's answer to each, one at a time.
Report each newly answered pair in faqAnswered. Stay in "faq" until at least three pairs are answered, then use "review",
and "complete" once the user confirms.`,
	domain.WizardTypePolicy: `You help a business owner document a policy (returns, refunds, delivery, warranty...) for their customer service AI agent.
Collect the slots: policy_name, rules (what is allowed, deadlines, conditions), exceptions (cases where the rules do not apply).
Stay in "collecting" until at least two slots are filled, then collect edge-case questions in "faq".
Use "review" when everything is filled and "complete" once the user confirms.`,
	domain.WizardTypeProduct: `You help a business owner describe a product for their customer service AI agent.
Collect the slots: product_name, description, price, benefits.
Stay in "collecting" until at least three slots are filled, then collect common buyer questions in "faq".
Use "review" when everything is filled and "complete" once the user confirms.`,
}

const wizardSynthesisPrompt = `You turn the answers collected by a knowledge wizard into one knowledge base document for a customer service AI agent.
Write clear Markdown with short sections and keep every fact exactly as given; never add facts.
Include the FAQ pairs under a "Frequently asked questions" heading when there are any.

Return only a JSON object: {"title": "<short document title>", "content": "<the Markdown document>"}`

// WizardService drives the conversational wizards. Turns are stateless: the
// client sends the collected state with every message.
type WizardService struct {
	importer
	llm LLM
}

// NewWizardService creates a WizardService. llm may be nil: turns then return
// the fallback response and synthesis uses the template document.
func NewWizardService(
	items KnowledgeRepositoryInterface,
	logs ImportLogRepositoryInterface,
	products ProductRepositoryInterface,
	writer *ContentWriter,
	processor ItemProcessor,
	llm LLM,
) *WizardService {
	return &WizardService{
		importer: newImporter(items, logs, products, writer, processor),
		llm:      llm,
	}
}

type WizardTurnInput struct {
	State   domain.WizardState
	Message string
}

// Turn answers one user message. Model failures never fail the conversation;
// they produce a fallback response that asks for the next missing slot.
func (s *WizardService) Turn(ctx context.Context, input WizardTurnInput) (*domain.WizardResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "WizardService.Turn", telemetry.SpanAttributes{
		OrgID:     input.State.OrgID,
		Operation: "wizard_turn",
	})
	defer span.End()

	t, err := domain.ParseWizardType(string(input.State.Type))
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid wizard type", err)
	}
	state := input.State
	state.Type = t
	if state.Slots == nil {
		state.Slots = map[string]string{}
	}

	if s.llm == nil {
		return fallbackTurn(&state), nil
	}

	var out domain.WizardResponse
	if err := s.llm.CompleteJSON(ctx, wizardPrompts[t]+"\n"+wizardTurnContract, wizardTurnContext(&state, input.Message), &out); err != nil {
		log.Printf("Wizard turn failed for org %s (%s): %v", state.OrgID, t, err)
		span.SetError(err)
		return fallbackTurn(&state), nil
	}

	return enforceWizardRules(&state, &out), nil
}

// enforceWizardRules checks the model's answer against the collected state:
// only known slots are accepted, missing slots are recomputed, and the stage
// cannot run ahead of the minimum-slots rule.
func enforceWizardRules(state *domain.WizardState, out *domain.WizardResponse) *domain.WizardResponse {
	known := make(map[string]bool)
	for _, name := range state.Type.RequiredSlots() {
		known[name] = true
	}

	merged := *state
	merged.Slots = make(map[string]string, len(state.Slots))
	for k, v := range state.Slots {
		merged.Slots[k] = v
	}
	updates := make(map[string]string)
	for k, v := range out.SlotUpdates {
		if !known[k] || strings.TrimSpace(v) == "" {
			continue
		}
		updates[k] = strings.TrimSpace(v)
		merged.Slots[k] = updates[k]
	}
	out.SlotUpdates = updates

	if out.FAQAnswered != nil {
		if strings.TrimSpace(out.FAQAnswered.Question) == "" || strings.TrimSpace(out.FAQAnswered.Answer) == "" {
			out.FAQAnswered = nil
		} else {
			merged.FAQs = append(append([]domain.FAQPair(nil), state.FAQs...), *out.FAQAnswered)
		}
	}

	out.MissingSlots = merged.MissingSlots()
	if out.MissingSlots == nil {
		out.MissingSlots = []string{}
	}

	switch {
	case out.Stage != domain.WizardStageCollecting && !merged.CanProgress():
		if state.Type == domain.WizardTypeFAQ {
			out.Stage = domain.WizardStageFAQ
		} else {
			out.Stage = domain.WizardStageCollecting
		}
	case (out.Stage == domain.WizardStageComplete || out.Stage == domain.WizardStageReview) && !merged.IsComplete():
		out.Stage = domain.WizardStageFAQ
		if len(out.MissingSlots) > 0 {
			out.Stage = domain.WizardStageCollecting
		}
	case out.Stage == "":
		out.Stage = domain.WizardStageCollecting
	}

	if strings.TrimSpace(out.Message) == "" {
		out.Message = out.NextQuestion
	}
	if out.SuggestedQuestions == nil {
		out.SuggestedQuestions = []string{}
	}
	return out
}

func fallbackTurn(state *domain.WizardState) *domain.WizardResponse {
	missing := state.MissingSlots()
	stage := domain.WizardStageCollecting
	next := ""
	switch {
	case len(missing) > 0:
		next = fmt.Sprintf("Could you tell me the %s?", strings.ReplaceAll(missing[0], "_", " "))
	case state.IsComplete():
		stage = domain.WizardStageReview
	default:
		stage = domain.WizardStageFAQ
		next = "What is another question customers often ask, and how should it be answered?"
	}
	if missing == nil {
		missing = []string{}
	}
	return &domain.WizardResponse{
		Message:            wizardFallbackMessage,
		Stage:              stage,
		NextQuestion:       next,
		SlotUpdates:        map[string]string{},
		MissingSlots:       missing,
		SuggestedQuestions: []string{},
	}
}

func wizardTurnContext(state *domain.WizardState, message string) string {
	history := state.History
	if len(history) > wizardHistoryTurns {
		history = history[len(history)-wizardHistoryTurns:]
	}
	payload := map[string]any{
		"collected_slots": state.Slots,
		"missing_slots":   state.MissingSlots(),
		"faqs":            state.FAQs,
		"history":         history,
		"user_message":    message,
	}
	data, _ := json.MarshalIndent(payload, "", "  ")
	return string(data)
}

type SynthesizeInput struct {
	State     domain.WizardState
	AgentID   string
	ProductID string
	Title     string
	Category  string
}

type wizardDocument struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Synthesize turns a completed wizard into a knowledge item and runs it
// through the processing pipeline.
func (s *WizardService) Synthesize(ctx context.Context, input SynthesizeInput) (*ImportResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "WizardService.Synthesize", telemetry.SpanAttributes{
		OrgID:     input.State.OrgID,
		Operation: "wizard_synthesize",
	})
	defer span.End()

	if input.State.OrgID == "" {
		return nil, domain.ErrMissingRequiredField
	}
	t, err := domain.ParseWizardType(string(input.State.Type))
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid wizard type", err)
	}
	state := input.State
	state.Type = t
	if !state.IsComplete() {
		return nil, domain.NewDomainError(domain.ErrCodeValidation,
			fmt.Sprintf("wizard is not complete: missing %s", describeMissing(&state)))
	}

	if err := s.checkProduct(ctx, state.OrgID, input.ProductID); err != nil {
		return nil, err
	}

	doc := s.synthesize(ctx, &state)
	if title := strings.TrimSpace(input.Title); title != "" {
		doc.Title = title
	}

	l, err := s.begin(ctx, state.OrgID, domain.ImportSourceWizard, string(t))
	if err != nil {
		return nil, err
	}

	item := s.newItem(state.OrgID, doc.Title, t.KnowledgeType(), domain.KnowledgeSourceConversation)
	item.AgentID = input.AgentID
	item.ProductID = input.ProductID
	item.Category = input.Category
	item.Metadata[domain.MetaWizardType] = string(t)

	if err := s.create(ctx, l, item); err != nil {
		span.SetError(err)
		return nil, err
	}

	result, err := s.ingest(ctx, l, item, ContentChange{Content: &doc.Content})
	if err != nil {
		span.SetError(err)
	}
	return result, err
}

func (s *WizardService) synthesize(ctx context.Context, state *domain.WizardState) wizardDocument {
	fallback := templateDocument(state)
	if s.llm == nil {
		return fallback
	}

	data, _ := json.MarshalIndent(map[string]any{
		"type":  state.Type,
		"slots": state.Slots,
		"faqs":  state.FAQs,
	}, "", "  ")

	var doc wizardDocument
	if err := s.llm.CompleteJSON(ctx, wizardSynthesisPrompt, string(data), &doc); err != nil {
		log.Printf("Wizard synthesis fell back to the template for org %s: %v", state.OrgID, err)
		return fallback
	}
	doc.Title = strings.TrimSpace(doc.Title)
	doc.Content = strings.TrimSpace(doc.Content)
	if doc.Content == "" {
		return fallback
	}
	if doc.Title == "" {
		doc.Title = fallback.Title
	}
	return doc
}

var slotHeadings = map[string]string{
	"topic":        "Topic",
	"audience":     "Audience",
	"key_points":   "Key points",
	"policy_name":  "Policy",
	"rules":        "Rules",
	"exceptions":   "Exceptions",
	"product_name": "Product",
	"description":  "Description",
	"price":        "Price",
	"benefits":     "Benefits",
}

// templateDocument renders the collected answers without a model.
func templateDocument(state *domain.WizardState) wizardDocument {
	var title string
	switch state.Type {
	case domain.WizardTypePolicy:
		title = state.Slots["policy_name"]
	case domain.WizardTypeProduct:
		title = state.Slots["product_name"]
	case domain.WizardTypeGeneral:
		title = state.Slots["topic"]
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Frequently asked questions"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", title)
	for _, name := range state.Type.RequiredSlots() {
		v := strings.TrimSpace(state.Slots[name])
		if v == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s\n\n%s\n", slotHeadings[name], v)
	}

	var faqs []domain.FAQPair
	for _, f := range state.FAQs {
		if strings.TrimSpace(f.Question) != "" && strings.TrimSpace(f.Answer) != "" {
			faqs = append(faqs, f)
		}
	}
	if len(faqs) > 0 {
		sb.WriteString("\n## Frequently asked questions\n")
		for _, f := range faqs {
			fmt.Fprintf(&sb, "\n**%s**\n\n%s\n", strings.TrimSpace(f.Question), strings.TrimSpace(f.Answer))
		}
	}

	return wizardDocument{Title: title, Content: strings.TrimSpace(sb.String())}
}

func describeMissing(state *domain.WizardState) string {
	if missing := state.MissingSlots(); len(missing) > 0 {
		return strings.Join(missing, ", ")
	}
	return fmt.Sprintf("at least %d answered FAQ pairs", domain.MinFAQPairs)
}
