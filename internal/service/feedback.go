package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/telemetry"
)

const feedbackPrompt = `You review corrections that humans made to answers of a customer service AI agent.
Classify why the agent's answer needed the correction:
- KB_FACT: the knowledge base holds a wrong or outdated fact. Patch: knowledge_title and suggested_content (the corrected fact).
- AGENT_RULE: the facts were available but the agent behaved wrongly (tone, policy, escalation). Patch: rule (one instruction for the agent).
- MISSING_INFO: the knowledge base has no information on the subject. Patch: wizard_question (the question to ask the business owner).
- FLOW_TOOL: the agent should have triggered a tool or flow (booking, handoff, payment link). Patch: tool_name and trigger.

Return only a JSON object:
{
  "category": "KB_FACT" | "AGENT_RULE" | "MISSING_INFO" | "FLOW_TOOL",
  "confidence": <number between 0 and 1>,
  "reasoning": "<one or two sentences>",
  "patch": {
    "knowledge_title": "...", "suggested_content": "...",
    "rule": "...",
    "wizard_question": "...",
    "tool_name": "...", "trigger": "..."
  }
}
Fill only the patch fields of the chosen category.`

type feedbackReply struct {
	Category   string               `json:"category"`
	Confidence float64              `json:"confidence"`
	Reasoning  string               `json:"reasoning"`
	Patch      domain.FeedbackPatch `json:"patch"`
}

// FeedbackClassifier turns a human correction into a structured
// recommendation. It never changes the knowledge base.
type FeedbackClassifier struct {
	llm LLM
}

func NewFeedbackClassifier(llm LLM) *FeedbackClassifier {
	return &FeedbackClassifier{llm: llm}
}

func (c *FeedbackClassifier) Classify(ctx context.Context, input domain.FeedbackInput) (*domain.FeedbackClassification, error) {
	ctx, span := telemetry.StartSpan(ctx, "FeedbackClassifier.Classify", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		Operation: "classify_feedback",
	})
	defer span.End()

	if strings.TrimSpace(input.CustomerMessage) == "" || strings.TrimSpace(input.HumanCorrection) == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if c.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}

	user := fmt.Sprintf("Customer message:\n%s\n\nAgent answer:\n%s\n\nHuman correction:\n%s",
		input.CustomerMessage, input.AgentAnswer, input.HumanCorrection)

	var reply feedbackReply
	if err := c.llm.CompleteJSON(ctx, feedbackPrompt, user, &reply); err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrLLMUnavailable.Code, domain.ErrLLMUnavailable.Message, err)
	}

	category, err := domain.ParseFeedbackCategory(reply.Category)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "language model returned an unknown category", err)
	}

	out := &domain.FeedbackClassification{
		Category:   category,
		Confidence: reply.Confidence,
		Reasoning:  strings.TrimSpace(reply.Reasoning),
		Patch:      reply.Patch,
	}
	out.Normalize()
	return out, nil
}
