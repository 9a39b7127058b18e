package domain

import (
	"fmt"
	"strings"
)

// FeedbackCategory classifies why an agent answer needed a human correction
type FeedbackCategory string

const (
	FeedbackKBFact      FeedbackCategory = "KB_FACT"
	FeedbackAgentRule   FeedbackCategory = "AGENT_RULE"
	FeedbackMissingInfo FeedbackCategory = "MISSING_INFO"
	FeedbackFlowTool    FeedbackCategory = "FLOW_TOOL"
)

// FeedbackInput is the discrepancy to classify
type FeedbackInput struct {
	OrgID           string
	CustomerMessage string
	AgentAnswer     string
	HumanCorrection string
}

// FeedbackPatch is the category-specific suggestion. Only the fields of the
// classification's category are populated:
//   - KB_FACT: KnowledgeTitle, SuggestedContent
//   - AGENT_RULE: Rule
//   - MISSING_INFO: WizardQuestion
//   - FLOW_TOOL: ToolName, Trigger
type FeedbackPatch struct {
	KnowledgeTitle   string `json:"knowledge_title,omitempty"`
	SuggestedContent string `json:"suggested_content,omitempty"`
	Rule             string `json:"rule,omitempty"`
	WizardQuestion   string `json:"wizard_question,omitempty"`
	ToolName         string `json:"tool_name,omitempty"`
	Trigger          string `json:"trigger,omitempty"`
}

// FeedbackClassification is a recommendation; it never mutates knowledge by itself.
type FeedbackClassification struct {
	Category   FeedbackCategory `json:"category"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	Patch      FeedbackPatch    `json:"patch"`
}

// ParseFeedbackCategory normalizes a model-provided category name.
func ParseFeedbackCategory(s string) (FeedbackCategory, error) {
	c := FeedbackCategory(strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))))
	switch c {
	case FeedbackKBFact, FeedbackAgentRule, FeedbackMissingInfo, FeedbackFlowTool:
		return c, nil
	}
	return "", fmt.Errorf("unknown feedback category %q", s)
}

// Normalize clamps the confidence to [0,1] and drops patch fields that do
// not belong to the category.
func (c *FeedbackClassification) Normalize() {
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}

	p := c.Patch
	switch c.Category {
	case FeedbackKBFact:
		c.Patch = FeedbackPatch{KnowledgeTitle: p.KnowledgeTitle, SuggestedContent: p.SuggestedContent}
	case FeedbackAgentRule:
		c.Patch = FeedbackPatch{Rule: p.Rule}
	case FeedbackMissingInfo:
		c.Patch = FeedbackPatch{WizardQuestion: p.WizardQuestion}
	case FeedbackFlowTool:
		c.Patch = FeedbackPatch{ToolName: p.ToolName, Trigger: p.Trigger}
	}
}
