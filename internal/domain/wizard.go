package domain

import (
	"fmt"
	"strings"
)

// WizardType selects the prompt and slot set of a knowledge wizard
type WizardType string

const (
	WizardTypeGeneral WizardType = "general"
	WizardTypeFAQ     WizardType = "faq"
	WizardTypePolicy  WizardType = "policy"
	WizardTypeProduct WizardType = "product"
)

// WizardStage is the conversational stage reported on every turn
type WizardStage string

const (
	WizardStageCollecting WizardStage = "collecting"
	WizardStageFAQ        WizardStage = "faq"
	WizardStageReview     WizardStage = "review"
	WizardStageComplete   WizardStage = "complete"
)

// MinFAQPairs is the number of answered FAQ pairs the FAQ wizard needs.
const MinFAQPairs = 3

var wizardRequiredSlots = map[WizardType][]string{
	WizardTypeGeneral: {"topic", "audience", "key_points"},
	WizardTypeFAQ:     {},
	WizardTypePolicy:  {"policy_name", "rules", "exceptions"},
	WizardTypeProduct: {"product_name", "description", "price", "benefits"},
}

// wizardMinSlots is how many required slots must be filled before the
// conversation may leave the collecting stage.
var wizardMinSlots = map[WizardType]int{
	WizardTypeGeneral: 2,
	WizardTypeFAQ:     0,
	WizardTypePolicy:  2,
	WizardTypeProduct: 3,
}

// ParseWizardType validates a wizard type name.
func ParseWizardType(s string) (WizardType, error) {
	t := WizardType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := wizardRequiredSlots[t]; !ok {
		return "", fmt.Errorf("unknown wizard type %q", s)
	}
	return t, nil
}

// RequiredSlots returns the slot names a wizard type collects.
func (t WizardType) RequiredSlots() []string {
	return append([]string(nil), wizardRequiredSlots[t]...)
}

// KnowledgeType maps a wizard to the type of the item it produces.
func (t WizardType) KnowledgeType() KnowledgeType {
	switch t {
	case WizardTypeFAQ:
		return KnowledgeTypeFAQ
	case WizardTypePolicy:
		return KnowledgeTypePolicy
	case WizardTypeProduct:
		return KnowledgeTypeProduct
	default:
		return KnowledgeTypeGeneral
	}
}

// FAQPair is one question/answer collected by a wizard
type FAQPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// WizardMessage is one prior turn of the conversation
type WizardMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WizardState is the conversation state the client sends on every turn.
type WizardState struct {
	OrgID   string            `json:"organizationId"`
	Type    WizardType        `json:"type"`
	Slots   map[string]string `json:"slots"`
	FAQs    []FAQPair         `json:"faqs"`
	History []WizardMessage   `json:"history"`
}

// MissingSlots lists required slots that are still empty, in declaration order.
func (s *WizardState) MissingSlots() []string {
	var missing []string
	for _, name := range wizardRequiredSlots[s.Type] {
		if strings.TrimSpace(s.Slots[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// CanProgress reports whether enough has been collected to leave the
// collecting stage.
func (s *WizardState) CanProgress() bool {
	required := wizardRequiredSlots[s.Type]
	filled := len(required) - len(s.MissingSlots())
	if filled < wizardMinSlots[s.Type] {
		return false
	}
	if s.Type == WizardTypeFAQ {
		return s.answeredFAQs() >= MinFAQPairs
	}
	return true
}

// IsComplete reports whether synthesis may run.
func (s *WizardState) IsComplete() bool {
	if len(s.MissingSlots()) > 0 {
		return false
	}
	if s.Type == WizardTypeFAQ {
		return s.answeredFAQs() >= MinFAQPairs
	}
	return true
}

func (s *WizardState) answeredFAQs() int {
	n := 0
	for _, f := range s.FAQs {
		if strings.TrimSpace(f.Question) != "" && strings.TrimSpace(f.Answer) != "" {
			n++
		}
	}
	return n
}

// WizardResponse is the per-turn output contract of a wizard.
type WizardResponse struct {
	Message            string            `json:"message"`
	Stage              WizardStage       `json:"stage"`
	NextQuestion       string            `json:"nextQuestion"`
	SlotUpdates        map[string]string `json:"slotUpdates"`
	MissingSlots       []string          `json:"missingSlots"`
	SuggestedQuestions []string          `json:"suggestedQuestions"`
	FAQAnswered        *FAQPair          `json:"faqAnswered,omitempty"`
}
