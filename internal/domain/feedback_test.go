package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeedbackCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    FeedbackCategory
		wantErr bool
	}{
		{in: "KB_FACT", want: FeedbackKBFact},
		{in: "agent-rule", want: FeedbackAgentRule},
		{in: " missing_info ", want: FeedbackMissingInfo},
		{in: "FLOW_TOOL", want: FeedbackFlowTool},
		{in: "OTHER", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFeedbackCategory(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeedbackClassification_Normalize(t *testing.T) {
	c := FeedbackClassification{
		Category:   FeedbackAgentRule,
		Confidence: 1.7,
		Patch:      FeedbackPatch{Rule: "Never promise same-day delivery", SuggestedContent: "stray"},
	}
	c.Normalize()

	assert.Equal(t, 1.0, c.Confidence)
	assert.Equal(t, FeedbackPatch{Rule: "Never promise same-day delivery"}, c.Patch)

	c.Confidence = -0.2
	c.Normalize()
	assert.Equal(t, 0.0, c.Confidence)
}
