package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleResponder(t *testing.T) {
	r := NewRuleResponder()

	tests := []struct {
		name     string
		disease  string
		question string
		prefix   string
	}{
		{"blight cause", "late_blight", "Why did this happen?", "Late blight and early blight are usually caused"},
		{"rust cause", "rust", "what is the cause", "Rust typically develops"},
		{"other cause", "mosaic_virus", "why?", "This disease develops"},
		{"blight treatment", "Early_Blight", "What should I do now?", "For blight:"},
		{"rust cure", "RUST", "is there a cure", "For rust:"},
		{"other treatment", "leaf_spot", "treatment options", "Consult a local agricultural"},
		{"blight prevention", "early_blight", "How do I prevent it?", "Prevention: Use resistant varieties, practice crop rotation, ensure good drainage"},
		{"rust prevention", "rust", "prevention tips", "Prevention: Maintain proper spacing"},
		{"other prevention", "unknown", "prevent", "General prevention:"},
		{"healthy", "Healthy", "is it ok?", "Great news!"},
		{"default", "rust", "hello", "I can help with questions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer := r.Answer(tt.disease, tt.question)
			assert.True(t, strings.HasPrefix(answer, tt.prefix), "got %q", answer)
		})
	}
}

func TestRuleResponderTopicOrder(t *testing.T) {
	// Cause questions win over treatment questions.
	answer := NewRuleResponder().Answer("rust", "why is there no cure")
	assert.True(t, strings.HasPrefix(answer, "Rust typically develops"), answer)

	// A healthy plant still gets topic answers when asked.
	answer = NewRuleResponder().Answer("healthy", "how to prevent disease")
	assert.True(t, strings.HasPrefix(answer, "General prevention:"), answer)
}
