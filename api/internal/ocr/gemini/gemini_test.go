package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradescan/api/internal/ocr"
)

func TestFirstText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			nil,
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("  ")}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"student":`), genai.Text(`{}}`)}}},
		},
	}
	assert.Equal(t, `{"student":{}}`, firstText(resp))
	assert.Equal(t, "", firstText(nil))
}

func TestBlockedResponse(t *testing.T) {
	be := &genai.BlockedError{
		PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
		Candidate:      &genai.Candidate{Content: &genai.Content{Parts: []genai.Part{genai.Text("partial")}}},
	}
	out := blockedResponse("gemini-1.5-flash", be)
	assert.True(t, out.Blocked)
	assert.Equal(t, "partial", out.Text)
	assert.NotEmpty(t, out.BlockReason)
}

func TestGenerate_NoKey(t *testing.T) {
	e := New("", "gemini-1.5-flash")
	_, err := e.Generate(context.Background(), ocr.Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, "gemini", e.Name())
	assert.Equal(t, "gemini-1.5-flash", e.GetModel())
}
