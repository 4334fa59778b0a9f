package imagegen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestPromptEnhancer(t *testing.T) {
	models := &fakeModels{contentResp: textResponse("\"Hyper realistic photo of a ceramic mug\non a rustic wooden table\"")}
	enhancer := NewPromptEnhancer(models, "", nil)

	got, err := enhancer.Enhance(context.Background(), "  mug on table ")
	require.NoError(t, err)
	assert.Equal(t, "Hyper realistic photo of a ceramic mug on a rustic wooden table", got)

	assert.Equal(t, DefaultGeminiTextModel, models.lastModel)
	require.Len(t, models.lastContents, 1)
	assert.Equal(t, "mug on table", models.lastContents[0].Parts[0].Text)
	require.NotNil(t, models.lastConfig.SystemInstruction)
	assert.Contains(t, models.lastConfig.SystemInstruction.Parts[0].Text, "Canon 5D Mark IV")
}

func TestPromptEnhancerErrors(t *testing.T) {
	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		callErr error
		prompt  string
		wantErr error
	}{
		{"empty prompt", nil, nil, " ", ErrEmptyPrompt},
		{"transport", nil, errors.New("boom"), "mug", ErrTransport},
		{"no text", &genai.GenerateContentResponse{}, nil, "mug", ErrNoOutput},
		{
			"blocked",
			&genai.GenerateContentResponse{PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "SAFETY"}},
			nil,
			"mug",
			ErrContentRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enhancer := NewPromptEnhancer(&fakeModels{contentResp: tt.resp, contentErr: tt.callErr}, "gemini-test", nil)
			_, err := enhancer.Enhance(context.Background(), tt.prompt)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
