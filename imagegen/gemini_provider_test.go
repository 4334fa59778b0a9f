package imagegen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGeminiProviderWithReference(t *testing.T) {
	models := &fakeModels{contentResp: imageResponse([]byte("generated"), "image/png")}
	provider, err := NewGeminiProvider(models, GeminiProviderConfig{})
	require.NoError(t, err)

	ref := NewEncodedImage([]byte("reference"), "image/jpeg")
	out, err := provider.GenerateWithReference(context.Background(), "wrapped prompt", ref)
	require.NoError(t, err)

	data, err := out.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("generated"), data)
	assert.Equal(t, "image/png", out.MIMEType)

	assert.Equal(t, 1, models.contentCalls)
	assert.Equal(t, DefaultGeminiImageModel, models.lastModel)
	require.Len(t, models.lastContents, 1)
	content := models.lastContents[0]
	assert.Equal(t, string(genai.RoleUser), content.Role)
	require.Len(t, content.Parts, 2)
	require.NotNil(t, content.Parts[0].InlineData)
	assert.Equal(t, []byte("reference"), content.Parts[0].InlineData.Data)
	assert.Equal(t, "image/jpeg", content.Parts[0].InlineData.MIMEType)
	assert.Equal(t, "wrapped prompt", content.Parts[1].Text)
	assert.Equal(t, []string{"IMAGE", "TEXT"}, models.lastConfig.ResponseModalities)
}

func TestGeminiProviderClassification(t *testing.T) {
	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		callErr error
		wantErr error
	}{
		{
			name:    "transport error",
			callErr: errors.New("connection reset"),
			wantErr: ErrTransport,
		},
		{
			name:    "nil response",
			wantErr: ErrNoOutput,
		},
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "PROHIBITED_CONTENT"},
			},
			wantErr: ErrContentRejected,
		},
		{
			name: "safety finish reason",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: "IMAGE_SAFETY"}},
			},
			wantErr: ErrContentRejected,
		},
		{
			name:    "text only",
			resp:    textResponse("I cannot draw that."),
			wantErr: ErrNoOutput,
		},
		{
			name:    "no candidates",
			resp:    &genai.GenerateContentResponse{},
			wantErr: ErrNoOutput,
		},
		{
			name: "empty inline data",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					FinishReason: genai.FinishReasonStop,
					Content:      &genai.Content{Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: "image/png"}}}},
				}},
			},
			wantErr: ErrNoOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models := &fakeModels{contentResp: tt.resp, contentErr: tt.callErr}
			provider, err := NewGeminiProvider(models, GeminiProviderConfig{ImageModel: "custom-model"})
			require.NoError(t, err)

			_, err = provider.GenerateWithReference(context.Background(), "p", NewEncodedImage([]byte("x"), "image/png"))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 1, models.contentCalls, "exactly one request, no retries")
			assert.Equal(t, "custom-model", models.lastModel)
		})
	}
}

func TestGeminiProviderDefaultsMissingMIME(t *testing.T) {
	models := &fakeModels{contentResp: imageResponse([]byte("img"), "")}
	provider, err := NewGeminiProvider(models, GeminiProviderConfig{})
	require.NoError(t, err)

	out, err := provider.GenerateWithReference(context.Background(), "p", NewEncodedImage([]byte("x"), "image/png"))
	require.NoError(t, err)
	assert.Equal(t, "image/png", out.MIMEType)
}

func TestGeminiProviderTextToImage(t *testing.T) {
	models := &fakeModels{imagesResp: &genai.GenerateImagesResponse{
		GeneratedImages: []*genai.GeneratedImage{{
			Image: &genai.Image{ImageBytes: []byte("imagen"), MIMEType: "image/jpeg"},
		}},
	}}
	provider, err := NewGeminiProvider(models, GeminiProviderConfig{})
	require.NoError(t, err)

	out, err := provider.GenerateFromText(context.Background(), "a red mug")
	require.NoError(t, err)
	data, _ := out.Bytes()
	assert.Equal(t, []byte("imagen"), data)
	assert.Equal(t, "image/jpeg", out.MIMEType)

	assert.Equal(t, 1, models.imagesCalls)
	assert.Zero(t, models.contentCalls)
	assert.Equal(t, "a red mug", models.lastPrompt)
	assert.Equal(t, DefaultImagenModel, models.lastModel)
	assert.EqualValues(t, 1, models.lastImagesConf.NumberOfImages)
}

func TestGeminiProviderTextToImageClassification(t *testing.T) {
	tests := []struct {
		name    string
		resp    *genai.GenerateImagesResponse
		callErr error
		wantErr error
	}{
		{"transport", nil, errors.New("timeout"), ErrTransport},
		{"nil response", nil, nil, ErrNoOutput},
		{"no images", &genai.GenerateImagesResponse{}, nil, ErrNoOutput},
		{
			"filtered",
			&genai.GenerateImagesResponse{GeneratedImages: []*genai.GeneratedImage{{RAIFilteredReason: "violates policy"}}},
			nil,
			ErrContentRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models := &fakeModels{imagesResp: tt.resp, imagesErr: tt.callErr}
			provider, err := NewGeminiProvider(models, GeminiProviderConfig{})
			require.NoError(t, err)

			_, err = provider.GenerateFromText(context.Background(), "p")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 1, models.imagesCalls)
		})
	}
}

func TestNewGeminiProviderRequiresModels(t *testing.T) {
	_, err := NewGeminiProvider(nil, GeminiProviderConfig{})
	assert.Error(t, err)
}
