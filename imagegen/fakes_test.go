package imagegen

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"google.golang.org/genai"
)

// fakeModels records calls and returns canned genai responses.
type fakeModels struct {
	mu sync.Mutex

	contentResp *genai.GenerateContentResponse
	contentErr  error
	imagesResp  *genai.GenerateImagesResponse
	imagesErr   error

	contentCalls   int
	imagesCalls    int
	lastModel      string
	lastContents   []*genai.Content
	lastConfig     *genai.GenerateContentConfig
	lastPrompt     string
	lastImagesConf *genai.GenerateImagesConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentCalls++
	f.lastModel = model
	f.lastContents = contents
	f.lastConfig = config
	return f.contentResp, f.contentErr
}

func (f *fakeModels) GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imagesCalls++
	f.lastModel = model
	f.lastPrompt = prompt
	f.lastImagesConf = config
	return f.imagesResp, f.imagesErr
}

func imageResponse(data []byte, mimeType string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "Here is your product photo."},
				{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}},
			}},
		}},
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

// pngBytes returns a valid PNG of the given size.
func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x % 256), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

type fakeReference struct {
	out     EncodedImage
	err     error
	calls   int
	prompts []string
	refs    []EncodedImage
}

func (f *fakeReference) GenerateWithReference(ctx context.Context, prompt string, ref EncodedImage) (EncodedImage, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.refs = append(f.refs, ref)
	return f.out, f.err
}

type fakeText struct {
	out     EncodedImage
	err     error
	calls   int
	prompts []string
}

func (f *fakeText) GenerateFromText(ctx context.Context, prompt string) (EncodedImage, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}
