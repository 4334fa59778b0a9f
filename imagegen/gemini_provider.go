// gemini_provider.go implements the GeminiProvider molecule: reference-image
// generation through GenerateContent and text-only generation through Imagen.
//
// This molecule composes:
//   - google.golang.org/genai: for API calls
//   - atoms.go: finish reason and block reason classification
package imagegen

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Default Google models.
const (
	DefaultGeminiImageModel = "gemini-2.5-flash-image-preview"
	DefaultGeminiTextModel  = "gemini-2.5-flash"
	DefaultImagenModel      = "imagen-3.0-generate-002"
)

// ContentGenerator is the GenerateContent half of *genai.Models.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ModelsAPI is the subset of *genai.Models the studio calls. Tests supply
// fakes; production passes client.Models.
type ModelsAPI interface {
	ContentGenerator
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// ReferenceGenerator produces an image from a prompt plus a reference image.
type ReferenceGenerator interface {
	GenerateWithReference(ctx context.Context, prompt string, ref EncodedImage) (EncodedImage, error)
}

// TextGenerator produces an image from a prompt alone.
type TextGenerator interface {
	GenerateFromText(ctx context.Context, prompt string) (EncodedImage, error)
}

// GeminiProvider implements ReferenceGenerator with a Gemini image model and
// TextGenerator with Imagen.
//
// Thread Safety: GeminiProvider is safe for concurrent use.
type GeminiProvider struct {
	models      ModelsAPI
	imageModel  string
	imagenModel string
}

// GeminiProviderConfig holds configuration for the GeminiProvider.
type GeminiProviderConfig struct {
	// ImageModel handles prompt + reference requests
	// Default: gemini-2.5-flash-image-preview
	ImageModel string

	// ImagenModel handles text-only requests
	// Default: imagen-3.0-generate-002
	ImagenModel string
}

// NewGeminiProvider creates a provider over models (usually client.Models).
func NewGeminiProvider(models ModelsAPI, config GeminiProviderConfig) (*GeminiProvider, error) {
	if models == nil {
		return nil, fmt.Errorf("imagegen: genai models client cannot be nil")
	}
	if config.ImageModel == "" {
		config.ImageModel = DefaultGeminiImageModel
	}
	if config.ImagenModel == "" {
		config.ImagenModel = DefaultImagenModel
	}
	return &GeminiProvider{
		models:      models,
		imageModel:  config.ImageModel,
		imagenModel: config.ImagenModel,
	}, nil
}

// GenerateWithReference sends the reference image and the prompt in a single
// user turn, asking for IMAGE and TEXT modalities. The prompt is sent as
// given; wrapping is the Generator's job.
func (p *GeminiProvider) GenerateWithReference(ctx context.Context, prompt string, ref EncodedImage) (EncodedImage, error) {
	data, err := ref.Bytes()
	if err != nil {
		return EncodedImage{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, ref.MIMEType),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	resp, err := p.models.GenerateContent(ctx, p.imageModel, contents, config)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("%w: gemini %s: %v", ErrTransport, p.imageModel, err)
	}
	return classifyContentResponse(resp)
}

// GenerateFromText asks Imagen for one image.
func (p *GeminiProvider) GenerateFromText(ctx context.Context, prompt string) (EncodedImage, error) {
	resp, err := p.models.GenerateImages(ctx, p.imagenModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return EncodedImage{}, fmt.Errorf("%w: imagen %s: %v", ErrTransport, p.imagenModel, err)
	}
	return classifyImagesResponse(resp)
}

// ImageModel returns the reference-image model name.
func (p *GeminiProvider) ImageModel() string {
	return p.imageModel
}

// ImagenModel returns the text-to-image model name.
func (p *GeminiProvider) ImagenModel() string {
	return p.imagenModel
}

// classifyContentResponse picks the first inline image. Without one, a
// blocked prompt or a safety finish reason means ErrContentRejected and
// anything else ErrNoOutput.
func classifyContentResponse(resp *genai.GenerateContentResponse) (EncodedImage, error) {
	if resp == nil {
		return EncodedImage{}, fmt.Errorf("%w: empty response", ErrNoOutput)
	}

	var finishReason string
	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		candidate := resp.Candidates[0]
		finishReason = string(candidate.FinishReason)
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					mimeType := part.InlineData.MIMEType
					if mimeType == "" {
						mimeType = "image/png"
					}
					return NewEncodedImage(part.InlineData.Data, mimeType), nil
				}
				if part.Text != "" && !part.Thought {
					text.WriteString(part.Text)
				}
			}
		}
	}

	if resp.PromptFeedback != nil && IsBlockedPromptReason(string(resp.PromptFeedback.BlockReason)) {
		return EncodedImage{}, fmt.Errorf("%w: prompt blocked (reason: %s)", ErrContentRejected, resp.PromptFeedback.BlockReason)
	}
	if IsSafetyFinishReason(finishReason) {
		return EncodedImage{}, fmt.Errorf("%w: generation blocked (reason: %s)", ErrContentRejected, finishReason)
	}
	if text.Len() > 0 {
		return EncodedImage{}, fmt.Errorf("%w: model replied with text only: %s", ErrNoOutput, truncateText(text.String(), 200))
	}
	if finishReason != "" {
		return EncodedImage{}, fmt.Errorf("%w: finish reason %s", ErrNoOutput, finishReason)
	}
	return EncodedImage{}, fmt.Errorf("%w: no candidates", ErrNoOutput)
}

// classifyImagesResponse picks the first Imagen image with bytes. A
// responsible-AI filter reason without any image means ErrContentRejected.
func classifyImagesResponse(resp *genai.GenerateImagesResponse) (EncodedImage, error) {
	if resp == nil {
		return EncodedImage{}, fmt.Errorf("%w: empty response", ErrNoOutput)
	}

	var filtered string
	for _, img := range resp.GeneratedImages {
		if img == nil {
			continue
		}
		if img.Image != nil && len(img.Image.ImageBytes) > 0 {
			mimeType := img.Image.MIMEType
			if mimeType == "" {
				mimeType = "image/png"
			}
			return NewEncodedImage(img.Image.ImageBytes, mimeType), nil
		}
		if img.RAIFilteredReason != "" && filtered == "" {
			filtered = img.RAIFilteredReason
		}
	}

	if filtered != "" {
		return EncodedImage{}, fmt.Errorf("%w: %s", ErrContentRejected, filtered)
	}
	return EncodedImage{}, fmt.Errorf("%w: imagen returned %d images without data", ErrNoOutput, len(resp.GeneratedImages))
}

var (
	_ ReferenceGenerator = (*GeminiProvider)(nil)
	_ TextGenerator      = (*GeminiProvider)(nil)
	_ ModelsAPI          = (*genai.Models)(nil)
)
