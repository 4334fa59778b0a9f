// openai_provider.go implements the OpenAIProvider molecule, the alternate
// text-to-image entry point backed by the OpenAI Images API.
//
// This molecule composes:
//   - core.GetHTTPClient: for API transport
//   - go-openai client: for API calls
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"productstudio/core"
)

// contentPolicyCode is the OpenAI error code for prompts rejected by moderation.
const contentPolicyCode = "content_policy_violation"

// OpenAIProvider implements TextGenerator with DALL-E / gpt-image models.
//
// Thread Safety: OpenAIProvider is safe for concurrent use.
// The underlying OpenAI client handles connection pooling.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// OpenAIProviderConfig holds configuration specific to the OpenAI provider.
type OpenAIProviderConfig struct {
	// APIKey is the OpenAI API key (required)
	APIKey string

	// BaseURL is the API endpoint (default: https://api.openai.com/v1)
	BaseURL string

	// Model is the image model to use (default: dall-e-3)
	Model string

	// HTTPClient is the HTTP client for API calls (optional)
	// If nil, core.GetHTTPClient(Timeout) is used
	HTTPClient *http.Client

	// Timeout is used when HTTPClient is nil
	Timeout time.Duration
}

// DefaultOpenAIProviderConfig returns sensible defaults for OpenAI image generation.
func DefaultOpenAIProviderConfig() OpenAIProviderConfig {
	return OpenAIProviderConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   "dall-e-3",
		Timeout: 120 * time.Second,
	}
}

// NewOpenAIProvider creates a provider from the service configuration.
func NewOpenAIProvider(cfg *core.Config) (*OpenAIProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}
	providerCfg := DefaultOpenAIProviderConfig()
	providerCfg.APIKey = cfg.OpenAIAPIKey
	providerCfg.HTTPClient = core.GetAIClient(cfg)
	if cfg.OpenAIImageModel != "" {
		providerCfg.Model = cfg.OpenAIImageModel
	}
	return NewOpenAIProviderWithConfig(providerCfg)
}

// NewOpenAIProviderWithConfig creates a provider with explicit configuration.
// This is useful for testing against an httptest server.
func NewOpenAIProviderWithConfig(providerCfg OpenAIProviderConfig) (*OpenAIProvider, error) {
	if providerCfg.APIKey == "" {
		return nil, fmt.Errorf("imagegen: OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(providerCfg.APIKey)
	if providerCfg.BaseURL != "" {
		clientConfig.BaseURL = providerCfg.BaseURL
	}
	if providerCfg.HTTPClient != nil {
		clientConfig.HTTPClient = providerCfg.HTTPClient
	} else {
		timeout := providerCfg.Timeout
		if timeout <= 0 {
			timeout = DefaultOpenAIProviderConfig().Timeout
		}
		clientConfig.HTTPClient = core.GetHTTPClient(timeout)
	}

	model := providerCfg.Model
	if model == "" {
		model = "dall-e-3"
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// GenerateFromText requests one base64 image for prompt.
func (p *OpenAIProvider) GenerateFromText(ctx context.Context, prompt string) (EncodedImage, error) {
	if prompt == "" {
		return EncodedImage{}, ErrEmptyPrompt
	}

	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.model,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	}

	response, err := p.client.CreateImage(ctx, req)
	if err != nil {
		if isContentPolicyError(err) {
			return EncodedImage{}, fmt.Errorf("%w: %v", ErrContentRejected, err)
		}
		return EncodedImage{}, fmt.Errorf("%w: OpenAI image generation failed: %v", ErrTransport, err)
	}

	if len(response.Data) == 0 || response.Data[0].B64JSON == "" {
		return EncodedImage{}, fmt.Errorf("%w: OpenAI returned no image data", ErrNoOutput)
	}

	data, err := base64.StdEncoding.DecodeString(response.Data[0].B64JSON)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("%w: OpenAI returned invalid base64: %v", ErrTransport, err)
	}
	if len(data) == 0 {
		return EncodedImage{}, fmt.Errorf("%w: OpenAI returned an empty image", ErrNoOutput)
	}

	return EncodedImage{
		Base64:   response.Data[0].B64JSON,
		MIMEType: NormalizeMIME(http.DetectContentType(data)),
	}, nil
}

// Model returns the configured image model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

func isContentPolicyError(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return fmt.Sprint(apiErr.Code) == contentPolicyCode || apiErr.Type == contentPolicyCode
}

// Ensure OpenAIProvider implements TextGenerator at compile time.
var _ TextGenerator = (*OpenAIProvider)(nil)
