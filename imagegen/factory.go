package imagegen

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"productstudio/core"
	"productstudio/logging"
)

// Services bundles the generation components built from configuration.
type Services struct {
	Generator *Generator
	Enhancer  *PromptEnhancer
	// TextModel names the model behind text-only requests, for logs and events.
	TextModel string
	// ImageModel names the model behind reference requests.
	ImageModel string
}

// NewServicesFromConfig creates the Gemini client and wires the providers
// selected by TEXT_TO_IMAGE_PROVIDER.
func NewServicesFromConfig(ctx context.Context, cfg *core.Config, logger *logging.Logger) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("imagegen: logger cannot be nil")
	}
	log := logger.Named("generator-init")

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.GeminiAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: core.GetAIClient(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("imagegen: failed to create genai client: %w", err)
	}

	return newServices(client.Models, cfg, logger, log)
}

func newServices(models ModelsAPI, cfg *core.Config, logger, log *logging.Logger) (*Services, error) {
	gemini, err := NewGeminiProvider(models, GeminiProviderConfig{
		ImageModel:  cfg.GeminiImageModel,
		ImagenModel: cfg.ImagenModel,
	})
	if err != nil {
		return nil, err
	}

	var text TextGenerator = gemini
	textModel := gemini.ImagenModel()
	if cfg.UsesOpenAIForText() {
		openaiProvider, err := NewOpenAIProvider(cfg)
		if err != nil {
			return nil, err
		}
		text = openaiProvider
		textModel = openaiProvider.Model()
	}

	generator, err := NewGenerator(gemini, text, logger, GeneratorConfig{
		ReferenceMaxDimension: cfg.ReferenceMaxDimension,
	})
	if err != nil {
		return nil, err
	}

	log.Info("generation providers ready",
		zap.String("image_model", gemini.ImageModel()),
		zap.String("text_provider", cfg.TextToImageProvider),
		zap.String("text_model", textModel))

	return &Services{
		Generator:  generator,
		Enhancer:   NewPromptEnhancer(models, cfg.GeminiTextModel, logger),
		TextModel:  textModel,
		ImageModel: gemini.ImageModel(),
	}, nil
}
