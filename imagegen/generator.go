// generator.go implements the Generator organism, the single entry point the
// studio calls to turn a prompt (and optionally a reference) into an image.
//
// This organism composes:
//   - ReferenceGenerator: GeminiProvider for prompt + reference requests
//   - TextGenerator: GeminiProvider (Imagen) or OpenAIProvider for text-only
//   - imaging.BoundEncoded: to keep reference uploads within size limits
//   - logging.Logger: for structured logging
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"productstudio/imaging"
	"productstudio/logging"
)

// Generator classifies every provider outcome into success, ErrContentRejected,
// ErrNoOutput or ErrTransport. It sends exactly one request per call and
// never retries.
//
// Thread-Safety: Generator is safe for concurrent use.
type Generator struct {
	reference ReferenceGenerator
	text      TextGenerator
	logger    *logging.Logger
	config    GeneratorConfig
}

// GeneratorConfig holds configuration for the Generator.
type GeneratorConfig struct {
	// ReferenceMaxDimension bounds the longest edge of reference images
	// before they are sent. Zero sends references untouched.
	ReferenceMaxDimension int
}

// DefaultGeneratorConfig returns sensible default configuration.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{ReferenceMaxDimension: 1536}
}

// NewGenerator creates a Generator.
//
// Example:
//
//	gemini, _ := NewGeminiProvider(client.Models, GeminiProviderConfig{})
//	generator, err := NewGenerator(gemini, gemini, logger, DefaultGeneratorConfig())
func NewGenerator(reference ReferenceGenerator, text TextGenerator, logger *logging.Logger, config GeneratorConfig) (*Generator, error) {
	if reference == nil {
		return nil, fmt.Errorf("imagegen: reference generator cannot be nil")
	}
	if text == nil {
		return nil, fmt.Errorf("imagegen: text generator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("imagegen: logger cannot be nil")
	}
	return &Generator{
		reference: reference,
		text:      text,
		logger:    logger.Named("generator"),
		config:    config,
	}, nil
}

// Invoke generates one image. With ref the prompt is wrapped with the
// product-placement instruction and sent with the reference; without ref
// the raw prompt goes to the text-to-image entry point.
func (g *Generator) Invoke(ctx context.Context, prompt string, ref *EncodedImage) (EncodedImage, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return EncodedImage{}, fmt.Errorf("%w: %w", ErrTransport, ErrEmptyPrompt)
	}

	start := time.Now()
	mode := "text"
	var (
		out EncodedImage
		err error
	)

	if ref != nil {
		mode = "reference"
		out, err = g.reference.GenerateWithReference(ctx, WrapReferencePrompt(prompt), g.boundReference(*ref))
	} else {
		out, err = g.text.GenerateFromText(ctx, prompt)
	}

	if err == nil && out.IsZero() {
		err = fmt.Errorf("%w: provider returned an empty image", ErrNoOutput)
	}
	err = classify(err)

	log := g.logger.With(
		zap.String("mode", mode),
		zap.String("prompt", truncateText(prompt, 80)),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		log.Warn("generation failed", zap.Error(err))
		return EncodedImage{}, err
	}
	if out.MIMEType == "" {
		out.MIMEType = "image/png"
	}
	log.Info("generation succeeded", zap.String("mime_type", out.MIMEType))
	return out, nil
}

// boundReference downsizes oversized references. Images the imaging package
// cannot decode (HEIC for instance) are passed through for the model to judge.
func (g *Generator) boundReference(ref EncodedImage) EncodedImage {
	if g.config.ReferenceMaxDimension <= 0 {
		return ref
	}
	data, err := ref.Bytes()
	if err != nil {
		return ref
	}
	bounded, mimeType, err := imaging.BoundEncoded(data, ref.MIMEType, g.config.ReferenceMaxDimension)
	if err != nil {
		g.logger.Debug("reference left unbounded", zap.Error(err))
		return ref
	}
	if len(bounded) == len(data) && mimeType == ref.MIMEType {
		return ref
	}
	return NewEncodedImage(bounded, mimeType)
}

// classify makes sure err wraps one of the generation sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrContentRejected) || errors.Is(err, ErrNoOutput) || errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
