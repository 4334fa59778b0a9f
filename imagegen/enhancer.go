package imagegen

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"productstudio/logging"
)

// enhancerInstruction rewrites a user's idea as a premium product photo brief.
const enhancerInstruction = `You are a premium product photography prompt writer.
General rules: always aim for high quality, ultra detailed images. For photos, simulate a professional camera capture (Canon 5D Mark IV, 50mm f/1.2, HDRI 10x). For 3D or animation, simulate a cinematic studio render. Avoid distortions and unreal elements when the intent is realism. Lighting is always natural or premium studio. The background adapts to the chosen style (clean, candy color, rustic and so on).
Visual styles: cinematic means dramatic shadows and contrast with warm or cold film light; candy color means soft pastel backgrounds; minimalist means a white or grey fully clean background; rustic means wood, stone, warm light and a natural setting.
Angles: top view (flat lay) suits food and small products; close-up highlights textures with soft blur; 45 degree angle is the balanced catalog shot; infinite studio background suits mockups and e-commerce.
Extras: soft shadows for premium realism; realistic textures with natural detail; centered product keeps focus on the object; professional mockup gives a commercial, ad-ready look.
Your task is to rewrite the user's prompt following these rules. The result must be one continuous block of text without line breaks, special characters, quotes, bullets or parentheses. Return only the final enhanced prompt.`

// PromptEnhancer rewrites prompts with a Gemini text model. It costs no tokens.
type PromptEnhancer struct {
	models ContentGenerator
	model  string
	logger *logging.Logger
}

// NewPromptEnhancer creates an enhancer. An empty model selects gemini-2.5-flash.
func NewPromptEnhancer(models ContentGenerator, model string, logger *logging.Logger) *PromptEnhancer {
	if model == "" {
		model = DefaultGeminiTextModel
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &PromptEnhancer{
		models: models,
		model:  model,
		logger: logger.Named("enhancer"),
	}
}

// Enhance returns the rewritten prompt as a single trimmed line.
func (e *PromptEnhancer) Enhance(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: enhancerInstruction}}},
	}

	resp, err := e.models.GenerateContent(ctx, e.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("%w: enhance prompt: %v", ErrTransport, err)
	}

	var text strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0] != nil && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
		}
	}

	enhanced := flattenPrompt(text.String())
	if enhanced == "" {
		if resp != nil && resp.PromptFeedback != nil && IsBlockedPromptReason(string(resp.PromptFeedback.BlockReason)) {
			return "", fmt.Errorf("%w: prompt blocked (reason: %s)", ErrContentRejected, resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%w: enhancer returned no text", ErrNoOutput)
	}

	e.logger.Debug("prompt enhanced")
	return enhanced, nil
}

// flattenPrompt collapses whitespace and strips wrapping quotes.
func flattenPrompt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, "\"'`“”")
}
