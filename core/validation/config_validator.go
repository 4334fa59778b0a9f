package validation

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"productstudio/core"
)

// ValidationResult represents the result of a configuration validation check.
// Warning marks a passing check the operator should still look at.
type ValidationResult struct {
	Valid   bool
	Warning bool
	Message string
	Error   error
}

// ConfigValidator checks the environment the studio is about to start with.
// All checks are local; none of them reach the model providers.
type ConfigValidator struct {
	envPath string
}

// NewConfigValidator creates a new ConfigValidator with default settings.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{envPath: ".env"}
}

// WithEnvPath sets a custom path for the .env file.
func (v *ConfigValidator) WithEnvPath(path string) *ConfigValidator {
	v.envPath = path
	return v
}

// CheckEnvFile reports whether the .env file exists. A missing file only
// warns, since service managers usually export the variables directly.
func (v *ConfigValidator) CheckEnvFile() ValidationResult {
	if err := CheckFileExists(v.envPath); err != nil {
		return ValidationResult{
			Valid:   true,
			Warning: true,
			Message: "No .env file, using process environment",
			Error:   core.ErrEnvFileMissing(v.envPath),
		}
	}
	return ValidationResult{Valid: true, Message: "Environment file found"}
}

// CheckGeminiKey validates that a Gemini API key is configured.
func (v *ConfigValidator) CheckGeminiKey() ValidationResult {
	key := core.GetEnvOrDefault("GEMINI_API_KEY", core.GetEnvOrDefault("API_KEY", ""))
	if key == "" {
		return ValidationResult{
			Valid:   false,
			Message: "GEMINI_API_KEY required for reference-image generation",
			Error:   core.ErrMissingAuth("gemini"),
		}
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return ValidationResult{
			Valid:   false,
			Message: "GEMINI_API_KEY contains whitespace",
			Error:   core.ErrInvalidValue("GEMINI_API_KEY", "<redacted>", "remove surrounding quotes or spaces"),
		}
	}
	return ValidationResult{Valid: true, Message: "Gemini key present"}
}

// CheckTextProvider validates the text-to-image provider selection and its key.
func (v *ConfigValidator) CheckTextProvider() ValidationResult {
	provider := strings.ToLower(core.GetEnvOrDefault("TEXT_TO_IMAGE_PROVIDER", core.ProviderImagen))
	switch provider {
	case core.ProviderImagen:
		return ValidationResult{Valid: true, Message: "Text-only prompts use Imagen"}
	case core.ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return ValidationResult{
				Valid:   false,
				Message: "OPENAI_API_KEY required when TEXT_TO_IMAGE_PROVIDER=openai",
				Error:   core.ErrMissingAuth("openai"),
			}
		}
		return ValidationResult{Valid: true, Message: "Text-only prompts use OpenAI"}
	default:
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Unknown text-to-image provider %q", provider),
			Error:   core.ErrInvalidValue("TEXT_TO_IMAGE_PROVIDER", provider, "use imagen or openai"),
		}
	}
}

// CheckAdminCredential validates ADMIN_PASSWORD_HASH or ADMIN_PASSWORD.
// A configured hash must parse as bcrypt; a plain password shorter than
// twelve characters passes with a warning.
func (v *ConfigValidator) CheckAdminCredential() ValidationResult {
	if hash := os.Getenv("ADMIN_PASSWORD_HASH"); hash != "" {
		cost, err := bcrypt.Cost([]byte(hash))
		if err != nil {
			return ValidationResult{
				Valid:   false,
				Message: "ADMIN_PASSWORD_HASH is not a bcrypt hash",
				Error:   core.ErrInvalidAdminCredential(err.Error()),
			}
		}
		if cost < bcrypt.DefaultCost {
			return ValidationResult{
				Valid:   true,
				Warning: true,
				Message: fmt.Sprintf("Admin hash uses low bcrypt cost %d", cost),
			}
		}
		return ValidationResult{Valid: true, Message: "Admin password hash valid"}
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		return ValidationResult{
			Valid:   false,
			Message: "Set ADMIN_PASSWORD_HASH or ADMIN_PASSWORD to protect the admin API",
			Error:   core.ErrMissingConfig("ADMIN_PASSWORD_HASH"),
		}
	}
	if len(password) < 12 {
		return ValidationResult{Valid: true, Warning: true, Message: "Admin password is shorter than 12 characters"}
	}
	return ValidationResult{Valid: true, Message: "Admin password set"}
}

// CheckDataDir validates that DATA_DIR exists (or can be created) and is writable.
func (v *ConfigValidator) CheckDataDir() ValidationResult {
	dir := core.GetEnvOrDefault("DATA_DIR", "./data")
	if err := CheckDirWritable(dir); err != nil {
		return ValidationResult{
			Valid:   false,
			Message: "Data directory not writable: " + dir,
			Error:   core.ErrDirNotWritable(dir, err),
		}
	}
	return ValidationResult{Valid: true, Message: "Data directory writable"}
}

// CheckDiskSpace warns when the data directory's filesystem is nearly full.
func (v *ConfigValidator) CheckDiskSpace() ValidationResult {
	dir := core.GetEnvOrDefault("DATA_DIR", "./data")
	info, err := CheckDiskSpace(dir, MinFreeDiskBytes)
	if err != nil {
		return ValidationResult{Valid: true, Warning: true, Message: err.Error()}
	}
	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("%s free (%.0f%% used)", formatBytes(info.Free), info.UsedPercent()),
	}
}
