package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Text-to-image providers selectable via TEXT_TO_IMAGE_PROVIDER.
const (
	ProviderImagen = "imagen"
	ProviderOpenAI = "openai"
)

// CostConfig holds the token prices of each generation shape.
type CostConfig struct {
	FirstItem int64 // Cost of the first source item of a batch
	ExtraItem int64 // Cost of every additional source item
	TextOnly  int64 // Cost of a text-to-image request
	Edit      int64 // Cost of a single-image edit
}

// Config holds all configuration values
type Config struct {
	// API Keys
	GeminiAPIKey string
	OpenAIAPIKey string

	// Model Selection
	TextToImageProvider string
	GeminiImageModel    string
	GeminiTextModel     string
	ImagenModel         string
	OpenAIImageModel    string

	// Server Configuration
	Host              string
	Port              int
	PublicBaseURL     string
	IdentityHeader    string
	AdminPassword     string
	AdminPasswordHash string

	// Storage
	DataDir      string
	DatabasePath string
	BlobDir      string

	// Token economics
	Costs                 CostConfig
	DefaultTokenBalance   int64
	AutoProvisionProfiles bool

	// Catalog and resolver limits
	MaxProducts           int
	MaxUploadBytes        int64
	MaxFetchBytes         int64
	AllowPrivateFetch     bool
	ReferenceMaxDimension int

	// Processing Configuration
	AITimeout          time.Duration
	EventRetentionDays int
	ShutdownTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables. Only the Gemini
// key and an admin credential are required; everything else has a default.
func LoadConfig() (*Config, error) {
	var missingVars []string

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		geminiKey = os.Getenv("API_KEY") // Legacy name used by the hosted functions
	}
	if geminiKey == "" {
		missingVars = append(missingVars, "GEMINI_API_KEY")
	}

	adminPassword := os.Getenv("ADMIN_PASSWORD")
	adminHash := os.Getenv("ADMIN_PASSWORD_HASH")
	if adminPassword == "" && adminHash == "" {
		missingVars = append(missingVars, "ADMIN_PASSWORD or ADMIN_PASSWORD_HASH")
	}

	if len(missingVars) > 0 {
		return nil, ErrMissingConfig(strings.Join(missingVars, ", "))
	}

	provider := strings.ToLower(GetEnvOrDefault("TEXT_TO_IMAGE_PROVIDER", ProviderImagen))
	openAIKey := os.Getenv("OPENAI_API_KEY")
	switch provider {
	case ProviderImagen:
	case ProviderOpenAI:
		if openAIKey == "" {
			return nil, ErrMissingAuth("openai")
		}
	default:
		return nil, ErrInvalidValue("TEXT_TO_IMAGE_PROVIDER", provider, "use imagen or openai")
	}

	port := ParseIntEnv("PORT", 8080)
	if port < 1 || port > 65535 {
		return nil, ErrInvalidValue("PORT", fmt.Sprint(port), "use a port between 1 and 65535")
	}

	costs := CostConfig{
		FirstItem: ParseInt64Env("COST_FIRST_ITEM", 16),
		ExtraItem: ParseInt64Env("COST_EXTRA_ITEM", 4),
		TextOnly:  ParseInt64Env("COST_TEXT_ONLY", 20),
		Edit:      ParseInt64Env("COST_EDIT", 16),
	}
	if costs.FirstItem < 0 || costs.ExtraItem < 0 || costs.TextOnly < 0 || costs.Edit < 0 {
		return nil, ErrInvalidValue("COST_*", "negative", "token prices must be zero or positive")
	}

	dataDir := GetEnvOrDefault("DATA_DIR", "./data")
	publicBaseURL := strings.TrimRight(GetEnvOrDefault("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", port)), "/")

	return &Config{
		GeminiAPIKey: geminiKey,
		OpenAIAPIKey: openAIKey,

		TextToImageProvider: provider,
		GeminiImageModel:    GetEnvOrDefault("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image-preview"),
		GeminiTextModel:     GetEnvOrDefault("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		ImagenModel:         GetEnvOrDefault("IMAGEN_MODEL", "imagen-3.0-generate-002"),
		OpenAIImageModel:    GetEnvOrDefault("OPENAI_IMAGE_MODEL", "dall-e-3"),

		Host:              GetEnvOrDefault("HOST", "0.0.0.0"),
		Port:              port,
		PublicBaseURL:     publicBaseURL,
		IdentityHeader:    GetEnvOrDefault("IDENTITY_HEADER", "X-User-ID"),
		AdminPassword:     adminPassword,
		AdminPasswordHash: adminHash,

		DataDir:      dataDir,
		DatabasePath: GetEnvOrDefault("DATABASE_PATH", filepath.Join(dataDir, "productstudio.db")),
		BlobDir:      GetEnvOrDefault("BLOB_DIR", filepath.Join(dataDir, "blobs")),

		Costs:                 costs,
		DefaultTokenBalance:   ParseInt64Env("DEFAULT_TOKEN_BALANCE", 60),
		AutoProvisionProfiles: ParseBoolEnv("AUTO_PROVISION_PROFILES", true),

		MaxProducts:           ParseIntEnv("MAX_PRODUCTS", 7),
		MaxUploadBytes:        ParseInt64Env("MAX_UPLOAD_BYTES", 2*1024*1024),
		MaxFetchBytes:         ParseInt64Env("MAX_FETCH_BYTES", 20*1024*1024),
		AllowPrivateFetch:     ParseBoolEnv("ALLOW_PRIVATE_FETCH", false),
		ReferenceMaxDimension: ParseIntEnv("REFERENCE_MAX_DIMENSION", 1536),

		AITimeout:          ParseDurationEnv("AI_TIMEOUT", 120),
		EventRetentionDays: ParseIntEnv("EVENT_RETENTION_DAYS", 90),
		ShutdownTimeout:    ParseDurationEnv("SHUTDOWN_TIMEOUT", 60),
	}, nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UsesOpenAIForText reports whether text-to-image requests go to OpenAI.
func (c *Config) UsesOpenAIForText() bool {
	return c.TextToImageProvider == ProviderOpenAI
}
