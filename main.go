package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"productstudio/core"
	"productstudio/core/validation"
	"productstudio/logging"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	if HandleServiceCommand(os.Args) {
		return
	}

	os.Exit(runForeground())
}

// runForeground serves until SIGINT or SIGTERM and returns the exit code.
func runForeground() int {
	app, logger, code := bootstrap(context.Background())
	if app == nil {
		return code
	}

	if err := app.Run(true); err != nil {
		logger.Error("Product studio stopped with errors", zap.Error(err))
		return core.ExitCodeError
	}
	logger.Info("Goodbye!")
	return app.ExitCode()
}

// bootstrap creates the logger, runs the startup checks, loads the
// configuration and builds the App. On failure app is nil and code holds
// the exit code.
func bootstrap(ctx context.Context) (app *App, logger *logging.Logger, code int) {
	isDevelopment := os.Getenv("DEV_MODE") == "true"

	logger, err := logging.NewLogger(isDevelopment, logFilePath())
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		return nil, nil, core.ExitCodeError
	}

	if code := runStartupValidation(logger); code != core.ExitCodeSuccess {
		logger.Sync()
		return nil, logger, code
	}

	config, err := core.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		logger.Sync()
		return nil, logger, core.ExitCodeError
	}

	logger.Info("Configuration loaded",
		zap.String("listen_addr", config.ListenAddr()),
		zap.String("public_base_url", config.PublicBaseURL),
		zap.String("text_to_image_provider", config.TextToImageProvider),
		zap.String("image_model", config.GeminiImageModel),
		zap.String("data_dir", config.DataDir),
		zap.Int64("default_token_balance", config.DefaultTokenBalance),
		zap.Int64("cost_first_item", config.Costs.FirstItem),
		zap.Int64("cost_extra_item", config.Costs.ExtraItem),
		zap.Int64("cost_text_only", config.Costs.TextOnly),
		zap.Int64("cost_edit", config.Costs.Edit),
		zap.Int("max_products", config.MaxProducts),
		zap.Duration("ai_timeout", config.AITimeout),
		zap.Bool("auto_provision", config.AutoProvisionProfiles),
		zap.Bool("dev_mode", isDevelopment),
	)

	app, err = NewApp(ctx, config, logger)
	if err != nil {
		logger.Error("Failed to start product studio", zap.Error(err))
		logger.Sync()
		return nil, logger, core.ExitCodeError
	}
	return app, logger, core.ExitCodeSuccess
}

// logFilePath returns LOG_FILE or app.log.
func logFilePath() string {
	return core.GetEnvOrDefault("LOG_FILE", "app.log")
}

// runStartupValidation runs the configuration checks and returns
// ExitCodeSuccess when all of them pass.
func runStartupValidation(logger *logging.Logger) int {
	logger.Info("Starting startup validation...")

	result := validation.NewValidationSuite().
		WithShowProgress(true).
		Validate()

	if !result.Success {
		logger.Error("Configuration validation failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)
		for _, step := range result.Steps {
			if step.Status == validation.StepFailed {
				logger.Error("Validation step failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}
		return core.ExitCodeError
	}

	logger.Info("Configuration validation passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Int("warnings", result.Warnings),
		zap.Duration("duration", result.Duration),
	)
	return core.ExitCodeSuccess
}
