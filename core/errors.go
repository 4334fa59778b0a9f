package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeEnvFileMissing  = "ENV_FILE_MISSING"
	ErrCodeMissingAuth     = "MISSING_AUTH"
	ErrCodeMissingConfig   = "MISSING_CONFIG"
	ErrCodeInvalidValue    = "INVALID_VALUE"
	ErrCodeDirNotWritable  = "DIR_NOT_WRITABLE"
	ErrCodeInvalidPassword = "INVALID_ADMIN_CREDENTIAL"
)

// Exit codes for the application.
// Signal-based exits follow the 128 + signal number convention.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	ExitCodeSIGINT  = 130
	ExitCodeSIGTERM = 143
)

// ErrEnvFileMissing returns an error for missing .env file
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Copy example.env to .env or export the variables in the service environment",
	}
}

// ErrMissingAuth returns an error for missing provider credentials
func ErrMissingAuth(service string) *ConfigError {
	var action string
	switch service {
	case "gemini":
		action = "Set GEMINI_API_KEY to a Google AI Studio key"
	case "openai":
		action = "Set OPENAI_API_KEY or switch TEXT_TO_IMAGE_PROVIDER back to imagen"
	default:
		action = fmt.Sprintf("Set the required API key for %s", service)
	}
	return &ConfigError{
		Code:    ErrCodeMissingAuth,
		Message: fmt.Sprintf("Missing authentication credentials for %s", service),
		Action:  action,
	}
}

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  "Set the variables in your .env file or the service environment",
	}
}

// ErrInvalidValue returns an error for a variable that is set but unusable
func ErrInvalidValue(varName, value, action string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid value for %s: %q", varName, value),
		Action:  action,
	}
}

// ErrDirNotWritable returns an error for a data directory the service cannot write to
func ErrDirNotWritable(dir string, reason error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeDirNotWritable,
		Message: fmt.Sprintf("Directory %s is not writable: %v", dir, reason),
		Action:  "Point DATA_DIR at a directory owned by the service user",
	}
}

// ErrInvalidAdminCredential returns an error for a malformed ADMIN_PASSWORD_HASH
func ErrInvalidAdminCredential(reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidPassword,
		Message: fmt.Sprintf("Admin credential rejected: %s", reason),
		Action:  "Set ADMIN_PASSWORD_HASH to a bcrypt hash (cost 10 or more) or use ADMIN_PASSWORD",
	}
}

// IsConfigError checks if an error is (or wraps) a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
