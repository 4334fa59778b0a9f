package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder is the string used to replace sensitive data
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns detect credentials and raw image payloads inside free text.
var sensitivePatterns = []*regexp.Regexp{
	// OpenAI keys, including sk-proj- keys
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9_-]{20,})`),
	// Google API keys
	regexp.MustCompile(`(AIza[a-zA-Z0-9_-]{35})`),
	// Authorization header values
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._~+/=-]{20,})`),
	regexp.MustCompile(`(?i)(authorization:\s*basic\s+[a-zA-Z0-9+/=]{8,})`),
	// bcrypt hashes
	regexp.MustCompile(`(\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53})`),
	// Inline image payloads
	regexp.MustCompile(`(?i)(data:image/[a-z0-9.+-]+;base64,[A-Za-z0-9+/=]+)`),

	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(api_key\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(key=[a-zA-Z0-9_-]{20,})`),
}

// sensitiveFieldMarkers are substrings of field or variable names whose
// values are always redacted. There is no bare TOKEN marker: token balances
// are logged everywhere.
var sensitiveFieldMarkers = []string{
	"API_KEY",
	"APIKEY",
	"PASSWORD",
	"SECRET",
	"AUTHORIZATION",
	"ACCESS_TOKEN",
	"BEARER",
	"IMAGE_BASE64",
}

// RedactSensitiveData replaces every detected credential or inline image
// payload in value with RedactedPlaceholder.
//
// Example:
//
//	RedactSensitiveData("calling with key=AIzaSy...")
//	// "calling with [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// RedactField returns RedactedPlaceholder for sensitive field names and the
// scanned value otherwise.
func RedactField(fieldName, fieldValue string) string {
	if IsSensitiveField(fieldName) {
		return RedactedPlaceholder
	}
	return RedactSensitiveData(fieldValue)
}

// IsSensitiveField reports whether the field name marks sensitive data.
//
//	IsSensitiveField("GEMINI_API_KEY")  // true
//	IsSensitiveField("tokens_debited")  // false
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)
	for _, marker := range sensitiveFieldMarkers {
		if strings.Contains(upperName, marker) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData returns true if the value matches any sensitive pattern.
func ContainsSensitiveData(value string) bool {
	if value == "" {
		return false
	}
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
