package validation

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func setValidEnv(t *testing.T, dataDir string) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-gemini-key-123456")
	t.Setenv("API_KEY", "")
	t.Setenv("TEXT_TO_IMAGE_PROVIDER", "imagen")
	t.Setenv("ADMIN_PASSWORD", "a-long-enough-password")
	t.Setenv("ADMIN_PASSWORD_HASH", "")
	t.Setenv("DATA_DIR", dataDir)
}

func TestStepStatus_String(t *testing.T) {
	tests := []struct {
		status   StepStatus
		expected string
	}{
		{StepPending, "pending"},
		{StepRunning, "running"},
		{StepPassed, "passed"},
		{StepFailed, "failed"},
		{StepWarning, "warning"},
		{StepSkipped, "skipped"},
		{StepStatus(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.status.String(); got != tt.expected {
				t.Errorf("StepStatus(%d).String() = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestValidationSuite_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	os.WriteFile(envPath, []byte("GEMINI_API_KEY=x\n"), 0644)
	setValidEnv(t, filepath.Join(dir, "data"))

	var buf bytes.Buffer
	result := NewValidationSuite().
		WithOutput(&buf).
		WithShowProgress(false).
		WithEnvPath(envPath).
		Validate()

	if !result.Success {
		t.Fatalf("Validate() should pass, first error: %v", result.GetFirstError())
	}
	if result.TotalSteps != 6 {
		t.Errorf("TotalSteps = %d, want 6", result.TotalSteps)
	}
	if buf.Len() != 0 {
		t.Error("no output expected with progress disabled")
	}
}

func TestValidationSuite_MissingEnvFileOnlyWarns(t *testing.T) {
	dir := t.TempDir()
	setValidEnv(t, filepath.Join(dir, "data"))

	result := NewValidationSuite().
		WithShowProgress(false).
		WithEnvPath(filepath.Join(dir, "missing.env")).
		Validate()

	if !result.Success {
		t.Fatalf("missing .env should not fail validation: %v", result.GetFirstError())
	}
	if result.Steps[0].Status != StepWarning {
		t.Errorf("Environment File status = %v, want warning", result.Steps[0].Status)
	}
}

func TestValidationSuite_MissingGeminiKey(t *testing.T) {
	dir := t.TempDir()
	setValidEnv(t, dir)
	t.Setenv("GEMINI_API_KEY", "")

	result := NewValidationSuite().WithShowProgress(false).Validate()

	if result.Success {
		t.Fatal("Validate() should fail without a Gemini key")
	}
	if result.Steps[1].Status != StepFailed {
		t.Errorf("Gemini Credentials status = %v, want failed", result.Steps[1].Status)
	}
}

func TestValidationSuite_FailFast(t *testing.T) {
	dir := t.TempDir()
	setValidEnv(t, dir)
	t.Setenv("GEMINI_API_KEY", "")

	result := NewValidationSuite().
		WithShowProgress(false).
		WithFailFast(true).
		Validate()

	if result.TotalSteps != 2 {
		t.Errorf("FailFast should stop after the Gemini check, got %d steps", result.TotalSteps)
	}
}

func TestValidationSuite_OpenAIRequiresKey(t *testing.T) {
	dir := t.TempDir()
	setValidEnv(t, dir)
	t.Setenv("TEXT_TO_IMAGE_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	res := NewConfigValidator().CheckTextProvider()
	if res.Valid {
		t.Error("CheckTextProvider() should fail without OPENAI_API_KEY")
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	if res := NewConfigValidator().CheckTextProvider(); !res.Valid {
		t.Errorf("CheckTextProvider() returned error: %v", res.Error)
	}
}

func TestConfigValidator_AdminHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword returned error: %v", err)
	}

	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("ADMIN_PASSWORD_HASH", string(hash))
	res := NewConfigValidator().CheckAdminCredential()
	if !res.Valid || !res.Warning {
		t.Errorf("low-cost hash should pass with warning, got %+v", res)
	}

	t.Setenv("ADMIN_PASSWORD_HASH", "not-a-hash")
	if res := NewConfigValidator().CheckAdminCredential(); res.Valid {
		t.Error("malformed hash should fail")
	}

	t.Setenv("ADMIN_PASSWORD_HASH", "")
	if res := NewConfigValidator().CheckAdminCredential(); res.Valid {
		t.Error("missing credential should fail")
	}
}

func TestValidationSuite_ProgressOutput(t *testing.T) {
	dir := t.TempDir()
	setValidEnv(t, dir)

	var buf bytes.Buffer
	NewValidationSuite().WithOutput(&buf).WithEnvPath(filepath.Join(dir, ".env")).Validate()

	output := buf.String()
	if !strings.Contains(output, "Product Studio Configuration Validation") {
		t.Error("Progress output should contain header")
	}
	if !strings.Contains(output, "Data Directory") {
		t.Error("Progress output should contain step names")
	}
}

func TestSuiteResult_Summary(t *testing.T) {
	result := SuiteResult{
		Success:     false,
		TotalSteps:  6,
		PassedSteps: 4,
		FailedSteps: 1,
		Warnings:    1,
		Duration:    2 * time.Second,
	}

	summary := result.Summary()
	for _, want := range []string{"Failed", "4/6", "1 failed", "1 warnings"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Summary() = %q, should contain %q", summary, want)
		}
	}
}

func TestCheckDirWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if err := CheckDirWritable(dir); err != nil {
		t.Fatalf("CheckDirWritable returned error: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe file should be removed, found %d entries", len(entries))
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
