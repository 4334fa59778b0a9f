package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestConfigError_Error(t *testing.T) {
	err := ErrInvalidValue("PORT", "0", "use a port between 1 and 65535")
	msg := err.Error()
	if !strings.Contains(msg, `Invalid value for PORT: "0"`) {
		t.Errorf("Error() = %q, missing message", msg)
	}
	if !strings.HasSuffix(msg, "use a port between 1 and 65535") {
		t.Errorf("Error() = %q, missing action", msg)
	}
}

func TestIsConfigError_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("startup: %w", ErrMissingAuth("openai"))

	cfgErr, ok := IsConfigError(wrapped)
	if !ok {
		t.Fatal("IsConfigError should unwrap")
	}
	if cfgErr.Code != ErrCodeMissingAuth {
		t.Errorf("Code = %q, want %q", cfgErr.Code, ErrCodeMissingAuth)
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Error("GetErrorCode of a plain error should be empty")
	}
}

func TestAttemptRecord(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := NewAttemptRecord(now, time.Minute)

	for i := 0; i < DefaultMaxAttempts-1; i++ {
		rec = rec.Increment(now.Add(time.Second), time.Minute)
	}
	if !rec.IsBlocked(DefaultMaxAttempts) {
		t.Errorf("Count = %d, should be blocked", rec.Count)
	}
	if got := rec.RetryAfter(now.Add(30 * time.Second)); got != 30*time.Second {
		t.Errorf("RetryAfter() = %v, want 30s", got)
	}

	rec = rec.Increment(now.Add(2*time.Minute), time.Minute)
	if rec.Count != 1 {
		t.Errorf("expired record should restart at 1, got %d", rec.Count)
	}
}
