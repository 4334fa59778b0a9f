package core

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"1", false, true},
		{"off", true, false},
		{"0", true, false},
		{"maybe", true, true},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := ParseBoolEnv("TEST_BOOL", tt.def); got != tt.want {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
			}
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 30 * time.Second},
		{"45", 45 * time.Second},
		{"2m", 2 * time.Minute},
		{"-5", 30 * time.Second},
		{"soon", 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if got := ParseDurationEnv("TEST_DURATION", 30); got != tt.want {
				t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseInt64Env(t *testing.T) {
	t.Setenv("TEST_INT64", " 2097152 ")
	if got := ParseInt64Env("TEST_INT64", 1); got != 2097152 {
		t.Errorf("ParseInt64Env() = %d, want 2097152", got)
	}
	t.Setenv("TEST_INT64", "lots")
	if got := ParseInt64Env("TEST_INT64", 7); got != 7 {
		t.Errorf("ParseInt64Env() = %d, want default 7", got)
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_STRING", "   ")
	if got := GetEnvOrDefault("TEST_STRING", "fallback"); got != "fallback" {
		t.Errorf("blank value should use default, got %q", got)
	}
}
