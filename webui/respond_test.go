package webui

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"productstudio/studio"
)

func TestStatusForKind(t *testing.T) {
	tests := map[studio.Kind]int{
		studio.KindReservationFailed: http.StatusPaymentRequired,
		studio.KindContentRejected:   http.StatusUnprocessableEntity,
		studio.KindSourceUnavailable: http.StatusBadGateway,
		studio.KindGenerationFailed:  http.StatusBadGateway,
		studio.KindStorageError:      http.StatusInternalServerError,
		studio.KindMetadataError:     http.StatusInternalServerError,
		studio.KindNoIdentity:        http.StatusUnauthorized,
		studio.KindInvalidRequest:    http.StatusBadRequest,
		studio.KindBusy:              http.StatusConflict,
		studio.KindUnavailable:       http.StatusServiceUnavailable,
	}
	for kind, want := range tests {
		if got := StatusForKind(kind); got != want {
			t.Errorf("StatusForKind(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestWriteStudioError(t *testing.T) {
	rec := httptest.NewRecorder()
	err := fmt.Errorf("batch: %w", &studio.Error{
		Kind:     studio.KindGenerationFailed,
		Message:  "image generation failed",
		Refunded: true,
	})
	writeStudioError(rec, err)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != string(studio.KindGenerationFailed) || !body.Refunded {
		t.Errorf("unexpected body: %+v", body)
	}
	if !strings.Contains(body.Message, studio.RefundNotice) {
		t.Errorf("message %q should carry the refund notice", body.Message)
	}
}

func TestWriteStudioErrorUnknown(t *testing.T) {
	rec := httptest.NewRecorder()
	writeStudioError(rec, errors.New("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var v struct {
		Prompt string `json:"prompt"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"x","extra":1}`))
	if err := decodeJSON(httptest.NewRecorder(), req, 1024, &v); err == nil {
		t.Error("expected an error for an unknown field")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"`+strings.Repeat("a", 2048)+`"}`))
	if err := decodeJSON(httptest.NewRecorder(), req, 1024, &v); err == nil {
		t.Error("expected an error for an oversized body")
	}
}
