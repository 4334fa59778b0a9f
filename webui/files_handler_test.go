package webui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"productstudio/blobstore"
)

type mapFiles map[string][]byte

func (m mapFiles) Get(ctx context.Context, bucket, objectPath string) ([]byte, string, error) {
	if bucket == "broken" {
		return nil, "", errors.New("disk failure")
	}
	if objectPath == ".." {
		return nil, "", fmt.Errorf("%w: %q", blobstore.ErrInvalidPath, objectPath)
	}
	data, ok := m[bucket+"/"+objectPath]
	if !ok {
		return nil, "", blobstore.ErrNotFound
	}
	return data, "image/png", nil
}

func TestFilesHandler(t *testing.T) {
	files := mapFiles{"generated-images/user-1/a.png": []byte("png-bytes")}
	mux := http.NewServeMux()
	mux.Handle("GET /files/{bucket}/{path...}", NewFilesHandler(files, nil))

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/files/generated-images/user-1/a.png", http.StatusOK},
		{"/files/generated-images/user-1/missing.png", http.StatusNotFound},
		{"/files/broken/x.png", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.wantStatus {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantStatus)
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/generated-images/user-1/a.png", nil))
	if rec.Body.String() != "png-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
}

func TestFilesHandlerInvalidPath(t *testing.T) {
	h := NewFilesHandler(mapFiles{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/files/products/x", nil)
	req.SetPathValue("bucket", "products")
	req.SetPathValue("path", "..")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
