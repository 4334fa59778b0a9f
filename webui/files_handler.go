package webui

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"productstudio/blobstore"
	"productstudio/logging"
)

// FileSource reads public blobs. *blobstore.Local implements it.
type FileSource interface {
	Get(ctx context.Context, bucket, objectPath string) ([]byte, string, error)
}

// FilesHandler serves GET /files/{bucket}/{path...}. Object names carry a
// random id, so responses are cached for a long time.
type FilesHandler struct {
	source FileSource
	logger *logging.Logger
}

// NewFilesHandler creates a FilesHandler.
func NewFilesHandler(source FileSource, logger *logging.Logger) *FilesHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FilesHandler{source: source, logger: logger.Named("files")}
}

func (h *FilesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	objectPath := r.PathValue("path")

	data, contentType, err := h.source.Get(r.Context(), bucket, objectPath)
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, blobstore.ErrInvalidPath):
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("failed to read blob", zap.String("bucket", bucket), zap.String("path", objectPath), zap.Error(err))
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(data)
	}
}
