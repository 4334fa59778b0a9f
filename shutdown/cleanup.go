package shutdown

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"productstudio/core"
	"productstudio/logging"
)

// tempUploadPrefix matches the temp files the blob store writes before
// renaming them into place.
const tempUploadPrefix = ".upload-"

// CleanupTempUploads returns a shutdown function that removes half-written
// blob uploads left under root. It never fails the shutdown; problems are
// logged.
//
//	manager.Register("blob-temp-files", 50, shutdown.CleanupTempUploads(logger, cfg.BlobDir))
func CleanupTempUploads(logger *logging.Logger, root string) core.ShutdownFunc {
	return func(ctx context.Context) error {
		removed, failed := removeTempUploads(ctx, logger, root)
		if removed > 0 || failed > 0 {
			logger.Info("Temp upload cleanup complete",
				zap.Int("removed", removed),
				zap.Int("failed", failed))
		}
		return nil
	}
}

func removeTempUploads(ctx context.Context, logger *logging.Logger, root string) (removed, failed int) {
	if _, err := os.Stat(root); err != nil {
		logger.Debug("Blob root not present, nothing to clean", zap.String("directory", root))
		return 0, 0
	}

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn("Shutdown context cancelled during temp upload cleanup",
				zap.Int("removed", removed))
			return ctxErr
		}
		if err != nil || d.IsDir() || !strings.HasPrefix(d.Name(), tempUploadPrefix) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			failed++
			logger.Warn("Failed to remove temp upload", zap.String("file", path), zap.Error(err))
			return nil
		}
		removed++
		return nil
	})
	return removed, failed
}

// SyncLogger returns a shutdown function that flushes logger. Sync errors on
// terminals (EINVAL, ENOTTY) are ignored.
func SyncLogger(logger *logging.Logger) core.ShutdownFunc {
	return func(ctx context.Context) error {
		if err := logger.Sync(); err != nil && !isIgnorableSyncError(err) {
			return err
		}
		return nil
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}
