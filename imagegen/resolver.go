package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"productstudio/logging"
)

// Resolver turns a SourceItem into an EncodedImage.
type Resolver struct {
	fetcher Fetcher
	logger  *logging.Logger
}

// NewResolver creates a Resolver reading URLs through fetcher.
func NewResolver(fetcher Fetcher, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Resolver{
		fetcher: fetcher,
		logger:  logger.Named("resolver"),
	}
}

// Resolve returns the item's in-memory image unchanged when it has one and
// otherwise fetches its URL exactly once. There is no retry and no cache.
// Every failure wraps ErrSourceUnavailable and names the item.
func (r *Resolver) Resolve(ctx context.Context, item SourceItem) (EncodedImage, error) {
	if item.Image != nil && !item.Image.IsZero() && item.Image.MIMEType != "" {
		return *item.Image, nil
	}

	rawURL := strings.TrimSpace(item.URL)
	if rawURL == "" {
		return EncodedImage{}, fmt.Errorf("%w: %s has neither image data nor a URL", ErrSourceUnavailable, item.Name())
	}
	if r.fetcher == nil {
		return EncodedImage{}, fmt.Errorf("%w: %s: no fetcher configured", ErrSourceUnavailable, item.Name())
	}

	data, contentType, err := r.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		r.logger.Warn("source fetch failed",
			zap.String("item", item.Name()),
			zap.Error(err))
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		return EncodedImage{}, fmt.Errorf("%s: %w", item.Name(), err)
	}
	if len(data) == 0 {
		return EncodedImage{}, fmt.Errorf("%w: %s: empty body", ErrSourceUnavailable, item.Name())
	}

	r.logger.Debug("source fetched",
		zap.String("item", item.Name()),
		zap.Int("bytes", len(data)),
		zap.String("mime_type", contentType))

	return NewEncodedImage(data, contentType), nil
}
