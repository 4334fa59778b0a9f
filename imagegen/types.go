package imagegen

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Generation and resolution errors. Every error returned by the Resolver
// wraps ErrSourceUnavailable; every error returned by the Generator wraps
// exactly one of ErrContentRejected, ErrNoOutput or ErrTransport.
var (
	ErrSourceUnavailable = errors.New("imagegen: source image unavailable")
	ErrContentRejected   = errors.New("imagegen: content rejected by safety filter")
	ErrNoOutput          = errors.New("imagegen: model returned no image")
	ErrTransport         = errors.New("imagegen: generation request failed")
	ErrEmptyPrompt       = errors.New("imagegen: prompt cannot be empty")
)

// EncodedImage is an image held in memory as base64 text plus its MIME type,
// the shape both the model APIs and the persister work with.
type EncodedImage struct {
	Base64   string `json:"base64"`
	MIMEType string `json:"mime_type"`
}

// NewEncodedImage encodes raw bytes.
func NewEncodedImage(data []byte, mimeType string) EncodedImage {
	return EncodedImage{
		Base64:   base64.StdEncoding.EncodeToString(data),
		MIMEType: mimeType,
	}
}

// IsZero reports whether the image carries no data.
func (e EncodedImage) IsZero() bool {
	return e.Base64 == ""
}

// Bytes decodes the base64 payload.
func (e EncodedImage) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(e.Base64)
	if err != nil {
		return nil, fmt.Errorf("imagegen: invalid base64 image data: %w", err)
	}
	return data, nil
}

// SourceItem is one entry of a generation request: either an image already
// in memory or a URL the resolver fetches.
type SourceItem struct {
	ID    string        `json:"id"`
	Label string        `json:"label,omitempty"`
	Image *EncodedImage `json:"image,omitempty"`
	URL   string        `json:"url,omitempty"`
}

// Name returns the label used in error messages.
func (s SourceItem) Name() string {
	switch {
	case s.Label != "":
		return s.Label
	case s.ID != "":
		return s.ID
	case s.URL != "":
		return s.URL
	default:
		return "unnamed item"
	}
}
