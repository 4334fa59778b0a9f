// Package imaging decodes, bounds and re-encodes product and reference
// images before they are stored or sent to a model.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Image errors
var (
	ErrEmptyImage        = errors.New("imaging: empty image data")
	ErrInvalidImage      = errors.New("imaging: invalid image data")
	ErrInvalidDimensions = errors.New("imaging: invalid dimensions")
)

// DefaultJPEGQuality is used when a bounded image is re-encoded as JPEG.
const DefaultJPEGQuality = 90

// Info describes an encoded image without decoding its pixels.
type Info struct {
	Format   string // "png", "jpeg", "gif", "webp" or "bmp"
	MIMEType string
	Width    int
	Height   int
}

// Inspect reads only the image header.
func Inspect(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrEmptyImage
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, ErrInvalidDimensions
	}
	return Info{
		Format:   format,
		MIMEType: "image/" + format,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// Decode decodes PNG, JPEG, GIF, WebP or BMP data.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, format, nil
}

// Bound scales img down so its longest edge is at most maxDim, keeping the
// aspect ratio. Images already within bounds are returned unchanged.
func Bound(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	longest := max(width, height)
	if maxDim <= 0 || longest <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(longest)
	newWidth := max(1, int(float64(width)*scale))
	newHeight := max(1, int(float64(height)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// Encode writes img as PNG when format is "png" (keeping transparency) and
// as JPEG otherwise. It returns the bytes and their MIME type.
func Encode(img image.Image, format string) ([]byte, string, error) {
	buf := new(bytes.Buffer)

	if format == "png" {
		if err := png.Encode(buf, img); err != nil {
			return nil, "", fmt.Errorf("imaging: png encode: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	}

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: DefaultJPEGQuality}); err != nil {
		return nil, "", fmt.Errorf("imaging: jpeg encode: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// BoundEncoded returns data unchanged when its longest edge is within
// maxDim. Larger images are decoded, scaled and re-encoded; WebP, GIF and
// BMP sources come back as JPEG.
func BoundEncoded(data []byte, mimeType string, maxDim int) ([]byte, string, error) {
	info, err := Inspect(data)
	if err != nil {
		return nil, "", err
	}
	if maxDim <= 0 || max(info.Width, info.Height) <= maxDim {
		return data, mimeType, nil
	}

	img, format, err := Decode(data)
	if err != nil {
		return nil, "", err
	}
	return Encode(Bound(img, maxDim), format)
}

// CompressToJPEG re-encodes any supported image as JPEG at quality (1-100).
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("imaging: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
