// Package imaging owns everything pixel-level in the scan pipeline: upload
// sanitisation, content fingerprinting, and the preprocessing variants the
// OCR layer consumes.
package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrTooLarge        = errors.New("image exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrBounds          = errors.New("image dimensions out of bounds")
	ErrCorrupt         = errors.New("image data corrupt")
)

// Limits bounds what an uploaded image may look like before any decoding
// work is attempted.
type Limits struct {
	// MaxBytes caps the encoded payload size.
	MaxBytes int64
	// MaxDimension caps width and height individually.
	MaxDimension int
	// MinDimension rejects images too small to carry a readable decklist.
	MinDimension int
	// MaxPixels bounds the total pixel count to keep decode buffers sane
	// when headers lie about image sizes.
	MaxPixels int64
}

// DefaultLimits returns the standard upload limits: 10 MiB payloads and
// 4096x4096 pixels.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:     10 << 20,
		MaxDimension: 4096,
		MinDimension: 32,
		MaxPixels:    4096 * 4096,
	}
}

// Image is a sanitised upload: decoded pixels plus the canonical PNG
// re-encoding that all downstream stages (and the fingerprint) work from.
type Image struct {
	PNG         []byte
	Src         image.Image
	ContentType string
	Width       int
	Height      int
	// Fingerprint is the hex SHA-256 of the canonical PNG bytes. Identical
	// uploads produce identical fingerprints regardless of their original
	// container format's metadata.
	Fingerprint string
}

// Sniff identifies the payload's content type from its magic bytes. Only the
// formats the pipeline accepts are recognised.
func Sniff(data []byte) (string, error) {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg", nil
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png", nil
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "image/gif", nil
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp", nil
	case len(data) >= 2 && data[0] == 'B' && data[1] == 'M':
		return "image/bmp", nil
	case len(data) >= 4 && (bytes.Equal(data[:4], []byte{'I', 'I', 0x2A, 0x00}) || bytes.Equal(data[:4], []byte{'M', 'M', 0x00, 0x2A})):
		return "image/tiff", nil
	}
	return "", ErrUnsupportedType
}

// Sanitize validates an upload against limits, decodes it, and re-encodes it
// as PNG. Re-encoding drops every metadata segment of the original container
// so the canonical bytes carry pixels only.
func Sanitize(data []byte, limits Limits) (*Image, error) {
	if limits.MaxBytes > 0 && int64(len(data)) > limits.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrCorrupt)
	}
	contentType, err := Sniff(data)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := validateBounds(cfg.Width, cfg.Height, limits); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, fmt.Errorf("re-encode: %w", err)
	}
	canonical := buf.Bytes()
	return &Image{
		PNG:         canonical,
		Src:         src,
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Fingerprint: Fingerprint(canonical),
	}, nil
}

func validateBounds(width, height int, limits Limits) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrBounds, width, height)
	}
	if limits.MinDimension > 0 && (width < limits.MinDimension || height < limits.MinDimension) {
		return fmt.Errorf("%w: %dx%d below minimum %d", ErrBounds, width, height, limits.MinDimension)
	}
	if limits.MaxDimension > 0 && (width > limits.MaxDimension || height > limits.MaxDimension) {
		return fmt.Errorf("%w: %dx%d above maximum %d", ErrBounds, width, height, limits.MaxDimension)
	}
	if limits.MaxPixels > 0 && int64(width)*int64(height) > limits.MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds pixel budget", ErrBounds, width, height)
	}
	return nil
}

// Fingerprint returns the hex SHA-256 of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
