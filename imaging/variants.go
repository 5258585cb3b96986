package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Kind names a preprocessing variant.
type Kind string

const (
	KindSuperRes  Kind = "superres"
	KindOriginal  Kind = "original"
	KindDenoised  Kind = "denoised"
	KindBinarised Kind = "binarised"
	KindSharpened Kind = "sharpened"
)

// Variant is one preprocessed rendering of the upload, ready for an OCR
// engine: grayscale pixels plus their PNG encoding.
type Variant struct {
	Kind Kind
	PNG  []byte
}

// Options tunes variant generation.
type Options struct {
	// MaxHeight downscales taller images before preprocessing. Zero
	// disables the cap.
	MaxHeight int
	// SuperRes enables the 4x cubic upscale variant for images narrower
	// than SuperResMinWidth.
	SuperRes         bool
	SuperResMinWidth int
}

// DefaultOptions matches the pipeline defaults: a 1500px height cap with
// super-resolution off.
func DefaultOptions() Options {
	return Options{MaxHeight: 1500, SuperResMinWidth: 1200}
}

// Variants builds the preprocessed renderings OCR attempts run against, in
// attempt order. The super-resolution variant, when eligible, leads so that
// small screenshots get their best shot at an early stop; the remaining
// order is original, denoised, binarised, sharpened.
func Variants(img *Image, opts Options) ([]Variant, error) {
	gray := Grayscale(img.Src)
	if opts.MaxHeight > 0 && gray.Rect.Dy() > opts.MaxHeight {
		w := gray.Rect.Dx() * opts.MaxHeight / gray.Rect.Dy()
		if w < 1 {
			w = 1
		}
		gray = scaleGray(gray, w, opts.MaxHeight)
	}

	var out []Variant
	if opts.SuperRes && gray.Rect.Dx() < opts.SuperResMinWidth {
		up := scaleGray(gray, gray.Rect.Dx()*4, gray.Rect.Dy()*4)
		up = unsharp(up, 1.0, 1.5)
		v, err := encodeVariant(KindSuperRes, up)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	steps := []struct {
		kind  Kind
		build func() ([]byte, error)
	}{
		{KindOriginal, func() ([]byte, error) { return encodeGray(gray) }},
		{KindDenoised, func() ([]byte, error) { return encodeGray(median3(gray)) }},
		{KindBinarised, func() ([]byte, error) { return encodeGray(adaptiveThreshold(gray, 31, 5)) }},
		{KindSharpened, func() ([]byte, error) { return encodeGray(unsharp(gray, 1.0, 1.5)) }},
	}
	for _, s := range steps {
		data, err := s.build()
		if err != nil {
			return nil, fmt.Errorf("build %s variant: %w", s.kind, err)
		}
		out = append(out, Variant{Kind: s.kind, PNG: data})
	}
	return out, nil
}

func encodeVariant(kind Kind, g *image.Gray) (Variant, error) {
	data, err := encodeGray(g)
	if err != nil {
		return Variant{}, fmt.Errorf("build %s variant: %w", kind, err)
	}
	return Variant{Kind: kind, PNG: data}, nil
}

func encodeGray(g *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
