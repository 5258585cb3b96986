package ocr

import (
	"context"
	"strings"

	"github.com/wudi/deckscan/imaging"
)

// Region describes a rectangular area in pixel coordinates with the origin in
// the upper-left corner of the image.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Input encapsulates a single preprocessed image submitted for OCR.
type Input struct {
	// ID is an optional caller-provided identifier that is echoed back in
	// the corresponding Run.
	ID string
	// Image is the encoded PNG payload.
	Image []byte
	// Variant names the preprocessing rendering the payload came from.
	Variant imaging.Kind
	// DPI carries the effective dots-per-inch for the image. Providers such
	// as Tesseract use this for scaling heuristics; zero means unknown.
	DPI int
	// Languages is a list of trained-data hints (e.g., "eng", "fra").
	Languages []string
	// Metadata allows callers to pass through engine-specific knobs (e.g.,
	// "tessedit_char_whitelist") without hard-coding them into the API
	// surface.
	Metadata map[string]string
}

// Span is a single recognized token with its confidence on [0, 1].
type Span struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// Line groups spans that share a baseline. Confidence is the mean of the
// span confidences.
type Line struct {
	Text       string
	Bounds     Region
	Spans      []Span
	Confidence float64
}

// Run captures one engine invocation's output for one input image.
type Run struct {
	// InputID mirrors the Input.ID that produced this run.
	InputID string
	// Engine names the provider that produced the run.
	Engine string
	// Variant mirrors the input's preprocessing kind.
	Variant imaging.Kind
	// Lines carries the recognized text in reading order.
	Lines []Line
}

// Text linearizes the run's lines.
func (r Run) Text() string {
	parts := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, "\n")
}

// Engine is the OCR provider contract: one image in, one run out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Run, error)
}
