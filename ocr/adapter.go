package ocr

import (
	"strconv"

	"github.com/wudi/deckscan/imaging"
)

// InputOption mutates an OCR input generated from a preprocessing variant.
type InputOption func(*Input)

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithDPI overrides the DPI value on the OCR input.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithMetadata sets provider-specific metadata for the input.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			in.Metadata[k] = v
		}
	}
}

// WithTesseractPSM overrides the Tesseract page segmentation mode for one
// input. The engine default (single uniform block) suits decklist
// screenshots; callers working with odd layouts can pick another mode.
func WithTesseractPSM(mode int) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata["tessedit_pageseg_mode"] = strconv.Itoa(mode)
	}
}

// InputFromVariant converts a preprocessing variant into an OCR input. The
// generated ID is the variant kind, which keeps runs correlatable with the
// rendering that produced them.
func InputFromVariant(v imaging.Variant, opts ...InputOption) Input {
	in := Input{
		ID:      string(v.Kind),
		Image:   v.PNG,
		Variant: v.Kind,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in
}
