package ocr

import "context"

var defaultEngine Engine = &noopEngine{}

// DefaultEngine returns the process-wide default OCR engine (Tesseract when
// its package is linked in).
func DefaultEngine() Engine {
	return defaultEngine
}

// SetDefaultEngine sets the process-wide default OCR engine.
func SetDefaultEngine(engine Engine) {
	defaultEngine = engine
}

type noopEngine struct{}

func (n noopEngine) Name() string {
	return "noop"
}

func (n noopEngine) Recognize(ctx context.Context, input Input) (Run, error) {
	return Run{InputID: input.ID, Engine: n.Name(), Variant: input.Variant}, nil
}
