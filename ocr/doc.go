package ocr

// Package ocr defines the abstraction layer for plugging OCR engines (local
// Tesseract or remote vision services) into the decklist scan pipeline, and
// the strategy that drives them across preprocessing variants. The
// interfaces are intentionally small and transport-agnostic so engines can
// be backed by native libraries or remote APIs without leaking
// provider-specific concerns into callers.
