// Package job implements the scan lifecycle: content-addressed submission
// with idempotent deduplication, the queued to processing to completed or
// failed state machine, and the worker pool that drives the OCR pipeline.
package job

import (
	"time"

	"github.com/wudi/deckscan/deck"
	"github.com/wudi/deckscan/ocr"
)

// State is a job's position in the lifecycle. Transitions out of
// StateProcessing are one-shot and irreversible.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Timings records per-stage wall clock in milliseconds.
type Timings map[string]int64

// Result is the payload of a completed job.
type Result struct {
	Deck *deck.Deck `json:"deck"`
	// Parsed preserves the parser's view before resolution, candidate
	// suggestions included.
	Parsed []deck.ParsedLine `json:"parsed,omitempty"`
	// OCRLines are the winning run's recognized lines with confidences.
	OCRLines       []ocr.Line `json:"ocr_lines,omitempty"`
	MeanConfidence float64    `json:"mean_confidence"`
	EngineRuns     int        `json:"engine_runs"`
	EarlyStop      bool       `json:"early_stop"`
	FallbackUsed   bool       `json:"fallback_used"`
	FallbackReason string     `json:"fallback_reason,omitempty"`
	Variant        string     `json:"variant"`
	Timings        Timings    `json:"timings_ms"`
	TraceID        string     `json:"trace_id"`
}

// Job is the persisted record of one scan. It is mutated only by its owning
// worker; status pollers observe consistent snapshots via the store.
type Job struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
	State       State  `json:"state"`
	// Progress is monotonic within processing and reaches 100 exactly
	// once, on completion.
	Progress int    `json:"progress"`
	Stage    string `json:"stage,omitempty"`
	// Revision increments on every store write, supporting optimistic
	// reads.
	Revision     int64     `json:"revision"`
	SubmittedAt  time.Time `json:"submitted_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Result       *Result   `json:"result,omitempty"`
	ErrorCode    deck.Code `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// New returns a queued job for the given fingerprint.
func New(id, fingerprint string, now time.Time) *Job {
	return &Job{
		ID:          id,
		Fingerprint: fingerprint,
		State:       StateQueued,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

// Terminal reports whether the job has left processing for good.
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}
