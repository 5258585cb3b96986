package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wudi/deckscan/ocr"
)

const defaultTimeout = 15 * time.Second

// Config carries the hosted endpoint credentials. The engine stays dormant
// until both Endpoint and APIKey are set.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Engine implements ocr.Engine against a hosted vision OCR API. It serves
// as the fallback behind the local Tesseract provider.
type Engine struct {
	cfg   Config
	httpc *http.Client
}

// NewEngine constructs a vision-backed OCR engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Engine{cfg: cfg, httpc: &http.Client{Timeout: cfg.Timeout}}
}

func (e *Engine) Name() string { return "vision" }

// Ready reports whether the engine holds an endpoint and a credential.
func (e *Engine) Ready() bool { return e.cfg.Endpoint != "" && e.cfg.APIKey != "" }

type request struct {
	Image     string   `json:"image"`
	Languages []string `json:"languages,omitempty"`
}

type responseLine struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type response struct {
	Lines []responseLine `json:"lines"`
}

// Recognize posts the image and maps the response onto a run. The API
// reports line-level confidence only, so each line carries a single
// synthetic span.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Run, error) {
	if !e.Ready() {
		return ocr.Run{}, fmt.Errorf("vision engine not configured")
	}
	body, err := json.Marshal(request{
		Image:     base64.StdEncoding.EncodeToString(in.Image),
		Languages: in.Languages,
	})
	if err != nil {
		return ocr.Run{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return ocr.Run{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return ocr.Run{}, fmt.Errorf("vision request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return ocr.Run{}, fmt.Errorf("vision request: unexpected status %s", resp.Status)
	}
	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ocr.Run{}, fmt.Errorf("decode response: %w", err)
	}

	run := ocr.Run{InputID: in.ID, Engine: e.Name(), Variant: in.Variant}
	for _, l := range decoded.Lines {
		if l.Text == "" {
			continue
		}
		run.Lines = append(run.Lines, ocr.Line{
			Text:       l.Text,
			Confidence: l.Confidence,
			Spans:      []ocr.Span{{Text: l.Text, Confidence: l.Confidence}},
		})
	}
	return run, nil
}
