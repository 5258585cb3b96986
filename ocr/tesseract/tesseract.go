package tesseract

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/wudi/deckscan/ocr"
)

func init() {
	ocr.SetDefaultEngine(NewEngine())
}

// defaultPageSegMode treats the image as a single uniform block of text,
// which fits decklist screenshots better than full page analysis.
const defaultPageSegMode = "6"

// Engine implements ocr.Engine using the gosseract client as the primary
// OCR provider.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// NewEngine constructs a Tesseract-backed OCR engine.
func NewEngine() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image input.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Run, error) {
	select {
	case <-ctx.Done():
		return ocr.Run{}, ctx.Err()
	default:
	}
	c := e.clientFactory()
	defer c.Close()
	return e.recognizeWithClient(c, in)
}

func (e *Engine) recognizeWithClient(c *gosseract.Client, in ocr.Input) (ocr.Run, error) {
	if err := c.SetImageFromBytes(in.Image); err != nil {
		return ocr.Run{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Run{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return ocr.Run{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	if _, ok := in.Metadata["tessedit_pageseg_mode"]; !ok {
		if err := c.SetVariable(gosseract.SettableVariable("tessedit_pageseg_mode"), defaultPageSegMode); err != nil {
			return ocr.Run{}, fmt.Errorf("set page segmentation: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Run{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}

	run := ocr.Run{
		InputID: in.ID,
		Engine:  e.Name(),
		Variant: in.Variant,
	}

	boxes, err := c.GetBoundingBoxesVerbose()
	if err == nil && len(boxes) > 0 {
		run.Lines = groupLines(boxes)
		return run, nil
	}

	// Degenerate images can leave the result iterator empty; fall back to
	// plain text with unknown confidence.
	text, err := c.Text()
	if err != nil {
		return ocr.Run{}, fmt.Errorf("recognize text: %w", err)
	}
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		run.Lines = append(run.Lines, ocr.Line{Text: raw})
	}
	return run, nil
}

// lineKey identifies a text line in Tesseract's page layout.
type lineKey struct {
	block, par, line int
}

// groupLines reassembles word boxes into text lines following Tesseract's
// block, paragraph and line numbering.
func groupLines(boxes []gosseract.BoundingBox) []ocr.Line {
	order := make([]lineKey, 0)
	grouped := make(map[lineKey][]gosseract.BoundingBox)
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		k := lineKey{block: b.BlockNum, par: b.ParNum, line: b.LineNum}
		if _, seen := grouped[k]; !seen {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], b)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.block != b.block {
			return a.block < b.block
		}
		if a.par != b.par {
			return a.par < b.par
		}
		return a.line < b.line
	})

	lines := make([]ocr.Line, 0, len(order))
	for _, k := range order {
		words := grouped[k]
		spans := make([]ocr.Span, 0, len(words))
		texts := make([]string, 0, len(words))
		var sum float64
		for _, w := range words {
			conf := w.Confidence / 100.0
			spans = append(spans, ocr.Span{
				Text:       strings.TrimSpace(w.Word),
				Bounds:     regionFromRect(w.Box),
				Confidence: conf,
			})
			texts = append(texts, strings.TrimSpace(w.Word))
			sum += conf
		}
		lines = append(lines, ocr.Line{
			Text:       strings.Join(texts, " "),
			Bounds:     mergeBounds(spans),
			Spans:      spans,
			Confidence: sum / float64(len(spans)),
		})
	}
	return lines
}

func regionFromRect(r image.Rectangle) ocr.Region {
	return ocr.Region{
		X:      float64(r.Min.X),
		Y:      float64(r.Min.Y),
		Width:  float64(r.Dx()),
		Height: float64(r.Dy()),
	}
}

// mergeBounds returns the union of the span regions.
func mergeBounds(spans []ocr.Span) ocr.Region {
	if len(spans) == 0 {
		return ocr.Region{}
	}
	minX, minY := math.MaxFloat64, math.MaxFloat64
	var maxX, maxY float64
	for _, s := range spans {
		minX = math.Min(minX, s.Bounds.X)
		minY = math.Min(minY, s.Bounds.Y)
		maxX = math.Max(maxX, s.Bounds.X+s.Bounds.Width)
		maxY = math.Max(maxY, s.Bounds.Y+s.Bounds.Height)
	}
	return ocr.Region{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
