package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/deckscan/imaging"
	"github.com/wudi/deckscan/ocr"
)

func box(block, par, line int, word string, conf float64, rect image.Rectangle) gosseract.BoundingBox {
	return gosseract.BoundingBox{
		Box:        rect,
		Word:       word,
		Confidence: conf,
		BlockNum:   block,
		ParNum:     par,
		LineNum:    line,
	}
}

func TestGroupLines(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		// Out of order on purpose: grouping must follow the numbering.
		box(1, 1, 2, "4", 90, image.Rect(0, 20, 10, 30)),
		box(1, 1, 1, "4", 96, image.Rect(0, 0, 10, 10)),
		box(1, 1, 1, "Island", 92, image.Rect(12, 0, 60, 10)),
		box(1, 1, 2, "Opt", 80, image.Rect(12, 20, 40, 30)),
		box(1, 1, 2, "  ", 10, image.Rect(40, 20, 44, 30)),
	}

	lines := groupLines(boxes)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Text != "4 Island" {
		t.Fatalf("line 0 text = %q", lines[0].Text)
	}
	if lines[1].Text != "4 Opt" {
		t.Fatalf("line 1 text = %q", lines[1].Text)
	}
	if got := lines[0].Confidence; got < 0.93 || got > 0.95 {
		t.Fatalf("line 0 confidence = %f, want 0.94", got)
	}
	if len(lines[1].Spans) != 2 {
		t.Fatalf("whitespace box must be dropped, got %d spans", len(lines[1].Spans))
	}
	if lines[0].Bounds.Width != 60 {
		t.Fatalf("line 0 bounds width = %f, want union of word boxes", lines[0].Bounds.Width)
	}
	if got := lines[0].Spans[1].Confidence; got != 0.92 {
		t.Fatalf("span confidence = %f, want 0.92", got)
	}
}

func TestGroupLinesSplitsBlocks(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		box(2, 1, 1, "Sideboard", 88, image.Rect(0, 100, 70, 110)),
		box(1, 1, 1, "Deck", 90, image.Rect(0, 0, 30, 10)),
	}
	lines := groupLines(boxes)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Text != "Deck" || lines[1].Text != "Sideboard" {
		t.Fatalf("block order not respected: %q, %q", lines[0].Text, lines[1].Text)
	}
}

// ensureTesseractAvailable checks that the tesseract binary is reachable.
func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestEngineRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	img := image.NewRGBA(image.Rect(0, 0, 240, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 30),
	}
	d.DrawString("4 Island")
	d.Dot = fixed.P(10, 55)
	d.DrawString("4 Opt")

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	e := NewEngine()
	in := ocr.InputFromVariant(
		imaging.Variant{Kind: imaging.KindOriginal, PNG: buf.Bytes()},
		ocr.WithLanguages("eng"),
		ocr.WithDPI(300),
	)
	run, err := e.Recognize(context.Background(), in)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if run.Engine != "tesseract" {
		t.Fatalf("engine = %q", run.Engine)
	}
	if run.Variant != imaging.KindOriginal {
		t.Fatalf("variant = %q", run.Variant)
	}
	got := strings.ToLower(run.Text())
	if !strings.Contains(got, "island") {
		t.Fatalf("unexpected OCR output: %q", run.Text())
	}
	if len(run.Lines) == 0 {
		t.Fatal("expected structured lines")
	}
}

func TestEngineRecognizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEngine().Recognize(ctx, ocr.Input{}); err == nil {
		t.Fatal("expected context error")
	}
}
