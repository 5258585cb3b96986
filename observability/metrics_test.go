package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerServesCounters(t *testing.T) {
	OCRInvocations.WithLabelValues("tesseract", "original").Inc()
	OCRFallbacks.WithLabelValues("low_confidence").Inc()
	FingerprintHits.Inc()
	JobsTotal.WithLabelValues("completed").Inc()
	Resolutions.WithLabelValues("exact").Inc()

	done := TimeStage("ocr")
	time.Sleep(time.Millisecond)
	done()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, name := range []string{
		MetricOCRInvocations,
		MetricOCRFallbacks,
		MetricFingerprintHits,
		MetricJobsTotal,
		MetricStageDuration,
		MetricResolutions,
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(false)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("ready")

	verbose, err := NewLogger(true)
	if err != nil {
		t.Fatalf("NewLogger(verbose) error = %v", err)
	}
	if !verbose.Core().Enabled(-1) { // zapcore.DebugLevel
		t.Fatal("verbose logger must enable debug")
	}
}
