package ocr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/deckscan/deck"
	"github.com/wudi/deckscan/imaging"
	"github.com/wudi/deckscan/observability"
)

// FallbackReason records why the fallback trigger fired.
type FallbackReason string

const (
	FallbackNone          FallbackReason = ""
	FallbackLowConfidence FallbackReason = "low_confidence"
	FallbackFewLines      FallbackReason = "min_lines"
	FallbackPrimaryError  FallbackReason = "primary_error"
)

// StrategyConfig tunes run selection and fallback gating.
type StrategyConfig struct {
	// EarlyStopConfidence stops the variant loop as soon as a run's mean
	// confidence reaches it.
	EarlyStopConfidence float64
	// MinSpanConfidence excludes low-confidence spans from both the mean
	// and the text handed to the parser.
	MinSpanConfidence float64
	// MinConfidence is the floor under which a best run is considered low
	// confidence and the fallback gate opens.
	MinConfidence float64
	// MinLines opens the fallback gate when the best run parsed fewer
	// quantity lines than this.
	MinLines int
	// FallbackBudgetPerMinute caps secondary-engine calls over a sliding
	// one-minute window. Zero means no cap.
	FallbackBudgetPerMinute int
	// Languages and DPI are forwarded to every engine input.
	Languages []string
	DPI       int
}

// DefaultStrategyConfig returns the standard thresholds.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		EarlyStopConfidence:     0.85,
		MinSpanConfidence:       0.30,
		MinConfidence:           0.62,
		MinLines:                10,
		FallbackBudgetPerMinute: 10,
		Languages:               []string{"eng", "fra", "deu", "spa"},
	}
}

// Selection is the strategy's verdict: the winning run plus the measurements
// that picked it.
type Selection struct {
	Run Run
	// Texts are the winning run's line texts after span filtering, ready
	// for the deck parser.
	Texts []string
	// MeanConfidence averages span confidences at or above the span floor.
	MeanConfidence float64
	// CardLines counts Texts entries that parse as quantity lines.
	CardLines int
	// Invocations counts engine calls made, primary and secondary.
	Invocations int
	EarlyStop   bool
	// FallbackReason is set whenever the fallback trigger fired, even if
	// the budget suppressed the call; UsedFallback additionally means the
	// secondary's run was adopted.
	FallbackReason FallbackReason
	UsedFallback   bool
	// LowConfidence marks a winner that stayed under MinConfidence, which
	// surfaces as an OCR_LOW_CONF advisory on the deck.
	LowConfidence bool
}

// Strategy drives OCR across preprocessing variants: it stops early on a
// high-confidence run, otherwise keeps the run with the most parseable
// quantity lines (mean confidence breaking ties), and consults the secondary
// engine when the primary's best stays weak. A secondary run that yields any
// text replaces the primary selection.
type Strategy struct {
	primary   Engine
	secondary Engine
	cfg       StrategyConfig
	logger    *zap.Logger

	// score counts parseable quantity lines; the default is the deck
	// parser's counter.
	score func(lines []string) int

	mu     sync.Mutex
	window []time.Time
	now    func() time.Time
}

// NewStrategy builds a strategy over the primary engine. secondary may be
// nil, which disables fallback.
func NewStrategy(primary, secondary Engine, cfg StrategyConfig, logger *zap.Logger) *Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{
		primary:   primary,
		secondary: secondary,
		cfg:       cfg,
		logger:    logger,
		score:     deck.CountCardLines,
		now:       time.Now,
	}
}

// Recognize runs the strategy over the variants in order.
func (s *Strategy) Recognize(ctx context.Context, variants []imaging.Variant) (Selection, error) {
	if len(variants) == 0 {
		return Selection{}, fmt.Errorf("no variants to recognize")
	}

	opts := []InputOption{WithLanguages(s.cfg.Languages...)}
	if s.cfg.DPI > 0 {
		opts = append(opts, WithDPI(s.cfg.DPI))
	}

	var (
		best        Selection
		haveBest    bool
		invocations int
		lastErr     error
	)
	for _, v := range variants {
		if err := ctx.Err(); err != nil {
			return Selection{}, err
		}
		run, err := s.primary.Recognize(ctx, InputFromVariant(v, opts...))
		invocations++
		observability.OCRInvocations.WithLabelValues(s.primary.Name(), string(v.Kind)).Inc()
		if err != nil {
			lastErr = err
			s.logger.Warn("ocr attempt failed",
				zap.String("engine", s.primary.Name()),
				zap.String("variant", string(v.Kind)),
				zap.Error(err))
			continue
		}
		sel := s.evaluate(run)
		if sel.MeanConfidence >= s.cfg.EarlyStopConfidence {
			sel.EarlyStop = true
			sel.Invocations = invocations
			return sel, nil
		}
		if !haveBest || betterRun(sel, best) {
			best, haveBest = sel, true
		}
	}

	reason := FallbackNone
	switch {
	case !haveBest:
		reason = FallbackPrimaryError
	case best.MeanConfidence < s.cfg.MinConfidence:
		reason = FallbackLowConfidence
	case best.CardLines < s.cfg.MinLines:
		reason = FallbackFewLines
	}

	if reason != FallbackNone && s.secondary != nil {
		// The trigger is recorded even when the budget, a call failure,
		// or an empty secondary run keeps the primary selection.
		if haveBest {
			best.FallbackReason = reason
		}
		if s.allowFallback() {
			observability.OCRFallbacks.WithLabelValues(string(reason)).Inc()
			fv := fallbackVariant(variants)
			run, err := s.secondary.Recognize(ctx, InputFromVariant(fv, opts...))
			invocations++
			observability.OCRInvocations.WithLabelValues(s.secondary.Name(), string(fv.Kind)).Inc()
			if err != nil {
				lastErr = err
				s.logger.Warn("fallback ocr failed",
					zap.String("engine", s.secondary.Name()),
					zap.Error(err))
			} else if sel := s.evaluate(run); len(sel.Texts) > 0 {
				sel.FallbackReason = reason
				sel.UsedFallback = true
				best, haveBest = sel, true
			}
		} else {
			s.logger.Debug("fallback budget exhausted", zap.String("reason", string(reason)))
		}
	}

	if !haveBest {
		if lastErr != nil {
			return Selection{}, fmt.Errorf("all ocr attempts failed: %w", lastErr)
		}
		return Selection{}, fmt.Errorf("all ocr attempts failed")
	}
	best.Invocations = invocations
	best.LowConfidence = best.MeanConfidence < s.cfg.MinConfidence
	return best, nil
}

// evaluate measures a run: spans under the floor drop out of both the mean
// and the parser text.
func (s *Strategy) evaluate(run Run) Selection {
	var (
		texts []string
		sum   float64
		n     int
	)
	for _, line := range run.Lines {
		kept := 0
		for _, sp := range line.Spans {
			if sp.Confidence < s.cfg.MinSpanConfidence {
				continue
			}
			sum += sp.Confidence
			n++
			kept++
		}
		switch {
		case len(line.Spans) == 0 && line.Text != "":
			// Engines without span detail still contribute text.
			texts = append(texts, line.Text)
		case kept > 0:
			texts = append(texts, line.Text)
		}
	}
	mean := 0.0
	if n > 0 {
		mean = sum / float64(n)
	}
	return Selection{
		Run:            run,
		Texts:          texts,
		MeanConfidence: mean,
		CardLines:      s.score(texts),
	}
}

// betterRun orders selections by parseable line count, then mean confidence.
func betterRun(a, b Selection) bool {
	if a.CardLines != b.CardLines {
		return a.CardLines > b.CardLines
	}
	return a.MeanConfidence > b.MeanConfidence
}

// fallbackVariant picks the image the secondary engine sees: the plain
// original rendering when present, else the first variant.
func fallbackVariant(variants []imaging.Variant) imaging.Variant {
	for _, v := range variants {
		if v.Kind == imaging.KindOriginal {
			return v
		}
	}
	return variants[0]
}

// allowFallback enforces the sliding-window budget on secondary calls.
func (s *Strategy) allowFallback() bool {
	if s.cfg.FallbackBudgetPerMinute <= 0 {
		return true
	}
	now := s.now()
	cutoff := now.Add(-time.Minute)
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.window[:0]
	for _, t := range s.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.window = kept
	if len(s.window) >= s.cfg.FallbackBudgetPerMinute {
		return false
	}
	s.window = append(s.window, now)
	return true
}
