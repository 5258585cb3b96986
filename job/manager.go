package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/deckscan/deck"
	"github.com/wudi/deckscan/export"
	"github.com/wudi/deckscan/imaging"
	"github.com/wudi/deckscan/observability"
	"github.com/wudi/deckscan/ocr"
	"github.com/wudi/deckscan/resolve"
)

// Progress checkpoints, one per pipeline stage boundary.
const (
	progressClaimed   = 10
	progressVariants  = 25
	progressRecognize = 45
	progressParsed    = 70
	progressResolved  = 90
	progressDone      = 100
)

// Pipeline bundles the stages a worker drives for one job.
type Pipeline struct {
	Limits   imaging.Limits
	Imaging  imaging.Options
	Strategy *ocr.Strategy
	Resolver *resolve.Resolver
	// AlwaysVerify forces every parsed line through the resolver. When
	// false and no resolver is configured, parsed lines pass through
	// without identities.
	AlwaysVerify bool
}

// Config sets pool sizes and lifecycle durations.
type Config struct {
	Workers        int
	QueueDepth     int
	JobTTL         time.Duration
	FingerprintTTL time.Duration
	JobDeadline    time.Duration
}

// DefaultConfig returns conservative pool and retention settings.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		QueueDepth:     64,
		JobTTL:         time.Hour,
		FingerprintTTL: 7 * 24 * time.Hour,
		JobDeadline:    30 * time.Second,
	}
}

type task struct {
	id  string
	img *imaging.Image
}

// Manager owns submission, the job queue, and the workers.
//
// Sanitized images ride the queue in memory only; they are never persisted
// and are dropped when the job leaves processing.
type Manager struct {
	store    Store
	pipeline Pipeline
	cfg      Config
	logger   *zap.Logger
	queue    chan task
	now      func() time.Time
}

// NewManager wires a manager over the store and pipeline.
func NewManager(store Store, p Pipeline, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 1
	}
	return &Manager{
		store:    store,
		pipeline: p,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan task, cfg.QueueDepth),
		now:      time.Now,
	}
}

// Run consumes the queue with the configured number of workers until ctx
// is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < m.cfg.Workers; i++ {
		eg.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case t := <-m.queue:
					m.runJob(ctx, t)
				}
			}
		})
	}
	return eg.Wait()
}

// Submit sanitises the image, deduplicates by fingerprint, and enqueues a
// new job. cached is true when an existing job already answers for these
// bytes.
func (m *Manager) Submit(ctx context.Context, imageBytes []byte) (jobID string, cached bool, err error) {
	img, err := imaging.Sanitize(imageBytes, m.pipeline.Limits)
	if err != nil {
		return "", false, deck.Wrap(deck.CodeBadImage, err, "image rejected")
	}
	fp := img.Fingerprint

	if existing, err := m.store.LookupFingerprint(ctx, fp); err == nil {
		if _, err := m.store.LoadJob(ctx, existing); err == nil {
			observability.FingerprintHits.Inc()
			return existing, true, nil
		}
		// Tombstone: the claim outlived its job. Clear it and recompute.
		if err := m.store.ReleaseFingerprint(ctx, fp, existing); err != nil {
			m.logger.Warn("release dangling fingerprint", zap.String("fingerprint", fp), zap.Error(err))
		}
	}

	id := uuid.NewString()
	winner, won, err := m.store.ClaimFingerprint(ctx, fp, id, m.cfg.FingerprintTTL)
	if err != nil {
		return "", false, deck.Wrap(deck.CodeInternal, err, "fingerprint claim failed")
	}
	if !won {
		observability.FingerprintHits.Inc()
		return winner, true, nil
	}

	j := New(id, fp, m.now())
	if err := m.save(ctx, j); err != nil {
		m.releaseClaim(ctx, fp, id)
		return "", false, deck.Wrap(deck.CodeInternal, err, "job record write failed")
	}

	select {
	case m.queue <- task{id: id, img: img}:
	default:
		m.releaseClaim(ctx, fp, id)
		j.State = StateFailed
		j.ErrorCode = deck.CodeRateLimit
		j.ErrorMessage = "queue full"
		if err := m.save(ctx, j); err != nil {
			m.logger.Warn("record rejected job", zap.String("job", id), zap.Error(err))
		}
		observability.JobsTotal.WithLabelValues("rejected").Inc()
		return "", false, deck.E(deck.CodeRateLimit, "queue full, retry later")
	}

	return id, false, nil
}

// Status returns a snapshot of the job.
func (m *Manager) Status(ctx context.Context, id string) (*Job, error) {
	return m.store.LoadJob(ctx, id)
}

// Export renders a completed job's deck in the given format.
func (m *Manager) Export(ctx context.Context, id string, format export.Format) (string, error) {
	j, err := m.store.LoadJob(ctx, id)
	if err != nil {
		return "", err
	}
	if j.State != StateCompleted || j.Result == nil || j.Result.Deck == nil {
		return "", deck.E(deck.CodeExportInvalid, "job %s is %s, not completed", id, j.State)
	}
	return export.Render(format, j.Result.Deck)
}

// Ping reports whether the backing store is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// runJob executes the pipeline for one claimed job under the wall-clock
// deadline.
func (m *Manager) runJob(parent context.Context, t task) {
	ctx, cancel := context.WithTimeout(parent, m.cfg.JobDeadline)
	defer cancel()

	j, err := m.store.LoadJob(ctx, t.id)
	if err != nil {
		m.logger.Error("load claimed job", zap.String("job", t.id), zap.Error(err))
		return
	}
	traceID := uuid.NewString()
	logger := m.logger.With(zap.String("job", j.ID), zap.String("trace_id", traceID))

	j.State = StateProcessing
	m.checkpoint(ctx, j, progressClaimed, "preprocess")

	timings := Timings{}
	stageStart := m.now()
	mark := func(stage string) {
		now := m.now()
		timings[stage] = now.Sub(stageStart).Milliseconds()
		stageStart = now
	}

	stop := observability.TimeStage("preprocess")
	variants, err := imaging.Variants(t.img, m.pipeline.Imaging)
	stop()
	if err != nil {
		m.fail(ctx, j, deck.Wrap(deck.CodeInternal, err, "preprocessing failed"), logger)
		return
	}
	mark("preprocess")
	m.checkpoint(ctx, j, progressVariants, "ocr")

	stop = observability.TimeStage("ocr")
	sel, err := m.pipeline.Strategy.Recognize(ctx, variants)
	stop()
	if err != nil {
		m.fail(ctx, j, classify(ctx, err, "ocr failed"), logger)
		return
	}
	mark("ocr")
	m.checkpoint(ctx, j, progressRecognize, "parse")

	stop = observability.TimeStage("parse")
	parsed := deck.Parse(sel.Texts)
	stop()
	mark("parse")
	m.checkpoint(ctx, j, progressParsed, "resolve")

	if m.pipeline.Resolver == nil && m.pipeline.AlwaysVerify {
		m.fail(ctx, j, deck.E(deck.CodeInternal, "card verification required but no resolver configured"), logger)
		return
	}

	var (
		cards    []deck.ResolvedCard
		warnings = parsed.Warnings
	)
	if m.pipeline.Resolver != nil {
		stop = observability.TimeStage("resolve")
		resolved, resWarnings, err := m.pipeline.Resolver.ResolveAll(ctx, parsed.Lines)
		stop()
		if err != nil {
			m.fail(ctx, j, classify(ctx, err, "resolution failed"), logger)
			return
		}
		cards = resolved
		warnings = append(warnings, resWarnings...)
	} else {
		for _, line := range parsed.Lines {
			cards = append(cards, deck.ResolvedCard{
				Qty:             line.Qty,
				Name:            line.Name,
				SetCode:         line.SetCode,
				CollectorNumber: line.CollectorNumber,
				Section:         line.Section,
				Source:          deck.ResolvedNone,
			})
		}
	}
	mark("resolve")
	m.checkpoint(ctx, j, progressResolved, "finish")

	if ctx.Err() != nil {
		m.fail(ctx, j, deck.Wrap(deck.CodeTimeout, ctx.Err(), "job deadline exceeded"), logger)
		return
	}

	if sel.LowConfidence {
		warnings = append(warnings, deck.Warning{
			Code:    deck.CodeOCRLowConf,
			Message: fmt.Sprintf("mean OCR confidence %.2f stayed below the floor", sel.MeanConfidence),
		})
	}

	d := deck.Build(cards, parsed.Hint, warnings)
	j.Result = &Result{
		Deck:           d,
		Parsed:         parsed.Lines,
		OCRLines:       sel.Run.Lines,
		MeanConfidence: sel.MeanConfidence,
		EngineRuns:     sel.Invocations,
		EarlyStop:      sel.EarlyStop,
		FallbackUsed:   sel.UsedFallback,
		FallbackReason: string(sel.FallbackReason),
		Variant:        string(sel.Run.Variant),
		Timings:        timings,
		TraceID:        traceID,
	}
	j.State = StateCompleted
	j.Stage = "done"
	j.Progress = progressDone
	tctx, done := terminalContext(ctx)
	defer done()
	if err := m.save(tctx, j); err != nil {
		logger.Error("persist completed job", zap.Error(err))
	}
	observability.JobsTotal.WithLabelValues(string(StateCompleted)).Inc()
	logger.Info("job completed",
		zap.Int("main", d.MainCount()),
		zap.Int("side", d.SideCount()),
		zap.String("hint", string(d.Hint)),
		zap.Float64("mean_confidence", sel.MeanConfidence),
		zap.Bool("fallback", sel.UsedFallback))
}

// checkpoint advances progress and stage; progress never moves backward.
func (m *Manager) checkpoint(ctx context.Context, j *Job, progress int, stage string) {
	if progress > j.Progress {
		j.Progress = progress
	}
	j.Stage = stage
	if err := m.save(ctx, j); err != nil {
		m.logger.Warn("persist checkpoint", zap.String("job", j.ID), zap.String("stage", stage), zap.Error(err))
	}
}

// fail marks the job failed and frees its fingerprint claim so that a
// resubmission can retry.
func (m *Manager) fail(ctx context.Context, j *Job, err error, logger *zap.Logger) {
	code := deck.CodeOf(err)
	j.State = StateFailed
	j.ErrorCode = code
	j.ErrorMessage = err.Error()
	tctx, done := terminalContext(ctx)
	defer done()
	if saveErr := m.save(tctx, j); saveErr != nil {
		logger.Error("persist failed job", zap.Error(saveErr))
	}
	m.releaseClaim(tctx, j.Fingerprint, j.ID)
	observability.JobsTotal.WithLabelValues(string(StateFailed)).Inc()
	logger.Warn("job failed", zap.String("code", string(code)), zap.Error(err))
}

// save bumps the revision and writes the job snapshot.
func (m *Manager) save(ctx context.Context, j *Job) error {
	j.Revision++
	j.UpdatedAt = m.now()
	return m.store.SaveJob(ctx, j, m.cfg.JobTTL)
}

func (m *Manager) releaseClaim(ctx context.Context, fp, id string) {
	if err := m.store.ReleaseFingerprint(ctx, fp, id); err != nil {
		m.logger.Warn("release fingerprint", zap.String("job", id), zap.Error(err))
	}
}

// terminalContext detaches terminal writes from the job deadline so the
// processing to completed or failed transition is never lost to it.
func terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

// classify maps a pipeline error onto the taxonomy: deadline expiry is
// TIMEOUT, everything unclassified is INTERNAL.
func classify(ctx context.Context, err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return deck.Wrap(deck.CodeTimeout, err, "job deadline exceeded")
	}
	if deck.CodeOf(err) != deck.CodeInternal {
		return err
	}
	return deck.Wrap(deck.CodeInternal, err, "%s", msg)
}
