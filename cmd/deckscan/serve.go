package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/deckscan/carddb"
	"github.com/wudi/deckscan/carddb/scryfall"
	"github.com/wudi/deckscan/imaging"
	"github.com/wudi/deckscan/job"
	"github.com/wudi/deckscan/ocr"
	"github.com/wudi/deckscan/ocr/vision"
	"github.com/wudi/deckscan/resolve"
	"github.com/wudi/deckscan/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OCR HTTP service",
	Long: `Starts the upload/status/export HTTP API and the OCR worker pool.

The card corpus is loaded from the SQLite store at carddb_path; build it
first with "deckscan corpus build". Without Redis (redis_addr empty) jobs
live in process memory and do not survive a restart.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	corpus := carddb.NewCorpus()
	if n, err := loadCorpus(ctx, settings.CardDBPath, corpus); err != nil {
		logger.Warn("card corpus unavailable, offline resolution starts empty",
			zap.String("path", settings.CardDBPath), zap.Error(err))
	} else {
		logger.Info("card corpus loaded", zap.String("path", settings.CardDBPath), zap.Int("cards", n))
	}

	var online resolve.Online
	if settings.EnableCardDBOnlineFallback {
		online = scryfall.New(scryfall.Config{
			Timeout:     settings.CardDBTimeout(),
			MinInterval: settings.CardDBMinInterval(),
		})
	}
	resolverCfg := resolve.DefaultConfig()
	if settings.FuzzyTopK > 0 {
		resolverCfg.TopK = settings.FuzzyTopK
	}
	resolver := resolve.New(corpus, online, resolverCfg, logger)

	var secondary ocr.Engine
	if settings.EnableVisionFallback {
		eng := vision.NewEngine(vision.Config{
			Endpoint: settings.VisionEndpoint,
			APIKey:   settings.VisionAPIKey,
		})
		if eng.Ready() {
			secondary = eng
			logger.Info("vision fallback enabled", zap.String("endpoint", settings.VisionEndpoint))
		}
	}
	strategy := ocr.NewStrategy(ocr.DefaultEngine(), secondary, ocr.StrategyConfig{
		EarlyStopConfidence:     settings.OCREarlyStopConf,
		MinSpanConfidence:       settings.OCRMinSpanConf,
		MinConfidence:           settings.OCRMinConf,
		MinLines:                settings.OCRMinLines,
		FallbackBudgetPerMinute: settings.VisionBudgetPerMinute,
		Languages:               settings.OCRLanguages,
	}, logger)

	limits := imaging.DefaultLimits()
	limits.MaxBytes = settings.MaxImageBytes
	imgOpts := imaging.DefaultOptions()
	imgOpts.SuperRes = settings.EnableSuperres
	if settings.SuperresMinWidth > 0 {
		imgOpts.SuperResMinWidth = settings.SuperresMinWidth
	}

	store := job.NewMemoryStore()
	if settings.RedisAddr != "" {
		store = job.NewRedisStore(settings.RedisAddr)
		logger.Info("using redis job store", zap.String("addr", settings.RedisAddr))
	}

	manager := job.NewManager(store, job.Pipeline{
		Limits:       limits,
		Imaging:      imgOpts,
		Strategy:     strategy,
		Resolver:     resolver,
		AlwaysVerify: settings.AlwaysVerifyCardDB,
	}, job.Config{
		Workers:        settings.Workers,
		QueueDepth:     settings.QueueDepth,
		JobTTL:         settings.JobTTL(),
		FingerprintTTL: settings.FingerprintTTL(),
		JobDeadline:    settings.JobDeadline(),
	}, logger)

	httpSrv := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           server.New(manager, corpus, settings.MaxImageBytes, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(ctx) })
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", settings.ListenAddr), zap.Int("workers", settings.Workers))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// loadCorpus fills the in-memory corpus from the SQLite card store.
func loadCorpus(ctx context.Context, path string, corpus *carddb.Corpus) (int, error) {
	store, err := carddb.OpenStore(path)
	if err != nil {
		return 0, err
	}
	defer store.Close()
	return carddb.LoadCorpus(ctx, store, corpus)
}
