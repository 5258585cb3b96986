package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wudi/deckscan/carddb"
	"github.com/wudi/deckscan/carddb/scryfall"
	"github.com/wudi/deckscan/deck"
	"github.com/wudi/deckscan/export"
	"github.com/wudi/deckscan/imaging"
	"github.com/wudi/deckscan/ocr"
	"github.com/wudi/deckscan/resolve"
)

var (
	scanFormat string
	scanDBPath string
	scanOnline bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Convert one screenshot without the HTTP service",
	Long: `Runs the full pipeline on a single image: preprocess, OCR with
confidence-gated retries, parse, verify against the local corpus, and
print the deck in the chosen export format.

Resolution stays offline unless --online allows the Scryfall fallback
for names the corpus cannot settle.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "mtga", "Export format: mtga, moxfield, archidekt, tappedout")
	scanCmd.Flags().StringVar(&scanDBPath, "db", "", "SQLite store path (default carddb_path from config)")
	scanCmd.Flags().BoolVar(&scanOnline, "online", false, "Allow the Scryfall API fallback for unresolved names")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := export.ParseFormat(scanFormat)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	limits := imaging.DefaultLimits()
	limits.MaxBytes = settings.MaxImageBytes
	img, err := imaging.Sanitize(data, limits)
	if err != nil {
		return err
	}

	imgOpts := imaging.DefaultOptions()
	imgOpts.SuperRes = settings.EnableSuperres
	if settings.SuperresMinWidth > 0 {
		imgOpts.SuperResMinWidth = settings.SuperresMinWidth
	}
	variants, err := imaging.Variants(img, imgOpts)
	if err != nil {
		return err
	}

	strategy := ocr.NewStrategy(ocr.DefaultEngine(), nil, ocr.StrategyConfig{
		EarlyStopConfidence: settings.OCREarlyStopConf,
		MinSpanConfidence:   settings.OCRMinSpanConf,
		MinConfidence:       settings.OCRMinConf,
		MinLines:            settings.OCRMinLines,
		Languages:           settings.OCRLanguages,
	}, logger)
	sel, err := strategy.Recognize(ctx, variants)
	if err != nil {
		return err
	}
	logger.Debug("ocr finished",
		zap.String("variant", string(sel.Run.Variant)),
		zap.Float64("mean_confidence", sel.MeanConfidence),
		zap.Int("invocations", sel.Invocations))

	parsed := deck.Parse(sel.Texts)

	dbPath := scanDBPath
	if dbPath == "" {
		dbPath = settings.CardDBPath
	}
	corpus := carddb.NewCorpus()
	if n, err := loadCorpus(ctx, dbPath, corpus); err != nil {
		logger.Warn("card corpus unavailable, names go unverified", zap.String("path", dbPath), zap.Error(err))
	} else {
		logger.Debug("card corpus loaded", zap.Int("cards", n))
	}

	var online resolve.Online
	if scanOnline {
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

	cards, warnings, err := resolver.ResolveAll(ctx, parsed.Lines)
	if err != nil {
		return err
	}
	warnings = append(parsed.Warnings, warnings...)

	d := deck.Build(cards, parsed.Hint, warnings)
	for _, w := range d.Warnings {
		fmt.Fprintf(os.Stderr, "warning (%s): %s\n", w.Code, w.Message)
	}

	text, err := export.Render(format, d)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}
