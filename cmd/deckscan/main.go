package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wudi/deckscan/config"
	"github.com/wudi/deckscan/observability"

	// Register Tesseract as the default OCR engine.
	_ "github.com/wudi/deckscan/ocr/tesseract"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	settings *config.Settings
	logger   *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "deckscan",
	Short: "Turn decklist screenshots into verified, exportable decklists",
	Long: `deckscan reads a Magic: The Gathering decklist screenshot, runs OCR
with confidence-gated retries over several preprocessed renderings,
verifies every card name against a local Scryfall corpus, and renders
the result for MTGA, Moxfield, Archidekt, or TappedOut.

Run "deckscan serve" for the HTTP service or "deckscan scan" for a
one-shot conversion.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		logger, err = observability.NewLogger(verbose || settings.Verbose)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (YAML); DECKSCAN_ env vars override it")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(corpusCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
