package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wudi/deckscan/carddb"
	"github.com/wudi/deckscan/carddb/scryfall"
)

var (
	corpusDBPath   string
	corpusDownload bool
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the local card corpus",
}

var corpusBuildCmd = &cobra.Command{
	Use:   "build [bulk.json]",
	Short: "Hydrate the SQLite card store from Scryfall bulk data",
	Long: `Reads a Scryfall "default cards" bulk JSON dump, folds printings into
canonical names, and replaces the SQLite card store in one transaction.

Pass the dump as a file argument, or use --download to fetch the current
dump from the Scryfall API first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCorpusBuild,
}

var corpusStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report card counts in the SQLite store",
	Args:  cobra.NoArgs,
	RunE:  runCorpusStats,
}

func init() {
	corpusCmd.PersistentFlags().StringVar(&corpusDBPath, "db", "", "SQLite store path (default carddb_path from config)")
	corpusBuildCmd.Flags().BoolVar(&corpusDownload, "download", false, "Download the current bulk dump from Scryfall")

	corpusCmd.AddCommand(corpusBuildCmd)
	corpusCmd.AddCommand(corpusStatsCmd)
}

func corpusPath() string {
	if corpusDBPath != "" {
		return corpusDBPath
	}
	return settings.CardDBPath
}

func runCorpusBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var src *os.File
	switch {
	case corpusDownload:
		tmp, err := os.CreateTemp("", "scryfall-bulk-*.json")
		if err != nil {
			return fmt.Errorf("create download target: %w", err)
		}
		defer os.Remove(tmp.Name())
		defer tmp.Close()

		client := scryfall.New(scryfall.Config{
			Timeout:     10 * time.Minute,
			MinInterval: settings.CardDBMinInterval(),
		})
		logger.Info("downloading bulk data")
		n, err := client.BulkDownload(ctx, tmp)
		if err != nil {
			return fmt.Errorf("download bulk data: %w", err)
		}
		logger.Info("bulk data downloaded", zap.Int64("bytes", n))
		if _, err := tmp.Seek(0, 0); err != nil {
			return err
		}
		src = tmp
	case len(args) == 1:
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	default:
		return fmt.Errorf("pass a bulk JSON file or --download")
	}

	start := time.Now()
	cards, err := carddb.Hydrate(ctx, src)
	if err != nil {
		return err
	}

	store, err := carddb.OpenStore(corpusPath())
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.ReplaceAll(ctx, cards); err != nil {
		return err
	}

	fmt.Printf("corpus built: %d cards -> %s (%.1fs)\n", len(cards), corpusPath(), time.Since(start).Seconds())
	return nil
}

func runCorpusStats(cmd *cobra.Command, args []string) error {
	store, err := carddb.OpenStore(corpusPath())
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d cards\n", corpusPath(), n)
	return nil
}
