package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wudi/deckscan/export"
)

var (
	exportFormat string
	exportInput  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render a deck JSON document in an export format",
	Long: `Reads a deck as JSON ({"main": [{"qty", "name", ...}], "side": [...]})
from stdin or --in and prints it in the chosen format. This is the same
renderer the HTTP export routes use.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "mtga", "Export format: mtga, moxfield, archidekt, tappedout")
	exportCmd.Flags().StringVar(&exportInput, "in", "", "Deck JSON file (default stdin)")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if exportInput != "" {
		f, err := os.Open(exportInput)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	d, err := export.ParseDeckJSON(r)
	if err != nil {
		return err
	}
	text, err := export.Render(format, d)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}
