package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"twscan/internal/app"
)

var (
	exportSymbol    string
	exportSpan      string
	exportPNG       bool
	exportCSV       bool
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a symbol's daily series with MA5/MA34/MACD as CSV and/or PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		opts := app.ExportOptions{
			Code:      exportSymbol,
			Span:      exportSpan,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		if exportPNG && opts.PNGPath == "" {
			opts.PNGPath = filepath.Join(a.Config.Export.Dir, exportSymbol+".png")
		}
		if exportCSV && opts.CSVPath == "" {
			opts.CSVPath = filepath.Join(a.Config.Export.Dir, exportSymbol+".csv")
		}

		return a.Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSymbol, "symbol", "", "Bare exchange code, e.g. 2330")
	exportCmd.Flags().StringVar(&exportSpan, "span", "", "History span (defaults to cache.daily_span)")
	exportCmd.Flags().BoolVar(&exportPNG, "png", false, "Write a PNG chart into export.dir")
	exportCmd.Flags().BoolVar(&exportCSV, "csv", false, "Write CSV data into export.dir")
	exportCmd.Flags().StringVar(&exportPNGPath, "png-path", "", "Explicit PNG output path")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv-path", "", "Explicit CSV output path")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	_ = exportCmd.MarkFlagRequired("symbol")
}
