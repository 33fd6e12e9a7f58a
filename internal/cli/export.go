package cli

import (
	"github.com/spf13/cobra"

	"inventuri/internal/app"
)

var (
	exportItemID      int64
	exportPNGPath     string
	exportCSVPath     string
	exportSuppliesCSV string
	exportMaxPoints   int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export item history as CSV and/or PNG chart, or the supplies table as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			ItemID:      exportItemID,
			PNGPath:     exportPNGPath,
			CSVPath:     exportCSVPath,
			SuppliesCSV: exportSuppliesCSV,
			MaxPoints:   exportMaxPoints,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().Int64Var(&exportItemID, "item", 0, "Item ID whose history is exported")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write history CSV")
	exportCmd.Flags().StringVar(&exportSuppliesCSV, "supplies-csv", "", "Path to write the trend-labelled supplies CSV")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
