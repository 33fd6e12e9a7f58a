package cli

import (
	"github.com/spf13/cobra"

	"inventuri/internal/app"
)

var (
	reportKind string
	reportOut  string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a Word report (supplies, equipment or list)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Report(cmd.Context(), app.ReportOptions{
			Kind: reportKind,
			Out:  reportOut,
		})
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportKind, "kind", app.KindSupplies, "Report kind: supplies, equipment or list")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "Output path (defaults to the download filename)")
}
