package cli

import (
	"github.com/spf13/cobra"

	"inventuri/internal/app"
)

var (
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Seed a history row for every item that has none",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Backfill(cmd.Context(), app.BackfillOptions{DryRun: backfillDryRun})
	},
}

func init() {
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Report what would be seeded without writing")
}
