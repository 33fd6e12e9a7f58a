package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

var (
	simulateItem     string
	simulateQuantity int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Run the alert rules against a made-up stock level and send the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(simulateItem) == "" {
			return errors.New("--item must be provided")
		}
		if simulateQuantity < 0 {
			return errors.New("--quantity cannot be negative")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateItem, simulateQuantity)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateItem, "item", "", "Item name")
	simulateCmd.Flags().IntVar(&simulateQuantity, "quantity", 0, "Simulated quantity on hand")
}
