package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inventuri/internal/alerting"
	"inventuri/internal/report"
	"inventuri/internal/trend"
	"inventuri/internal/watch"
)

// SimulateAlert runs the alert rules against a made-up stock level and
// delivers the result. When no rule fires, a manual test alert is sent so
// the channel is still exercised.
func (a *App) SimulateAlert(ctx context.Context, itemName string, quantity int) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	row := report.SupplyRow{Name: strings.ToUpper(strings.TrimSpace(itemName)), Quantity: quantity, Trend: trend.Stable}
	slot := time.Now().UTC()
	svc := watch.New(a.Config, nil, staticSupplies{rows: []report.SupplyRow{row}}, notifier, nil, a.Logger)

	notes := svc.Evaluate([]report.SupplyRow{row}, slot)
	if len(notes) == 0 {
		notes = []alerting.Notification{{
			ItemName:   row.Name,
			Quantity:   row.Quantity,
			Threshold:  a.Config.Alerting.LowStockThreshold,
			Trend:      row.Trend,
			Reasons:    []alerting.Reason{alerting.ReasonManual},
			ObservedAt: slot,
			Note:       "simulated alert",
		}}
	}

	for _, note := range notes {
		if err := notifier.Notify(ctx, note); err != nil {
			return fmt.Errorf("deliver simulated alert: %w", err)
		}
	}
	a.Logger.Info().Str("item", row.Name).Int("alerts", len(notes)).Msg("simulated alert delivered")
	return nil
}

type staticSupplies struct {
	rows []report.SupplyRow
}

func (s staticSupplies) Supplies(context.Context) ([]report.SupplyRow, error) {
	return s.rows, nil
}

var _ watch.SupplySource = staticSupplies{}
