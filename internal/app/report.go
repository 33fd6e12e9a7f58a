package app

import (
	"context"
	"fmt"
	"os"

	"inventuri/internal/report"
)

// Report kinds accepted by the report command.
const (
	KindSupplies  = "supplies"
	KindEquipment = "equipment"
	KindList      = "list"
)

// Report renders one document to disk.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	store, closeStore, err := a.requireStore(ctx, "render reports")
	if err != nil {
		return err
	}
	defer closeStore()

	reports := a.newReports(store)

	var doc report.Document
	switch opts.Kind {
	case KindSupplies:
		doc, err = reports.SuppliesReport(ctx)
	case KindEquipment:
		doc, err = reports.EquipmentReport(ctx)
	case KindList:
		doc, err = reports.InventoryList(ctx)
	default:
		return fmt.Errorf("unknown report kind %q (want %s, %s or %s)", opts.Kind, KindSupplies, KindEquipment, KindList)
	}
	if err != nil {
		return err
	}

	out := opts.Out
	if out == "" {
		out = doc.Filename
	}
	if err := ensureDir(out); err != nil {
		return err
	}
	if err := os.WriteFile(out, doc.Content, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	a.Logger.Info().Str("kind", opts.Kind).Str("path", out).Int("bytes", len(doc.Content)).Msg("report written")
	return nil
}
