package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"inventuri/internal/report"
	"inventuri/internal/storage"
)

// Export writes one item's quantity history as CSV and/or PNG, and the
// trend-labelled supplies table as CSV.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" && opts.SuppliesCSV == "" {
		return errors.New("at least one of --csv, --png or --supplies-csv must be provided")
	}
	if (opts.CSVPath != "" || opts.PNGPath != "") && opts.ItemID <= 0 {
		return errors.New("--item is required with --csv or --png")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.SuppliesCSV != "" {
		rows, err := a.newReports(store).Supplies(ctx)
		if err != nil {
			return err
		}
		if err := writeFile(opts.SuppliesCSV, func(w io.Writer) error {
			return report.WriteSuppliesCSV(w, rows)
		}); err != nil {
			return err
		}
		a.Logger.Info().Int("items", len(rows)).Str("path", opts.SuppliesCSV).Msg("supplies exported")
	}

	if opts.ItemID <= 0 {
		return nil
	}

	item, err := store.GetItem(ctx, opts.ItemID)
	if err != nil {
		return fmt.Errorf("item %d: %w", opts.ItemID, err)
	}
	records, err := store.ListHistory(ctx, []int64{item.ID})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Int64("item_id", item.ID).Msg("no history recorded for item")
		return nil
	}

	downsampled := downsampleHistory(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting history")

	if opts.CSVPath != "" {
		if err := writeFile(opts.CSVPath, func(w io.Writer) error {
			return report.WriteHistoryCSV(w, item.Name, downsampled)
		}); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeFile(opts.PNGPath, func(w io.Writer) error {
			return report.RenderHistoryChart(w, item.Name, downsampled)
		}); err != nil {
			return err
		}
	}

	return nil
}

// downsampleHistory keeps at most max evenly spaced records, always
// including the first and last.
func downsampleHistory(records []storage.HistoryRecord, max int) []storage.HistoryRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[len(records)-1:]
	}

	result := make([]storage.HistoryRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
