package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"inventuri/internal/report"
	"inventuri/internal/trend"
)

// Show prints supplies with their trend labels.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx, "show items")
	if err != nil {
		return err
	}
	defer closeStore()

	rows, err := a.newReports(store).Supplies(ctx)
	if err != nil {
		return err
	}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return renderSupplies(os.Stdout, rows)
}

func renderSupplies(w io.Writer, rows []report.SupplyRow) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{Borders: tw.BorderNone}),
	)
	table.Header([]string{"ID", "Item", "Locker", "Unit", "Quantity", "Trend", "Change %"})

	data := make([][]string, 0, len(rows))
	for _, row := range rows {
		data = append(data, []string{
			strconv.FormatInt(row.ID, 10),
			row.Name,
			strconv.Itoa(row.Locker),
			row.Unit,
			strconv.Itoa(row.Quantity),
			colorTrend(row.Trend),
			row.ChangePct.StringFixed(2),
		})
	}
	if err := table.Bulk(data); err != nil {
		return fmt.Errorf("table rows: %w", err)
	}
	return table.Render()
}

func colorTrend(label trend.Label) string {
	switch label {
	case trend.Spiking:
		return color.GreenString(label.String())
	case trend.Decreasing:
		return color.RedString(label.String())
	default:
		return color.New(color.Faint).Sprint(label.String())
	}
}
