package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"inventuri/internal/storage"
)

// WriteHistoryCSV writes one item's quantity history.
func WriteHistoryCSV(w io.Writer, name string, records []storage.HistoryRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"created", "item_id", "item_name", "quantity"}); err != nil {
		return err
	}
	for _, rec := range records {
		record := []string{
			rec.Created.UTC().Format(time.RFC3339),
			strconv.FormatInt(rec.ItemID, 10),
			name,
			strconv.Itoa(rec.Quantity),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteSuppliesCSV writes the trend-enriched supplies list.
func WriteSuppliesCSV(w io.Writer, rows []SupplyRow) error {
	writer := csv.NewWriter(w)

	header := []string{"id", "item_name", "locker", "unit", "quantity", "trend", "change_pct"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.ID, 10),
			row.Name,
			strconv.Itoa(row.Locker),
			row.Unit,
			strconv.Itoa(row.Quantity),
			row.Trend.String(),
			row.ChangePct.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
