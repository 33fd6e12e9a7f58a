package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"inventuri/internal/report"
)

// ReportSource renders the supplies report and exposes its rows.
type ReportSource interface {
	Supplies(ctx context.Context) ([]report.SupplyRow, error)
	SuppliesReport(ctx context.Context) (report.Document, error)
}

// Job writes the supplies report to disk and archives its data.
type Job struct {
	reports   ReportSource
	store     Store
	outputDir string
	location  *time.Location
	logger    zerolog.Logger
	now       func() time.Time
}

// NewJob constructs the archive job. store may be nil to skip MongoDB.
func NewJob(reports ReportSource, store Store, outputDir string, loc *time.Location, logger zerolog.Logger) *Job {
	if loc == nil {
		loc = time.UTC
	}
	if outputDir == "" {
		outputDir = "."
	}
	return &Job{
		reports:   reports,
		store:     store,
		outputDir: outputDir,
		location:  loc,
		logger:    logger.With().Str("component", "archive").Logger(),
		now:       time.Now,
	}
}

// Run generates one report. An empty inventory is logged and skipped.
func (j *Job) Run(ctx context.Context) error {
	generated := j.now().In(j.location)

	doc, err := j.reports.SuppliesReport(ctx)
	if errors.Is(err, report.ErrNoData) {
		j.logger.Info().Msg("no items; scheduled report skipped")
		return nil
	}
	if err != nil {
		return err
	}

	path := filepath.Join(j.outputDir, fmt.Sprintf("items_report_%s.docx", generated.Format("2006-01-02")))
	if err := os.MkdirAll(j.outputDir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, doc.Content, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	j.logger.Info().Str("path", path).Int("bytes", len(doc.Content)).Msg("scheduled report written")

	if j.store == nil {
		return nil
	}

	rows, err := j.reports.Supplies(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot rows: %w", err)
	}
	snapshot := Snapshot(rows, generated.UTC())
	snapshot.File = path
	if err := j.store.Save(ctx, snapshot); err != nil {
		return err
	}
	j.logger.Info().Int("items", len(snapshot.Items)).Msg("report snapshot archived")
	return nil
}

// Snapshot converts report rows into an archive document.
func Snapshot(rows []report.SupplyRow, generatedAt time.Time) ReportSnapshot {
	snapshot := ReportSnapshot{
		GeneratedAt: generatedAt,
		Items:       make([]SnapshotItem, len(rows)),
		Trends:      map[string]int{},
	}
	for i, row := range rows {
		snapshot.Items[i] = SnapshotItem{
			ItemID:    row.ID,
			Name:      row.Name,
			Unit:      row.Unit,
			Quantity:  row.Quantity,
			Trend:     row.Trend.String(),
			ChangePct: row.ChangePct.StringFixed(2),
		}
		snapshot.Trends[row.Trend.String()]++
	}
	return snapshot
}
