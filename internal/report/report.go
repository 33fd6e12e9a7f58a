// Package report builds the supplies and equipment reports: trend-enriched
// rows, .docx documents, dashboard summaries, charts and CSV exports.
package report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"inventuri/internal/storage"
	"inventuri/internal/trend"
)

var (
	// ErrNoData is returned when there is nothing to report.
	ErrNoData = errors.New("no data found")
	// ErrQuery wraps storage failures while gathering report data.
	ErrQuery = errors.New("query report data")
)

// Document filenames.
const (
	SuppliesFilename  = "items_report.docx"
	EquipmentFilename = "equipment_report.docx"
	ListFilename      = "item_report.docx"
)

// SupplyRow is a supply with its recent trend.
type SupplyRow struct {
	ID        int64           `json:"id"`
	Name      string          `json:"item_name"`
	Locker    int             `json:"locker"`
	Unit      string          `json:"unit"`
	Quantity  int             `json:"quantity"`
	Trend     trend.Label     `json:"trend"`
	ChangePct decimal.Decimal `json:"change_pct"`
}

func (r SupplyRow) data() Data {
	return Data{
		"id":         r.ID,
		"item_name":  r.Name,
		"locker":     r.Locker,
		"unit":       r.Unit,
		"quantity":   r.Quantity,
		"trend":      r.Trend,
		"change_pct": r.ChangePct.StringFixed(2),
	}
}

// Document is a rendered report ready to download.
type Document struct {
	Filename string
	Content  []byte
}

// ItemQuantity is one bar of the quantity chart.
type ItemQuantity struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Summary is the dashboard view of the inventory.
type Summary struct {
	Items                 []ItemQuantity      `json:"items"`
	EquipmentByStatus     map[string]int      `json:"equipment_by_status"`
	EquipmentByDepartment map[string]int      `json:"equipment_by_department"`
	Trends                map[trend.Label]int `json:"trends"`
}

// Options configure templates and timestamps.
type Options struct {
	ItemTemplate      string
	EquipmentTemplate string
	Location          *time.Location
}

// Service gathers report data and renders documents.
type Service struct {
	items     storage.ItemStore
	equipment storage.EquipmentStore
	history   storage.HistoryStore
	renderer  Renderer
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService constructs the report service.
func NewService(items storage.ItemStore, equipment storage.EquipmentStore, history storage.HistoryStore, opts Options, logger zerolog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		items:     items,
		equipment: equipment,
		history:   history,
		opts:      opts,
		logger:    logger.With().Str("component", "report").Logger(),
		now:       time.Now,
	}
}

// Supplies returns every supply labelled with its trend. History is fetched
// in created order and classified as received.
func (s *Service) Supplies(ctx context.Context) ([]SupplyRow, error) {
	items, err := s.items.ListItems(ctx, storage.ItemFilter{})
	if err != nil {
		return nil, fmt.Errorf("%w: items: %w", ErrQuery, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items found", ErrNoData)
	}

	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	records, err := s.history.ListHistory(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: history: %w", ErrQuery, err)
	}

	groups := trend.GroupByItem(storage.Observations(records))
	labels := trend.Assign(ids, groups)

	rows := make([]SupplyRow, len(items))
	for i, item := range items {
		rows[i] = SupplyRow{
			ID:        item.ID,
			Name:      item.Name,
			Locker:    item.Locker,
			Unit:      item.Unit,
			Quantity:  item.Quantity,
			Trend:     trend.LabelOf(labels, item.ID),
			ChangePct: trend.WindowChange(groups[item.ID]),
		}
	}
	return rows, nil
}

// SuppliesReport renders the trend-enriched supplies document.
func (s *Service) SuppliesReport(ctx context.Context) (Document, error) {
	rows, err := s.Supplies(ctx)
	if err != nil {
		return Document{}, err
	}
	data := make([]Data, len(rows))
	for i, row := range rows {
		data[i] = row.data()
	}

	content, err := s.render(s.opts.ItemTemplate, "Supplies Report", SupplyColumns, data)
	if err != nil {
		return Document{}, err
	}
	s.logger.Info().Int("items", len(rows)).Msg("supplies report rendered")
	return Document{Filename: SuppliesFilename, Content: content}, nil
}

// EquipmentReport renders the equipment document. An empty inventory yields
// a document with an empty table.
func (s *Service) EquipmentReport(ctx context.Context) (Document, error) {
	equipment, err := s.equipment.ListEquipment(ctx, storage.EquipmentFilter{})
	if err != nil {
		return Document{}, fmt.Errorf("%w: equipment: %w", ErrQuery, err)
	}
	data := make([]Data, len(equipment))
	for i, eq := range equipment {
		data[i] = Data{
			"equipment_name": eq.Name,
			"count":          eq.Count,
			"status":         eq.Status,
			"Department":     eq.Department,
			"department":     eq.Department,
			"serial_num":     eq.SerialNum,
		}
	}

	content, err := s.render(s.opts.EquipmentTemplate, "Equipment Report", EquipmentColumns, data)
	if err != nil {
		return Document{}, err
	}
	s.logger.Info().Int("equipment", len(equipment)).Msg("equipment report rendered")
	return Document{Filename: EquipmentFilename, Content: content}, nil
}

// InventoryList renders the plain supplies list with trimmed values. Rows
// with no value at all are dropped.
func (s *Service) InventoryList(ctx context.Context) (Document, error) {
	items, err := s.items.ListItems(ctx, storage.ItemFilter{})
	if err != nil {
		return Document{}, fmt.Errorf("%w: items: %w", ErrQuery, err)
	}
	if len(items) == 0 {
		return Document{}, ErrNoData
	}

	data := CleanList(items)
	if len(data) == 0 {
		return Document{}, fmt.Errorf("%w: no valid data after cleanup", ErrNoData)
	}

	content, err := s.render(s.opts.ItemTemplate, "Inventory List", ListColumns, data)
	if err != nil {
		return Document{}, err
	}
	return Document{Filename: ListFilename, Content: content}, nil
}

// CleanList converts items to list rows, trimming text and skipping rows
// where every field is empty.
func CleanList(items []storage.Item) []Data {
	out := make([]Data, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		unit := strings.TrimSpace(item.Unit)
		locker, quantity := "", ""
		if item.Locker != 0 {
			locker = strconv.Itoa(item.Locker)
		}
		if item.Quantity != 0 {
			quantity = strconv.Itoa(item.Quantity)
		}
		if name == "" && unit == "" && locker == "" && quantity == "" {
			continue
		}
		if quantity == "" {
			quantity = "0"
		}
		out = append(out, Data{"item_name": name, "locker": locker, "unit": unit, "quantity": quantity})
	}
	return out
}

// Summary aggregates quantities, equipment conditions and trend counts.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	out := Summary{
		Items:                 []ItemQuantity{},
		EquipmentByStatus:     map[string]int{},
		EquipmentByDepartment: map[string]int{},
		Trends:                map[trend.Label]int{},
	}

	rows, err := s.Supplies(ctx)
	if err != nil && !errors.Is(err, ErrNoData) {
		return Summary{}, err
	}
	for _, row := range rows {
		out.Items = append(out.Items, ItemQuantity{Name: row.Name, Quantity: row.Quantity})
		out.Trends[row.Trend]++
	}

	equipment, err := s.equipment.ListEquipment(ctx, storage.EquipmentFilter{})
	if err != nil {
		return Summary{}, fmt.Errorf("%w: equipment: %w", ErrQuery, err)
	}
	for _, eq := range equipment {
		out.EquipmentByStatus[eq.Status]++
		out.EquipmentByDepartment[fmt.Sprintf("%s (%s)", eq.Department, eq.Status)]++
	}
	return out, nil
}

func (s *Service) render(path, title string, columns []Column, rows []Data) ([]byte, error) {
	tmpl, err := loadTemplate(path, title, columns)
	if err != nil {
		return nil, err
	}
	return s.renderer.Render(tmpl, Data{
		"items":        rows,
		"total":        len(rows),
		"generated_at": s.now().In(s.opts.Location).Format("2006-01-02 15:04 MST"),
	})
}
