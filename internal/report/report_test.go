package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inventuri/internal/storage"
	"inventuri/internal/storage/storagetest"
	"inventuri/internal/trend"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newReportService(mem *storagetest.Memory) *Service {
	svc := NewService(mem, mem, mem, Options{}, zerolog.Nop())
	svc.now = func() time.Time { return t0 }
	return svc
}

func seedTrends(mem *storagetest.Memory) (spiking, flat, falling storage.Item) {
	spiking = mem.SeedItem(storage.Item{Name: "GLOVES", Unit: "BOX", Locker: 2, Quantity: 40})
	flat = mem.SeedItem(storage.Item{Name: "MASKS", Unit: "PCS", Quantity: 10})
	falling = mem.SeedItem(storage.Item{Name: "GAUZE", Unit: "ROLL", Quantity: 8})

	// Inserted out of order on purpose; the store returns created order.
	mem.SeedHistory(spiking.ID, 40, t0.Add(3*time.Hour))
	mem.SeedHistory(spiking.ID, 30, t0.Add(time.Hour))
	mem.SeedHistory(spiking.ID, 35, t0.Add(2*time.Hour))
	mem.SeedHistory(falling.ID, 10, t0.Add(time.Hour))
	mem.SeedHistory(falling.ID, 8, t0.Add(2*time.Hour))
	return spiking, flat, falling
}

func TestSuppliesLabelsEveryItem(t *testing.T) {
	mem := storagetest.NewMemory()
	spiking, flat, falling := seedTrends(mem)

	rows, err := newReportService(mem).Supplies(context.Background())
	if err != nil {
		t.Fatalf("Supplies: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}

	byID := map[int64]SupplyRow{}
	for _, row := range rows {
		byID[row.ID] = row
	}
	if got := byID[spiking.ID]; got.Trend != trend.Spiking || got.ChangePct.String() != "33.33" {
		t.Fatalf("spiking row = %+v", got)
	}
	if got := byID[flat.ID]; got.Trend != trend.Stable || !got.ChangePct.IsZero() {
		t.Fatalf("item without history = %+v", got)
	}
	if got := byID[falling.ID]; got.Trend != trend.Decreasing {
		t.Fatalf("falling row = %+v", got)
	}
}

func TestSuppliesEmptyInventory(t *testing.T) {
	_, err := newReportService(storagetest.NewMemory()).Supplies(context.Background())
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v", err)
	}
}

func TestSuppliesWrapsQueryErrors(t *testing.T) {
	mem := storagetest.NewMemory()
	mem.SeedItem(storage.Item{Name: "GLOVES", Quantity: 1})
	mem.ListHistoryErr = errors.New("connection reset")

	_, err := newReportService(mem).Supplies(context.Background())
	if !errors.Is(err, ErrQuery) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestSuppliesReportDocument(t *testing.T) {
	mem := storagetest.NewMemory()
	seedTrends(mem)

	doc, err := newReportService(mem).SuppliesReport(context.Background())
	if err != nil {
		t.Fatalf("SuppliesReport: %v", err)
	}
	if doc.Filename != SuppliesFilename {
		t.Fatalf("filename = %q", doc.Filename)
	}
	body := readPart(t, doc.Content, "word/document.xml")
	for _, want := range []string{"GLOVES", "Spiking", "33.33", "MASKS", "Stable", "GAUZE", "Decreasing", "2024-03-01 09:00 UTC"} {
		if !strings.Contains(body, want) {
			t.Fatalf("document missing %q", want)
		}
	}
}

func TestSuppliesReportMissingTemplateFile(t *testing.T) {
	mem := storagetest.NewMemory()
	mem.SeedItem(storage.Item{Name: "GLOVES", Quantity: 1})
	svc := NewService(mem, mem, mem, Options{ItemTemplate: "/nonexistent/item_template.docx"}, zerolog.Nop())

	if _, err := svc.SuppliesReport(context.Background()); !errors.Is(err, ErrRender) {
		t.Fatalf("err = %v", err)
	}
}

func TestEquipmentReportAllowsEmptyInventory(t *testing.T) {
	doc, err := newReportService(storagetest.NewMemory()).EquipmentReport(context.Background())
	if err != nil {
		t.Fatalf("EquipmentReport: %v", err)
	}
	if doc.Filename != EquipmentFilename || len(doc.Content) == 0 {
		t.Fatalf("doc = %q (%d bytes)", doc.Filename, len(doc.Content))
	}
}

func TestCleanListDropsEmptyRows(t *testing.T) {
	rows := CleanList([]storage.Item{
		{Name: "  GLOVES ", Unit: " BOX", Locker: 2, Quantity: 4},
		{Name: "   ", Unit: ""},
		{Name: "MASKS"},
	})
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0]["item_name"] != "GLOVES" || rows[0]["unit"] != "BOX" || rows[0]["quantity"] != "4" {
		t.Fatalf("row 0 = %+v", rows[0])
	}
	if rows[1]["locker"] != "" || rows[1]["quantity"] != "0" {
		t.Fatalf("row 1 = %+v", rows[1])
	}
}

func TestInventoryListNoData(t *testing.T) {
	mem := storagetest.NewMemory()
	mem.SeedItem(storage.Item{Name: " "})

	if _, err := newReportService(mem).InventoryList(context.Background()); !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v", err)
	}
}

func TestSummaryCounts(t *testing.T) {
	mem := storagetest.NewMemory()
	seedTrends(mem)
	mem.SeedEquipment(storage.Equipment{Name: "Bed", Department: "ER", Status: "Good", Count: 4})
	mem.SeedEquipment(storage.Equipment{Name: "Pump", Department: "ER", Status: "Need Repair", Count: 1})
	mem.SeedEquipment(storage.Equipment{Name: "Monitor", Department: "ICU", Status: "Good", Count: 2})

	sum, err := newReportService(mem).Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum.Items) != 3 || sum.Items[0].Name != "GLOVES" || sum.Items[0].Quantity != 40 {
		t.Fatalf("items = %+v", sum.Items)
	}
	if sum.EquipmentByStatus["Good"] != 2 || sum.EquipmentByStatus["Need Repair"] != 1 {
		t.Fatalf("by status = %+v", sum.EquipmentByStatus)
	}
	if sum.EquipmentByDepartment["ER (Good)"] != 1 || sum.EquipmentByDepartment["ICU (Good)"] != 1 {
		t.Fatalf("by department = %+v", sum.EquipmentByDepartment)
	}
	if sum.Trends[trend.Spiking] != 1 || sum.Trends[trend.Stable] != 1 || sum.Trends[trend.Decreasing] != 1 {
		t.Fatalf("trends = %+v", sum.Trends)
	}
}

func TestSummaryEmptyInventory(t *testing.T) {
	sum, err := newReportService(storagetest.NewMemory()).Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum.Items) != 0 || len(sum.EquipmentByStatus) != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestChartsRenderPNG(t *testing.T) {
	pngMagic := []byte("\x89PNG")

	var bars bytes.Buffer
	if err := RenderQuantityChart(&bars, []ItemQuantity{{Name: "GLOVES", Quantity: 40}}); err != nil {
		t.Fatalf("RenderQuantityChart: %v", err)
	}
	if !bytes.HasPrefix(bars.Bytes(), pngMagic) {
		t.Fatal("quantity chart is not a PNG")
	}

	var pie bytes.Buffer
	if err := RenderStatusChart(&pie, map[string]int{"Good": 2, "Need Repair": 1}); err != nil {
		t.Fatalf("RenderStatusChart: %v", err)
	}
	if !bytes.HasPrefix(pie.Bytes(), pngMagic) {
		t.Fatal("status chart is not a PNG")
	}

	var line bytes.Buffer
	records := []storage.HistoryRecord{
		{ItemID: 1, Quantity: 30, Created: t0},
		{ItemID: 1, Quantity: 35, Created: t0.Add(time.Hour)},
	}
	if err := RenderHistoryChart(&line, "GLOVES", records); err != nil {
		t.Fatalf("RenderHistoryChart: %v", err)
	}
	if !bytes.HasPrefix(line.Bytes(), pngMagic) {
		t.Fatal("history chart is not a PNG")
	}
}

func TestChartsWithoutDataReturnNoData(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderQuantityChart(&buf, nil); !errors.Is(err, ErrNoData) {
		t.Fatalf("quantity err = %v", err)
	}
	if err := RenderStatusChart(&buf, map[string]int{"Good": 0}); !errors.Is(err, ErrNoData) {
		t.Fatalf("status err = %v", err)
	}
	if err := RenderHistoryChart(&buf, "X", nil); !errors.Is(err, ErrNoData) {
		t.Fatalf("history err = %v", err)
	}
}

func TestWriteSuppliesCSV(t *testing.T) {
	mem := storagetest.NewMemory()
	seedTrends(mem)
	rows, err := newReportService(mem).Supplies(context.Background())
	if err != nil {
		t.Fatalf("Supplies: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteSuppliesCSV(&buf, rows); err != nil {
		t.Fatalf("WriteSuppliesCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d", len(lines))
	}
	if lines[1] != "1,GLOVES,2,BOX,40,Spiking,33.33" {
		t.Fatalf("first row = %q", lines[1])
	}
}

func TestWriteHistoryCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteHistoryCSV(&buf, "GLOVES", []storage.HistoryRecord{{ItemID: 1, Quantity: 30, Created: t0}})
	if err != nil {
		t.Fatalf("WriteHistoryCSV: %v", err)
	}
	want := "created,item_id,item_name,quantity\n2024-03-01T09:00:00Z,1,GLOVES,30\n"
	if buf.String() != want {
		t.Fatalf("csv = %q", buf.String())
	}
}
