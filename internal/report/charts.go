package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"inventuri/internal/storage"
)

const (
	chartWidth  = 1280
	chartHeight = 720
)

// RenderQuantityChart draws one bar per item quantity as PNG.
func RenderQuantityChart(w io.Writer, items []ItemQuantity) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items to chart", ErrNoData)
	}

	bars := make([]chart.Value, len(items))
	lo, hi := 0.0, 1.0
	for i, item := range items {
		v := float64(item.Quantity)
		bars[i] = chart.Value{Label: item.Name, Value: v}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	graph := chart.BarChart{
		Title:        "Item Quantities",
		Width:        chartWidth,
		Height:       chartHeight,
		BarWidth:     40,
		UseBaseValue: true,
		BaseValue:    0,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Bars: bars,
	}
	return graph.Render(chart.PNG, w)
}

// RenderStatusChart draws equipment counts per status as a PNG pie.
func RenderStatusChart(w io.Writer, byStatus map[string]int) error {
	statuses := make([]string, 0, len(byStatus))
	for status, n := range byStatus {
		if n > 0 {
			statuses = append(statuses, status)
		}
	}
	if len(statuses) == 0 {
		return fmt.Errorf("%w: no equipment to chart", ErrNoData)
	}
	sort.Strings(statuses)

	values := make([]chart.Value, len(statuses))
	for i, status := range statuses {
		values[i] = chart.Value{Label: fmt.Sprintf("%s (%d)", status, byStatus[status]), Value: float64(byStatus[status])}
	}

	graph := chart.PieChart{
		Title:  "Equipment Status",
		Width:  chartHeight,
		Height: chartHeight,
		Values: values,
	}
	return graph.Render(chart.PNG, w)
}

// RenderHistoryChart draws the quantity history of one item as PNG.
func RenderHistoryChart(w io.Writer, name string, records []storage.HistoryRecord) error {
	if len(records) < 2 {
		return fmt.Errorf("%w: need at least two history points", ErrNoData)
	}

	x := make([]time.Time, len(records))
	y := make([]float64, len(records))
	for i, rec := range records {
		x[i] = rec.Created
		y[i] = float64(rec.Quantity)
	}

	graph := chart.Chart{
		Width:  chartWidth,
		Height: chartHeight,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Quantity",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    name,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return graph.Render(chart.PNG, w)
}
