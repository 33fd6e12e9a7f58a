// Package trend classifies the recent direction of an item's stock level from
// its quantity history.
package trend

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// WindowSize is the number of trailing observations considered.
const WindowSize = 3

// Label is the qualitative trend of an item.
type Label string

const (
	Stable     Label = "Stable"
	Spiking    Label = "Spiking"
	Decreasing Label = "Decreasing"
)

// String implements fmt.Stringer.
func (l Label) String() string { return string(l) }

// Observation is one historical stock reading.
type Observation struct {
	ItemID     int64     `json:"item_id"`
	Quantity   int       `json:"quantity"`
	ObservedAt time.Time `json:"observed_at"`
}

// Classify labels a history that is already ordered by ObservedAt ascending.
// Only the trailing window is inspected and each consecutive pair casts one
// vote; magnitude is ignored.
func Classify(history []Observation) Label {
	if len(history) < 2 {
		return Stable
	}

	window := Window(history)
	increasing, decreasing := 0, 0
	for i := 1; i < len(window); i++ {
		prev, curr := window[i-1].Quantity, window[i].Quantity
		switch {
		case curr > prev:
			increasing++
		case curr < prev:
			decreasing++
		}
	}

	switch {
	case increasing > decreasing:
		return Spiking
	case decreasing > increasing:
		return Decreasing
	default:
		return Stable
	}
}

// Window returns the trailing observations used by Classify. The result
// shares the backing array with history.
func Window(history []Observation) []Observation {
	if len(history) <= WindowSize {
		return history
	}
	return history[len(history)-WindowSize:]
}

// WindowChange reports the percentage change between the first and last
// observation of the window, rounded to two places. Zero when the window has
// fewer than two points or starts from zero stock.
func WindowChange(history []Observation) decimal.Decimal {
	window := Window(history)
	if len(window) < 2 {
		return decimal.Zero
	}
	first := decimal.NewFromInt(int64(window[0].Quantity))
	if first.IsZero() {
		return decimal.Zero
	}
	last := decimal.NewFromInt(int64(window[len(window)-1].Quantity))
	return last.Sub(first).Div(first).Mul(decimal.NewFromInt(100)).Round(2)
}

// GroupByItem buckets observations per item, keeping arrival order inside
// each bucket.
func GroupByItem(history []Observation) map[int64][]Observation {
	groups := make(map[int64][]Observation)
	for _, obs := range history {
		groups[obs.ItemID] = append(groups[obs.ItemID], obs)
	}
	return groups
}

// Assign labels every id in itemIDs. Ids without history are Stable.
func Assign(itemIDs []int64, groups map[int64][]Observation) map[int64]Label {
	labels := make(map[int64]Label, len(itemIDs))
	for _, id := range itemIDs {
		labels[id] = Classify(groups[id])
	}
	return labels
}

// LabelOf looks up id in labels and defaults to Stable.
func LabelOf(labels map[int64]Label, id int64) Label {
	if label, ok := labels[id]; ok && label != "" {
		return label
	}
	return Stable
}

// SortByObservedAt orders history in place by timestamp, keeping arrival
// order for equal timestamps. Classify does not call it.
func SortByObservedAt(history []Observation) {
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].ObservedAt.Before(history[j].ObservedAt)
	})
}
