package trend

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func series(id int64, quantities ...int) []Observation {
	out := make([]Observation, len(quantities))
	for i, q := range quantities {
		out[i] = Observation{ItemID: id, Quantity: q, ObservedAt: base.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

func TestClassifyInsufficientData(t *testing.T) {
	if got := Classify(nil); got != Stable {
		t.Fatalf("empty history = %s", got)
	}
	if got := Classify(series(1, 42)); got != Stable {
		t.Fatalf("single observation = %s", got)
	}
}

func TestClassifyTwoPoints(t *testing.T) {
	cases := []struct {
		name string
		in   []Observation
		want Label
	}{
		{"rise", series(1, 5, 8), Spiking},
		{"fall", series(1, 8, 5), Decreasing},
		{"flat", series(1, 5, 5), Stable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.in); got != tc.want {
				t.Fatalf("Classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifyTieIgnoresMagnitude(t *testing.T) {
	if got := Classify(series(1, 1, 1000, 1)); got != Stable {
		t.Fatalf("up then down = %s", got)
	}
	if got := Classify(series(1, 1000, 1, 999)); got != Stable {
		t.Fatalf("down then up = %s", got)
	}
}

func TestClassifyFlatPairsDoNotVote(t *testing.T) {
	if got := Classify(series(1, 3, 3, 4)); got != Spiking {
		t.Fatalf("flat then rise = %s", got)
	}
	if got := Classify(series(1, 4, 2, 2)); got != Decreasing {
		t.Fatalf("fall then flat = %s", got)
	}
	if got := Classify(series(1, 7, 7, 7)); got != Stable {
		t.Fatalf("all flat = %s", got)
	}
}

func TestClassifyOnlyWindowMatters(t *testing.T) {
	history := series(1, 1, 100, 2, 1, 2)
	want := Classify(history[len(history)-3:])
	if got := Classify(history); got != want {
		t.Fatalf("full history = %s, window only = %s", got, want)
	}
	if want != Stable {
		t.Fatalf("window (2,1,2) = %s, want Stable", want)
	}

	prefixed := append(series(1, 900, 0, 900, 0), history...)
	if got := Classify(prefixed); got != want {
		t.Fatalf("prepending history changed label: %s", got)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	history := series(1, 10, 12, 9, 15)
	first := Classify(history)
	for i := 0; i < 100; i++ {
		if got := Classify(history); got != first {
			t.Fatalf("run %d = %s, first = %s", i, got, first)
		}
	}
}

func TestClassifyDoesNotReorderInput(t *testing.T) {
	// Unsorted input is classified in the order given.
	history := []Observation{
		{ItemID: 1, Quantity: 10, ObservedAt: base.Add(2 * time.Hour)},
		{ItemID: 1, Quantity: 5, ObservedAt: base},
	}
	if got := Classify(history); got != Decreasing {
		t.Fatalf("Classify = %s, want Decreasing", got)
	}
	if !history[0].ObservedAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatal("Classify mutated its input")
	}
}

func TestSortByObservedAtIsStable(t *testing.T) {
	history := []Observation{
		{ItemID: 1, Quantity: 3, ObservedAt: base.Add(time.Hour)},
		{ItemID: 1, Quantity: 1, ObservedAt: base},
		{ItemID: 1, Quantity: 2, ObservedAt: base},
	}
	SortByObservedAt(history)
	got := []int{history[0].Quantity, history[1].Quantity, history[2].Quantity}
	if got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("sorted quantities = %v", got)
	}
	if Classify(history) != Spiking {
		t.Fatalf("sorted history should be Spiking")
	}
}

func TestGroupByItemKeepsArrivalOrder(t *testing.T) {
	history := []Observation{
		{ItemID: 1, Quantity: 1},
		{ItemID: 2, Quantity: 9},
		{ItemID: 1, Quantity: 2},
		{ItemID: 1, Quantity: 3},
	}
	groups := GroupByItem(history)
	if len(groups) != 2 {
		t.Fatalf("groups = %d", len(groups))
	}
	a := groups[1]
	if len(a) != 3 || a[0].Quantity != 1 || a[1].Quantity != 2 || a[2].Quantity != 3 {
		t.Fatalf("group 1 = %+v", a)
	}
}

func TestAssignIsTotal(t *testing.T) {
	groups := GroupByItem(series(1, 30, 35, 40))
	labels := Assign([]int64{1, 2}, groups)
	if labels[1] != Spiking {
		t.Fatalf("item 1 = %s", labels[1])
	}
	if got, ok := labels[2]; !ok || got != Stable {
		t.Fatalf("item 2 = %q (present=%v)", got, ok)
	}
	if LabelOf(labels, 99) != Stable {
		t.Fatal("LabelOf unknown id must default to Stable")
	}
}

func TestWindowChange(t *testing.T) {
	if !WindowChange(series(1, 5)).IsZero() {
		t.Fatal("single point change must be zero")
	}
	if !WindowChange(series(1, 0, 4)).IsZero() {
		t.Fatal("change from zero must be zero")
	}
	got := WindowChange(series(1, 999, 40, 30, 10))
	if !got.Equal(decimal.NewFromInt(-75)) {
		t.Fatalf("change = %s, want -75", got)
	}
}
