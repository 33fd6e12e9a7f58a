package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"inventuri/internal/storage"
	"inventuri/internal/storage/storagetest"
)

func newService() (*Service, *storagetest.Memory) {
	mem := storagetest.NewMemory()
	return NewService(mem, mem, mem, zerolog.Nop()), mem
}

func TestAddItemCreatesUppercased(t *testing.T) {
	svc, mem := newService()

	item, created, err := svc.AddItem(context.Background(), ItemInput{Name: " gloves ", Unit: "box", Locker: 2, Quantity: 40})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if !created {
		t.Fatal("expected a new item")
	}
	if item.Name != "GLOVES" || item.Unit != "BOX" || item.Avail != 1 || item.Stat != 1 {
		t.Fatalf("unexpected item %+v", item)
	}
	if h := mem.History(); len(h) != 1 || h[0].Quantity != 40 {
		t.Fatalf("opening quantity not recorded: %+v", h)
	}
}

func TestAddItemMergesCaseInsensitive(t *testing.T) {
	svc, mem := newService()
	ctx := context.Background()

	first, _, err := svc.AddItem(ctx, ItemInput{Name: "Gloves", Quantity: 40})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	merged, created, err := svc.AddItem(ctx, ItemInput{Name: "  GLOVES", Quantity: 5})
	if err != nil {
		t.Fatalf("AddItem merge: %v", err)
	}
	if created {
		t.Fatal("expected merge, got create")
	}
	if merged.ID != first.ID || merged.Quantity != 45 {
		t.Fatalf("merged = %+v", merged)
	}
	if h := mem.History(); len(h) != 2 || h[1].Quantity != 45 {
		t.Fatalf("history = %+v", h)
	}
}

func TestAddItemRejectsInvalidInput(t *testing.T) {
	svc, _ := newService()
	cases := []ItemInput{
		{Name: "", Quantity: 3},
		{Name: "MASKS", Quantity: 0},
		{Name: "MASKS", Quantity: -4},
	}
	for _, in := range cases {
		if _, _, err := svc.AddItem(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("AddItem(%+v) err = %v", in, err)
		}
	}
}

func TestUpdateItemRejectsNegativeQuantity(t *testing.T) {
	svc, mem := newService()
	item := mem.SeedItem(storage.Item{Name: "MASKS", Quantity: 3})
	qty := -1
	if _, err := svc.UpdateItem(context.Background(), item.ID, storage.ItemPatch{Quantity: &qty}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestUpdateItemUnknownID(t *testing.T) {
	svc, _ := newService()
	qty := 2
	if _, err := svc.UpdateItem(context.Background(), 404, storage.ItemPatch{Quantity: &qty}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeleteItemsRequiresSelection(t *testing.T) {
	svc, mem := newService()
	if _, err := svc.DeleteItems(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	a := mem.SeedItem(storage.Item{Name: "A", Quantity: 1})
	mem.SeedItem(storage.Item{Name: "B", Quantity: 1})
	n, err := svc.DeleteItems(context.Background(), []int64{a.ID})
	if err != nil || n != 1 {
		t.Fatalf("DeleteItems = %d, %v", n, err)
	}
}

func TestSplitAvailability(t *testing.T) {
	items := []storage.Item{
		{ID: 1, Quantity: 3},
		{ID: 2, Quantity: 0},
		{ID: 3, Quantity: -1},
		{ID: 4, Quantity: 1},
	}
	got := SplitAvailability(items)
	if len(got.Available) != 2 || got.Available[0].ID != 1 || got.Available[1].ID != 4 {
		t.Fatalf("available = %+v", got.Available)
	}
	if len(got.Unavailable) != 2 || got.Unavailable[0].ID != 2 {
		t.Fatalf("unavailable = %+v", got.Unavailable)
	}
}

func TestAddEquipmentMergesOnNameAndSerial(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	first, created, err := svc.AddEquipment(ctx, EquipmentInput{Name: "Ventilator", SerialNum: "SN-1", Count: 1, Department: "ICU"})
	if err != nil || !created {
		t.Fatalf("AddEquipment = %+v, %v, %v", first, created, err)
	}
	if first.Status != StatusGood {
		t.Fatalf("default status = %q", first.Status)
	}

	merged, created, err := svc.AddEquipment(ctx, EquipmentInput{Name: "ventilator ", SerialNum: "sn-1", Count: 2})
	if err != nil || created || merged.Count != 3 {
		t.Fatalf("merge = %+v, %v, %v", merged, created, err)
	}

	other, created, err := svc.AddEquipment(ctx, EquipmentInput{Name: "Ventilator", SerialNum: "SN-2", Count: 1, Status: "need repair"})
	if err != nil || !created || other.Status != StatusNeedRepair {
		t.Fatalf("different serial = %+v, %v, %v", other, created, err)
	}
}

func TestAddEquipmentRejectsUnknownStatus(t *testing.T) {
	svc, _ := newService()
	_, _, err := svc.AddEquipment(context.Background(), EquipmentInput{Name: "Bed", Count: 1, Status: "Broken-ish"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestListEquipmentAllDisablesFilter(t *testing.T) {
	svc, mem := newService()
	mem.SeedEquipment(storage.Equipment{Name: "Bed", Status: StatusGood, Department: "ER"})
	mem.SeedEquipment(storage.Equipment{Name: "Pump", Status: StatusNeedRepair, Department: "ICU"})

	all, err := svc.ListEquipment(context.Background(), "", FilterAll, "all")
	if err != nil || len(all) != 2 {
		t.Fatalf("all = %d, %v", len(all), err)
	}
	repair, err := svc.ListEquipment(context.Background(), "", StatusNeedRepair, FilterAll)
	if err != nil || len(repair) != 1 || repair[0].Name != "Pump" {
		t.Fatalf("repair = %+v, %v", repair, err)
	}
}

func TestItemHistoryUnknownItem(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.ItemHistory(context.Background(), 77); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
