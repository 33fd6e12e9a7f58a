// Package storagetest provides an in-memory store for tests.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"inventuri/internal/storage"
)

// Memory implements the storage interfaces over maps. Errors set on the
// exported fields are returned by the matching operations.
type Memory struct {
	mu        sync.Mutex
	nextID    int64
	clock     time.Time
	items     map[int64]storage.Item
	equipment map[int64]storage.Equipment
	history   []storage.HistoryRecord
	accounts  map[string]storage.Account

	ListItemsErr   error
	ListHistoryErr error
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		items:     make(map[int64]storage.Item),
		equipment: make(map[int64]storage.Equipment),
		accounts:  make(map[string]storage.Account),
	}
}

func (m *Memory) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// SeedItem stores item as-is (without history) and returns it with an id.
func (m *Memory) SeedItem(item storage.Item) storage.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == 0 {
		item.ID = m.id()
	} else if item.ID > m.nextID {
		m.nextID = item.ID
	}
	m.items[item.ID] = item
	return item
}

// SeedHistory appends a raw history row.
func (m *Memory) SeedHistory(itemID int64, quantity int, created time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, storage.HistoryRecord{ItemID: itemID, Quantity: quantity, Created: created})
}

// SeedAccount stores a login.
func (m *Memory) SeedAccount(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[username] = storage.Account{Username: username, Password: password}
}

// SeedEquipment stores equipment as-is.
func (m *Memory) SeedEquipment(eq storage.Equipment) storage.Equipment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if eq.ID == 0 {
		eq.ID = m.id()
	}
	m.equipment[eq.ID] = eq
	return eq
}

// History returns a copy of all history rows in arrival order.
func (m *Memory) History() []storage.HistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.HistoryRecord(nil), m.history...)
}

func (m *Memory) record(itemID int64, quantity int) {
	m.history = append(m.history, storage.HistoryRecord{ItemID: itemID, Quantity: quantity, Created: m.tick()})
}

func (m *Memory) ListItems(_ context.Context, filter storage.ItemFilter) ([]storage.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListItemsErr != nil {
		return nil, m.ListItemsErr
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]storage.Item, 0, len(m.items))
	for _, item := range m.items {
		if search != "" && !strings.Contains(strings.ToLower(item.Name), search) {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetItem(_ context.Context, id int64) (storage.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return storage.Item{}, fmt.Errorf("get item: %w", storage.ErrNotFound)
	}
	return item, nil
}

func (m *Memory) FindItemByName(_ context.Context, name string) (storage.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := strings.ToLower(strings.TrimSpace(name))
	var found *storage.Item
	for _, item := range m.items {
		if strings.ToLower(strings.TrimSpace(item.Name)) != want {
			continue
		}
		if found == nil || item.ID < found.ID {
			copyItem := item
			found = &copyItem
		}
	}
	if found == nil {
		return storage.Item{}, fmt.Errorf("find item: %w", storage.ErrNotFound)
	}
	return *found, nil
}

func (m *Memory) InsertItem(_ context.Context, item storage.Item) (storage.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = m.id()
	item.CreatedAt = m.tick()
	m.items[item.ID] = item
	m.record(item.ID, item.Quantity)
	return item, nil
}

func (m *Memory) AdjustItemQuantity(_ context.Context, id int64, delta int) (storage.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return storage.Item{}, fmt.Errorf("adjust item: %w", storage.ErrNotFound)
	}
	item.Quantity += delta
	m.items[id] = item
	m.record(id, item.Quantity)
	return item, nil
}

func (m *Memory) UpdateItemFields(_ context.Context, id int64, patch storage.ItemPatch) (storage.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return storage.Item{}, fmt.Errorf("update item: %w", storage.ErrNotFound)
	}
	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.Locker != nil {
		item.Locker = *patch.Locker
	}
	if patch.Unit != nil {
		item.Unit = *patch.Unit
	}
	if patch.Quantity != nil {
		item.Quantity = *patch.Quantity
		m.record(id, item.Quantity)
	}
	m.items[id] = item
	return item, nil
}

func (m *Memory) DeleteItems(_ context.Context, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.items[id]; ok {
			delete(m.items, id)
			n++
		}
	}
	kept := m.history[:0]
	for _, rec := range m.history {
		if _, ok := m.items[rec.ItemID]; ok {
			kept = append(kept, rec)
		}
	}
	m.history = kept
	return n, nil
}

func (m *Memory) ListEquipment(_ context.Context, filter storage.EquipmentFilter) ([]storage.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]storage.Equipment, 0, len(m.equipment))
	for _, eq := range m.equipment {
		if search != "" && !strings.Contains(strings.ToLower(eq.Name), search) && !strings.Contains(strings.ToLower(eq.SerialNum), search) {
			continue
		}
		if filter.Status != "" && eq.Status != filter.Status {
			continue
		}
		if filter.Department != "" && eq.Department != filter.Department {
			continue
		}
		out = append(out, eq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetEquipment(_ context.Context, id int64) (storage.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eq, ok := m.equipment[id]
	if !ok {
		return storage.Equipment{}, fmt.Errorf("get equipment: %w", storage.ErrNotFound)
	}
	return eq, nil
}

func (m *Memory) FindEquipment(_ context.Context, name, serial string) (storage.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, eq := range m.equipment {
		if strings.EqualFold(strings.TrimSpace(eq.Name), strings.TrimSpace(name)) &&
			strings.EqualFold(strings.TrimSpace(eq.SerialNum), strings.TrimSpace(serial)) {
			return eq, nil
		}
	}
	return storage.Equipment{}, fmt.Errorf("find equipment: %w", storage.ErrNotFound)
}

func (m *Memory) InsertEquipment(_ context.Context, eq storage.Equipment) (storage.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eq.ID = m.id()
	eq.CreatedAt = m.tick()
	m.equipment[eq.ID] = eq
	return eq, nil
}

func (m *Memory) AdjustEquipmentCount(_ context.Context, id int64, delta int) (storage.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eq, ok := m.equipment[id]
	if !ok {
		return storage.Equipment{}, fmt.Errorf("adjust equipment: %w", storage.ErrNotFound)
	}
	eq.Count += delta
	m.equipment[id] = eq
	return eq, nil
}

func (m *Memory) UpdateEquipmentFields(_ context.Context, id int64, patch storage.EquipmentPatch) (storage.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eq, ok := m.equipment[id]
	if !ok {
		return storage.Equipment{}, fmt.Errorf("update equipment: %w", storage.ErrNotFound)
	}
	if patch.Name != nil {
		eq.Name = *patch.Name
	}
	if patch.Department != nil {
		eq.Department = *patch.Department
	}
	if patch.SerialNum != nil {
		eq.SerialNum = *patch.SerialNum
	}
	if patch.Count != nil {
		eq.Count = *patch.Count
	}
	if patch.Status != nil {
		eq.Status = *patch.Status
	}
	m.equipment[id] = eq
	return eq, nil
}

func (m *Memory) DeleteEquipment(_ context.Context, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.equipment[id]; ok {
			delete(m.equipment, id)
			n++
		}
	}
	return n, nil
}

// ListHistory returns rows for itemIDs sorted by Created, stable on arrival.
func (m *Memory) ListHistory(_ context.Context, itemIDs []int64) ([]storage.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListHistoryErr != nil {
		return nil, m.ListHistoryErr
	}
	want := make(map[int64]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		want[id] = struct{}{}
	}
	out := make([]storage.HistoryRecord, 0)
	for _, rec := range m.history {
		if _, ok := want[rec.ItemID]; ok {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

func (m *Memory) InsertHistory(_ context.Context, itemID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(itemID, quantity)
	return nil
}

func (m *Memory) ItemsWithoutHistory(_ context.Context) ([]storage.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]bool)
	for _, rec := range m.history {
		seen[rec.ItemID] = true
	}
	out := make([]storage.Item, 0)
	for _, item := range m.items {
		if !seen[item.ID] {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetAccount(_ context.Context, username string) (storage.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[username]
	if !ok {
		return storage.Account{}, fmt.Errorf("get account: %w", storage.ErrNotFound)
	}
	return acc, nil
}

var (
	_ storage.ItemStore      = (*Memory)(nil)
	_ storage.EquipmentStore = (*Memory)(nil)
	_ storage.HistoryStore   = (*Memory)(nil)
	_ storage.AccountStore   = (*Memory)(nil)
)
