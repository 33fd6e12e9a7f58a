// Package inventory holds the editing rules for supplies and equipment.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"inventuri/internal/storage"
)

// ErrInvalidInput flags a request the rules reject.
var ErrInvalidInput = errors.New("invalid input")

// Equipment condition values.
const (
	StatusGood            = "Good"
	StatusNeedRepair      = "Need Repair"
	StatusNeedMaintenance = "Need Maintenance"

	// FilterAll disables a list filter.
	FilterAll = "All"
)

// Statuses lists the accepted equipment conditions.
var Statuses = []string{StatusGood, StatusNeedRepair, StatusNeedMaintenance}

// ItemInput is the add-supply form.
type ItemInput struct {
	Name     string `json:"item_name"`
	Locker   int    `json:"locker"`
	Unit     string `json:"unit"`
	Quantity int    `json:"quantity"`
}

// EquipmentInput is the add-equipment form.
type EquipmentInput struct {
	Name       string `json:"equipment_name"`
	Department string `json:"department"`
	SerialNum  string `json:"serial_num"`
	Count      int    `json:"count"`
	Status     string `json:"status"`
}

// Availability splits supplies by whether any stock is left.
type Availability struct {
	Available   []storage.Item `json:"available"`
	Unavailable []storage.Item `json:"unavailable"`
}

// Service applies inventory rules on top of the stores.
type Service struct {
	items     storage.ItemStore
	equipment storage.EquipmentStore
	history   storage.HistoryStore
	logger    zerolog.Logger
}

// NewService constructs the inventory service.
func NewService(items storage.ItemStore, equipment storage.EquipmentStore, history storage.HistoryStore, logger zerolog.Logger) *Service {
	return &Service{
		items:     items,
		equipment: equipment,
		history:   history,
		logger:    logger.With().Str("component", "inventory").Logger(),
	}
}

// ListItems returns supplies whose name contains search.
func (s *Service) ListItems(ctx context.Context, search string) ([]storage.Item, error) {
	return s.items.ListItems(ctx, storage.ItemFilter{Search: search})
}

// AddItem adds stock. A supply with the same name (trimmed, case-insensitive)
// absorbs the quantity; otherwise a new supply is created.
func (s *Service) AddItem(ctx context.Context, in ItemInput) (storage.Item, bool, error) {
	name := strings.ToUpper(strings.TrimSpace(in.Name))
	if name == "" || in.Quantity <= 0 {
		return storage.Item{}, false, fmt.Errorf("%w: please enter a valid item name and quantity", ErrInvalidInput)
	}

	existing, err := s.items.FindItemByName(ctx, name)
	switch {
	case err == nil:
		updated, err := s.items.AdjustItemQuantity(ctx, existing.ID, in.Quantity)
		if err != nil {
			return storage.Item{}, false, err
		}
		s.logger.Info().Int64("item_id", updated.ID).Int("added", in.Quantity).Int("quantity", updated.Quantity).Msg("stock merged into existing item")
		return updated, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return storage.Item{}, false, err
	}

	created, err := s.items.InsertItem(ctx, storage.Item{
		Name:     name,
		Locker:   in.Locker,
		Unit:     strings.ToUpper(strings.TrimSpace(in.Unit)),
		Quantity: in.Quantity,
		Avail:    1,
		Stat:     1,
	})
	if err != nil {
		return storage.Item{}, false, err
	}
	s.logger.Info().Int64("item_id", created.ID).Str("name", created.Name).Msg("item created")
	return created, true, nil
}

// UpdateItem edits a supply in place.
func (s *Service) UpdateItem(ctx context.Context, id int64, patch storage.ItemPatch) (storage.Item, error) {
	if patch.Empty() {
		return storage.Item{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if patch.Quantity != nil && *patch.Quantity < 0 {
		return storage.Item{}, fmt.Errorf("%w: quantity cannot be negative", ErrInvalidInput)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return storage.Item{}, fmt.Errorf("%w: item name cannot be empty", ErrInvalidInput)
	}
	return s.items.UpdateItemFields(ctx, id, patch)
}

// DeleteItems removes the selected supplies.
func (s *Service) DeleteItems(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no items selected for deletion", ErrInvalidInput)
	}
	n, err := s.items.DeleteItems(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("deleted", n).Msg("items deleted")
	return n, nil
}

// Availability lists supplies in stock and out of stock.
func (s *Service) Availability(ctx context.Context, search string) (Availability, error) {
	items, err := s.ListItems(ctx, search)
	if err != nil {
		return Availability{}, err
	}
	return SplitAvailability(items), nil
}

// SplitAvailability partitions items on quantity > 0, keeping order.
func SplitAvailability(items []storage.Item) Availability {
	out := Availability{Available: []storage.Item{}, Unavailable: []storage.Item{}}
	for _, item := range items {
		if item.Quantity > 0 {
			out.Available = append(out.Available, item)
		} else {
			out.Unavailable = append(out.Unavailable, item)
		}
	}
	return out
}

// ItemHistory returns the recorded quantities of one supply.
func (s *Service) ItemHistory(ctx context.Context, id int64) ([]storage.HistoryRecord, error) {
	if _, err := s.items.GetItem(ctx, id); err != nil {
		return nil, err
	}
	return s.history.ListHistory(ctx, []int64{id})
}

// ListEquipment returns equipment matching the filters. "All" disables a filter.
func (s *Service) ListEquipment(ctx context.Context, search, status, department string) ([]storage.Equipment, error) {
	return s.equipment.ListEquipment(ctx, storage.EquipmentFilter{
		Search:     search,
		Status:     normalizeFilter(status),
		Department: normalizeFilter(department),
	})
}

// AddEquipment adds equipment. A row with the same name and serial number
// absorbs the count.
func (s *Service) AddEquipment(ctx context.Context, in EquipmentInput) (storage.Equipment, bool, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Count <= 0 {
		return storage.Equipment{}, false, fmt.Errorf("%w: please enter a valid equipment name and count", ErrInvalidInput)
	}
	status, err := normalizeStatus(in.Status)
	if err != nil {
		return storage.Equipment{}, false, err
	}

	existing, err := s.equipment.FindEquipment(ctx, name, in.SerialNum)
	switch {
	case err == nil:
		updated, err := s.equipment.AdjustEquipmentCount(ctx, existing.ID, in.Count)
		if err != nil {
			return storage.Equipment{}, false, err
		}
		s.logger.Info().Int64("equipment_id", updated.ID).Int("count", updated.Count).Msg("count merged into existing equipment")
		return updated, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return storage.Equipment{}, false, err
	}

	created, err := s.equipment.InsertEquipment(ctx, storage.Equipment{
		Name:       name,
		Department: strings.TrimSpace(in.Department),
		SerialNum:  strings.TrimSpace(in.SerialNum),
		Count:      in.Count,
		Status:     status,
	})
	if err != nil {
		return storage.Equipment{}, false, err
	}
	return created, true, nil
}

// UpdateEquipment edits equipment in place.
func (s *Service) UpdateEquipment(ctx context.Context, id int64, patch storage.EquipmentPatch) (storage.Equipment, error) {
	if patch.Empty() {
		return storage.Equipment{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if patch.Count != nil && *patch.Count < 0 {
		return storage.Equipment{}, fmt.Errorf("%w: count cannot be negative", ErrInvalidInput)
	}
	if patch.Status != nil {
		status, err := normalizeStatus(*patch.Status)
		if err != nil {
			return storage.Equipment{}, err
		}
		patch.Status = &status
	}
	return s.equipment.UpdateEquipmentFields(ctx, id, patch)
}

// DeleteEquipment removes the selected equipment.
func (s *Service) DeleteEquipment(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no equipment selected for deletion", ErrInvalidInput)
	}
	return s.equipment.DeleteEquipment(ctx, ids)
}

func normalizeFilter(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, FilterAll) {
		return ""
	}
	return v
}

// normalizeStatus maps a status onto its canonical spelling. Empty means Good.
func normalizeStatus(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return StatusGood, nil
	}
	for _, status := range Statuses {
		if strings.EqualFold(v, status) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, v)
}
