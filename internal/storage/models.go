package storage

import (
	"time"

	"inventuri/internal/trend"
)

// Item is a consumable supply tracked by quantity.
type Item struct {
	ID        int64     `json:"id"`
	Name      string    `json:"item_name"`
	Locker    int       `json:"locker"`
	Unit      string    `json:"unit"`
	Quantity  int       `json:"quantity"`
	Avail     int       `json:"avail"`
	Stat      int       `json:"stat"`
	CreatedAt time.Time `json:"created_at"`
}

// ItemPatch carries the editable item columns; nil fields are left untouched.
type ItemPatch struct {
	Name     *string `json:"item_name,omitempty"`
	Locker   *int    `json:"locker,omitempty"`
	Unit     *string `json:"unit,omitempty"`
	Quantity *int    `json:"quantity,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.Name == nil && p.Locker == nil && p.Unit == nil && p.Quantity == nil
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	Search string
}

// Equipment is a durable asset tracked by count and condition.
type Equipment struct {
	ID         int64     `json:"id"`
	Name       string    `json:"equipment_name"`
	Department string    `json:"department"`
	SerialNum  string    `json:"serial_num"`
	Count      int       `json:"count"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// EquipmentPatch carries the editable equipment columns.
type EquipmentPatch struct {
	Name       *string `json:"equipment_name,omitempty"`
	Department *string `json:"department,omitempty"`
	SerialNum  *string `json:"serial_num,omitempty"`
	Count      *int    `json:"count,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p EquipmentPatch) Empty() bool {
	return p.Name == nil && p.Department == nil && p.SerialNum == nil && p.Count == nil && p.Status == nil
}

// EquipmentFilter narrows ListEquipment. Empty fields match everything.
type EquipmentFilter struct {
	Search     string
	Status     string
	Department string
}

// HistoryRecord is one row of h_table.
type HistoryRecord struct {
	ItemID   int64     `json:"item_id"`
	Quantity int       `json:"quantity"`
	Created  time.Time `json:"created"`
}

// Observation converts the row for trend classification.
func (h HistoryRecord) Observation() trend.Observation {
	return trend.Observation{ItemID: h.ItemID, Quantity: h.Quantity, ObservedAt: h.Created}
}

// Observations converts a slice of rows, preserving order.
func Observations(records []HistoryRecord) []trend.Observation {
	out := make([]trend.Observation, len(records))
	for i, rec := range records {
		out[i] = rec.Observation()
	}
	return out
}

// Account is a stored login.
type Account struct {
	Username string
	Password string
}

// ChangeEvent is the payload published by the change-notification trigger.
type ChangeEvent struct {
	Table string `json:"table"`
	Op    string `json:"op"`
	ID    int64  `json:"id"`
}
