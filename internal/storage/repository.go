package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates no row matched the lookup.
	ErrNotFound = errors.New("storage: not found")
)

const (
	itemColumns      = `id, item_name, locker, unit, quantity, avail, stat, created_at`
	equipmentColumns = `id, equipment_name, department, serial_num, count, status, created_at`

	listItemsSQL = `SELECT ` + itemColumns + `
    FROM items
    WHERE ($1 = '' OR item_name ILIKE '%' || $1 || '%')
    ORDER BY id;`

	getItemSQL = `SELECT ` + itemColumns + ` FROM items WHERE id = $1;`

	findItemByNameSQL = `SELECT ` + itemColumns + `
    FROM items
    WHERE lower(trim(item_name)) = lower(trim($1))
    ORDER BY id
    LIMIT 1;`

	insertItemSQL = `INSERT INTO items (
        item_name,
        locker,
        unit,
        quantity,
        avail,
        stat
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING ` + itemColumns + `;`

	adjustItemQuantitySQL = `UPDATE items
    SET quantity = quantity + $2
    WHERE id = $1
    RETURNING ` + itemColumns + `;`

	deleteItemsSQL = `DELETE FROM items WHERE id = ANY($1);`

	listEquipmentSQL = `SELECT ` + equipmentColumns + `
    FROM equipment
    WHERE ($1 = '' OR equipment_name ILIKE '%' || $1 || '%' OR serial_num ILIKE '%' || $1 || '%')
      AND ($2 = '' OR status = $2)
      AND ($3 = '' OR department = $3)
    ORDER BY id;`

	getEquipmentSQL = `SELECT ` + equipmentColumns + ` FROM equipment WHERE id = $1;`

	findEquipmentSQL = `SELECT ` + equipmentColumns + `
    FROM equipment
    WHERE lower(trim(equipment_name)) = lower(trim($1))
      AND lower(trim(serial_num)) = lower(trim($2))
    ORDER BY id
    LIMIT 1;`

	insertEquipmentSQL = `INSERT INTO equipment (
        equipment_name,
        department,
        serial_num,
        count,
        status
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING ` + equipmentColumns + `;`

	adjustEquipmentCountSQL = `UPDATE equipment
    SET count = count + $2
    WHERE id = $1
    RETURNING ` + equipmentColumns + `;`

	deleteEquipmentSQL = `DELETE FROM equipment WHERE id = ANY($1);`

	insertHistorySQL = `INSERT INTO h_table (item_id, quantity) VALUES ($1, $2);`

	listHistorySQL = `SELECT item_id, quantity, created
    FROM h_table
    WHERE item_id = ANY($1)
    ORDER BY created ASC, id ASC;`

	itemsWithoutHistorySQL = `SELECT ` + itemColumns + `
    FROM items i
    WHERE NOT EXISTS (SELECT 1 FROM h_table h WHERE h.item_id = i.id)
    ORDER BY id;`

	getAccountSQL = `SELECT username, pass FROM accounts WHERE username = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DB is the subset of pgxpool.Pool used by Store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ItemStore defines operations on supplies.
type ItemStore interface {
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	FindItemByName(ctx context.Context, name string) (Item, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	AdjustItemQuantity(ctx context.Context, id int64, delta int) (Item, error)
	UpdateItemFields(ctx context.Context, id int64, patch ItemPatch) (Item, error)
	DeleteItems(ctx context.Context, ids []int64) (int64, error)
}

// EquipmentStore defines operations on equipment.
type EquipmentStore interface {
	ListEquipment(ctx context.Context, filter EquipmentFilter) ([]Equipment, error)
	GetEquipment(ctx context.Context, id int64) (Equipment, error)
	FindEquipment(ctx context.Context, name, serial string) (Equipment, error)
	InsertEquipment(ctx context.Context, eq Equipment) (Equipment, error)
	AdjustEquipmentCount(ctx context.Context, id int64, delta int) (Equipment, error)
	UpdateEquipmentFields(ctx context.Context, id int64, patch EquipmentPatch) (Equipment, error)
	DeleteEquipment(ctx context.Context, ids []int64) (int64, error)
}

// HistoryStore defines access to quantity history.
type HistoryStore interface {
	ListHistory(ctx context.Context, itemIDs []int64) ([]HistoryRecord, error)
	InsertHistory(ctx context.Context, itemID int64, quantity int) error
	ItemsWithoutHistory(ctx context.Context) ([]Item, error)
}

// AccountStore resolves logins.
type AccountStore interface {
	GetAccount(ctx context.Context, username string) (Account, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to the inventory tables.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		return &Store{}
	}
	return &Store{db: pool, pool: pool}
}

// NewStoreWithDB wires an arbitrary DB; advisory locks and LISTEN need a
// real pool and report ErrNotConfigured otherwise.
func NewStoreWithDB(db DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getDB() (DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock dies with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// ListItems lists supplies, optionally filtered by a name substring.
func (s *Store) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, queryErr := db.Query(ctx, listItemsSQL, strings.TrimSpace(filter.Search))
	if queryErr != nil {
		return nil, fmt.Errorf("list items: %w", queryErr)
	}
	return collectItems(rows)
}

// GetItem loads one supply.
func (s *Store) GetItem(ctx context.Context, id int64) (Item, error) {
	db, err := s.getDB()
	if err != nil {
		return Item{}, err
	}
	item, scanErr := scanItem(db.QueryRow(ctx, getItemSQL, id))
	if scanErr != nil {
		return Item{}, wrapNoRows("get item", scanErr)
	}
	return item, nil
}

// FindItemByName matches a supply by trimmed, case-insensitive name.
func (s *Store) FindItemByName(ctx context.Context, name string) (Item, error) {
	db, err := s.getDB()
	if err != nil {
		return Item{}, err
	}
	item, scanErr := scanItem(db.QueryRow(ctx, findItemByNameSQL, name))
	if scanErr != nil {
		return Item{}, wrapNoRows("find item by name", scanErr)
	}
	return item, nil
}

// InsertItem stores a new supply and records its opening quantity.
func (s *Store) InsertItem(ctx context.Context, item Item) (Item, error) {
	var created Item
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var scanErr error
		created, scanErr = scanItem(tx.QueryRow(ctx, insertItemSQL,
			item.Name,
			item.Locker,
			item.Unit,
			item.Quantity,
			item.Avail,
			item.Stat,
		))
		if scanErr != nil {
			return fmt.Errorf("insert item: %w", scanErr)
		}
		return recordHistory(ctx, tx, created.ID, created.Quantity)
	})
	if err != nil {
		return Item{}, err
	}
	return created, nil
}

// AdjustItemQuantity adds delta to the stored quantity and records the result.
func (s *Store) AdjustItemQuantity(ctx context.Context, id int64, delta int) (Item, error) {
	var updated Item
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var scanErr error
		updated, scanErr = scanItem(tx.QueryRow(ctx, adjustItemQuantitySQL, id, delta))
		if scanErr != nil {
			return wrapNoRows("adjust item quantity", scanErr)
		}
		return recordHistory(ctx, tx, updated.ID, updated.Quantity)
	})
	if err != nil {
		return Item{}, err
	}
	return updated, nil
}

// UpdateItemFields applies a partial update. A quantity change is recorded in
// the history within the same transaction.
func (s *Store) UpdateItemFields(ctx context.Context, id int64, patch ItemPatch) (Item, error) {
	if patch.Empty() {
		return s.GetItem(ctx, id)
	}

	set := &setBuilder{}
	if patch.Name != nil {
		set.add("item_name", *patch.Name)
	}
	if patch.Locker != nil {
		set.add("locker", *patch.Locker)
	}
	if patch.Unit != nil {
		set.add("unit", *patch.Unit)
	}
	if patch.Quantity != nil {
		set.add("quantity", *patch.Quantity)
	}
	query, args := set.update("items", itemColumns, id)

	var updated Item
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var scanErr error
		updated, scanErr = scanItem(tx.QueryRow(ctx, query, args...))
		if scanErr != nil {
			return wrapNoRows("update item", scanErr)
		}
		if patch.Quantity == nil {
			return nil
		}
		return recordHistory(ctx, tx, updated.ID, updated.Quantity)
	})
	if err != nil {
		return Item{}, err
	}
	return updated, nil
}

// DeleteItems removes supplies by id; their history cascades.
func (s *Store) DeleteItems(ctx context.Context, ids []int64) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	tag, execErr := db.Exec(ctx, deleteItemsSQL, ids)
	if execErr != nil {
		return 0, fmt.Errorf("delete items: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// ListEquipment lists equipment matching the filter.
func (s *Store) ListEquipment(ctx context.Context, filter EquipmentFilter) ([]Equipment, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, queryErr := db.Query(ctx, listEquipmentSQL,
		strings.TrimSpace(filter.Search),
		strings.TrimSpace(filter.Status),
		strings.TrimSpace(filter.Department),
	)
	if queryErr != nil {
		return nil, fmt.Errorf("list equipment: %w", queryErr)
	}
	defer rows.Close()

	out := make([]Equipment, 0)
	for rows.Next() {
		eq, scanErr := scanEquipment(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, eq)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// GetEquipment loads one equipment row.
func (s *Store) GetEquipment(ctx context.Context, id int64) (Equipment, error) {
	db, err := s.getDB()
	if err != nil {
		return Equipment{}, err
	}
	eq, scanErr := scanEquipment(db.QueryRow(ctx, getEquipmentSQL, id))
	if scanErr != nil {
		return Equipment{}, wrapNoRows("get equipment", scanErr)
	}
	return eq, nil
}

// FindEquipment matches equipment by name and serial number.
func (s *Store) FindEquipment(ctx context.Context, name, serial string) (Equipment, error) {
	db, err := s.getDB()
	if err != nil {
		return Equipment{}, err
	}
	eq, scanErr := scanEquipment(db.QueryRow(ctx, findEquipmentSQL, name, serial))
	if scanErr != nil {
		return Equipment{}, wrapNoRows("find equipment", scanErr)
	}
	return eq, nil
}

// InsertEquipment stores new equipment.
func (s *Store) InsertEquipment(ctx context.Context, eq Equipment) (Equipment, error) {
	db, err := s.getDB()
	if err != nil {
		return Equipment{}, err
	}
	created, scanErr := scanEquipment(db.QueryRow(ctx, insertEquipmentSQL,
		eq.Name,
		eq.Department,
		eq.SerialNum,
		eq.Count,
		eq.Status,
	))
	if scanErr != nil {
		return Equipment{}, fmt.Errorf("insert equipment: %w", scanErr)
	}
	return created, nil
}

// AdjustEquipmentCount adds delta to the stored count.
func (s *Store) AdjustEquipmentCount(ctx context.Context, id int64, delta int) (Equipment, error) {
	db, err := s.getDB()
	if err != nil {
		return Equipment{}, err
	}
	updated, scanErr := scanEquipment(db.QueryRow(ctx, adjustEquipmentCountSQL, id, delta))
	if scanErr != nil {
		return Equipment{}, wrapNoRows("adjust equipment count", scanErr)
	}
	return updated, nil
}

// UpdateEquipmentFields applies a partial update.
func (s *Store) UpdateEquipmentFields(ctx context.Context, id int64, patch EquipmentPatch) (Equipment, error) {
	if patch.Empty() {
		return s.GetEquipment(ctx, id)
	}
	db, err := s.getDB()
	if err != nil {
		return Equipment{}, err
	}

	set := &setBuilder{}
	if patch.Name != nil {
		set.add("equipment_name", *patch.Name)
	}
	if patch.Department != nil {
		set.add("department", *patch.Department)
	}
	if patch.SerialNum != nil {
		set.add("serial_num", *patch.SerialNum)
	}
	if patch.Count != nil {
		set.add("count", *patch.Count)
	}
	if patch.Status != nil {
		set.add("status", *patch.Status)
	}
	query, args := set.update("equipment", equipmentColumns, id)

	updated, scanErr := scanEquipment(db.QueryRow(ctx, query, args...))
	if scanErr != nil {
		return Equipment{}, wrapNoRows("update equipment", scanErr)
	}
	return updated, nil
}

// DeleteEquipment removes equipment by id.
func (s *Store) DeleteEquipment(ctx context.Context, ids []int64) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	tag, execErr := db.Exec(ctx, deleteEquipmentSQL, ids)
	if execErr != nil {
		return 0, fmt.Errorf("delete equipment: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// ListHistory returns the history of the given items ordered by creation
// time ascending, ties broken by insertion order.
func (s *Store) ListHistory(ctx context.Context, itemIDs []int64) ([]HistoryRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if len(itemIDs) == 0 {
		return []HistoryRecord{}, nil
	}

	rows, queryErr := db.Query(ctx, listHistorySQL, itemIDs)
	if queryErr != nil {
		return nil, fmt.Errorf("list history: %w", queryErr)
	}
	defer rows.Close()

	records := make([]HistoryRecord, 0)
	for rows.Next() {
		var rec HistoryRecord
		if err := rows.Scan(&rec.ItemID, &rec.Quantity, &rec.Created); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// InsertHistory records a standalone observation.
func (s *Store) InsertHistory(ctx context.Context, itemID int64, quantity int) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, execErr := db.Exec(ctx, insertHistorySQL, itemID, quantity); execErr != nil {
		return fmt.Errorf("insert history: %w", execErr)
	}
	return nil
}

// ItemsWithoutHistory lists supplies that have never been observed.
func (s *Store) ItemsWithoutHistory(ctx context.Context) ([]Item, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, queryErr := db.Query(ctx, itemsWithoutHistorySQL)
	if queryErr != nil {
		return nil, fmt.Errorf("items without history: %w", queryErr)
	}
	return collectItems(rows)
}

// GetAccount loads a stored login.
func (s *Store) GetAccount(ctx context.Context, username string) (Account, error) {
	db, err := s.getDB()
	if err != nil {
		return Account{}, err
	}
	var acc Account
	if scanErr := db.QueryRow(ctx, getAccountSQL, username).Scan(&acc.Username, &acc.Password); scanErr != nil {
		return Account{}, wrapNoRows("get account", scanErr)
	}
	return acc, nil
}

func recordHistory(ctx context.Context, tx pgx.Tx, itemID int64, quantity int) error {
	if _, err := tx.Exec(ctx, insertHistorySQL, itemID, quantity); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

func wrapNoRows(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type setBuilder struct {
	cols []string
	args []any
}

func (b *setBuilder) add(col string, value any) {
	b.args = append(b.args, value)
	b.cols = append(b.cols, fmt.Sprintf("%s = $%d", col, len(b.args)))
}

func (b *setBuilder) update(table, returning string, id int64) (string, []any) {
	args := append(b.args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s;",
		table, strings.Join(b.cols, ", "), len(args), returning)
	return query, args
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Locker,
		&item.Unit,
		&item.Quantity,
		&item.Avail,
		&item.Stat,
		&item.CreatedAt,
	)
	return item, err
}

func scanEquipment(row pgx.Row) (Equipment, error) {
	var eq Equipment
	err := row.Scan(
		&eq.ID,
		&eq.Name,
		&eq.Department,
		&eq.SerialNum,
		&eq.Count,
		&eq.Status,
		&eq.CreatedAt,
	)
	return eq, err
}
