package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ChangeHandler receives decoded change notifications.
type ChangeHandler func(ChangeEvent)

// ChangeListener subscribes to table change notifications.
type ChangeListener interface {
	Listen(ctx context.Context, channel string, handler ChangeHandler) error
}

// Listen holds a dedicated connection on channel and invokes handler for
// every notification until ctx is cancelled. Payloads that do not decode are
// delivered with only Table set to the raw payload.
func (s *Store) Listen(ctx context.Context, channel string, handler ChangeHandler) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}

	for {
		note, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		handler(DecodeChangeEvent(note.Payload))
	}
}

// DecodeChangeEvent parses a trigger payload.
func DecodeChangeEvent(payload string) ChangeEvent {
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ChangeEvent{Table: payload}
	}
	return ev
}

var (
	_ ItemStore      = (*Store)(nil)
	_ EquipmentStore = (*Store)(nil)
	_ HistoryStore   = (*Store)(nil)
	_ AccountStore   = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
	_ ChangeListener = (*Store)(nil)
)
