// Package stream fans database change notifications out to live clients.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"inventuri/internal/storage"
)

const (
	defaultBuffer = 16
	minBackoff    = time.Second
	maxBackoff    = 30 * time.Second
)

// Subscription is one client's view of the hub.
type Subscription struct {
	C       <-chan storage.ChangeEvent
	ch      chan storage.ChangeEvent
	dropped atomic.Int64
}

// Dropped reports how many events were discarded because the client was slow.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Hub broadcasts change events. A subscriber whose buffer is full misses the
// event; other subscribers are unaffected.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	logger zerolog.Logger
}

// NewHub constructs a hub with per-subscriber buffers of the given size.
func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.With().Str("component", "stream").Logger(),
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan storage.ChangeEvent, h.buffer)
	sub := &Subscription{C: ch, ch: ch}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug().Int("subscribers", n).Msg("subscriber added")
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is safe.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Publish delivers ev to every subscriber without blocking.
func (h *Hub) Publish(ev storage.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			h.logger.Warn().Str("table", ev.Table).Int64("id", ev.ID).Msg("subscriber buffer full; event dropped")
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Run feeds the hub from listener until ctx is cancelled, reconnecting with
// capped exponential backoff when the listen connection fails.
func (h *Hub) Run(ctx context.Context, listener storage.ChangeListener, channel string) error {
	backoff := minBackoff
	for {
		started := time.Now()
		err := listener.Listen(ctx, channel, h.Publish)
		if ctx.Err() != nil {
			h.closeAll()
			return ctx.Err()
		}
		if errors.Is(err, storage.ErrNotConfigured) {
			return err
		}
		if time.Since(started) > maxBackoff {
			backoff = minBackoff
		}
		h.logger.Warn().Err(err).Dur("retry_in", backoff).Str("channel", channel).Msg("change listener stopped")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			h.closeAll()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
