package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inventuri/internal/storage"
)

func TestPublishDropsOnlyForFullSubscriber(t *testing.T) {
	hub := NewHub(1, zerolog.Nop())
	slow := hub.Subscribe()
	fast := hub.Subscribe()

	hub.Publish(storage.ChangeEvent{Table: "items", Op: "INSERT", ID: 1})
	<-fast.C
	hub.Publish(storage.ChangeEvent{Table: "items", Op: "UPDATE", ID: 1})

	if got := <-fast.C; got.Op != "UPDATE" {
		t.Fatalf("fast got %+v", got)
	}
	if got := <-slow.C; got.Op != "INSERT" {
		t.Fatalf("slow got %+v", got)
	}
	if slow.Dropped() != 1 || fast.Dropped() != 0 {
		t.Fatalf("dropped slow=%d fast=%d", slow.Dropped(), fast.Dropped())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(0, zerolog.Nop())
	sub := hub.Subscribe()
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Fatal("channel should be closed")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("subscribers = %d", hub.Subscribers())
	}
}

type fakeListener struct {
	events []storage.ChangeEvent
}

func (f *fakeListener) Listen(ctx context.Context, _ string, handler storage.ChangeHandler) error {
	for _, ev := range f.events {
		handler(ev)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunRelaysListenerEvents(t *testing.T) {
	hub := NewHub(4, zerolog.Nop())
	sub := hub.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- hub.Run(ctx, &fakeListener{events: []storage.ChangeEvent{{Table: "equipment", Op: "DELETE", ID: 3}}}, "inventory_changes")
	}()

	select {
	case ev := <-sub.C:
		if ev.Table != "equipment" || ev.ID != 3 {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not relayed")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	if _, ok := <-sub.C; ok {
		t.Fatal("subscriber should be closed after Run stops")
	}
}

type unconfiguredListener struct{}

func (unconfiguredListener) Listen(context.Context, string, storage.ChangeHandler) error {
	return storage.ErrNotConfigured
}

func TestRunStopsWhenStoreNotConfigured(t *testing.T) {
	hub := NewHub(1, zerolog.Nop())
	if err := hub.Run(context.Background(), unconfiguredListener{}, "x"); !errors.Is(err, storage.ErrNotConfigured) {
		t.Fatalf("Run = %v", err)
	}
}
