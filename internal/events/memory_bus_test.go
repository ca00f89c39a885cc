package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryBusDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := NewMemoryBus(8)
	published := []Event{
		New(TypeCreated, "test", "a"),
		New(TypeLocked, "test", "a", "c"),
		New(TypeDeleted, "test", "a"),
	}
	for _, event := range published {
		if err := bus.Publish(ctx, event); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []Event
	err := bus.Subscribe(ctx, func(_ context.Context, event Event) error {
		got = append(got, event)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(got) != len(published) {
		t.Fatalf("expected %d events, got %d", len(published), len(got))
	}
	for i := range published {
		if got[i].ID != published[i].ID || got[i].Type != published[i].Type {
			t.Fatalf("event %d mismatch: %+v", i, got[i])
		}
	}
	if len(got[1].Names) != 2 || got[1].Names[1] != "c" {
		t.Fatalf("unexpected names: %v", got[1].Names)
	}
}

func TestMemoryBusRejectsAfterClose(t *testing.T) {
	bus := NewMemoryBus(1)
	_ = bus.Close()
	if err := bus.Publish(context.Background(), New(TypeUpdated, "test")); err == nil {
		t.Fatalf("expected publish on closed bus to fail")
	}
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New(TypeCreated, "g", "x")
	b := New(TypeCreated, "g", "x")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected unique ids, got %q and %q", a.ID, b.ID)
	}
	if a.OccurredAt.IsZero() || a.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", a.OccurredAt)
	}
}

func TestMemoryBusCloseReleasesBlockedPublisher(t *testing.T) {
	bus := NewMemoryBus(1)
	if err := bus.Publish(context.Background(), New(TypeCreated, "test", "a")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	published := make(chan error, 1)
	go func() {
		published <- bus.Publish(context.Background(), New(TypeCreated, "test", "b"))
	}()

	closed := make(chan struct{})
	go func() {
		_ = bus.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatalf("close blocked behind a full buffer")
	}

	select {
	case err := <-published:
		if !errors.Is(err, ErrBusClosed) {
			t.Fatalf("expected ErrBusClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked publisher was not released by close")
	}

	var got []Event
	if err := bus.Subscribe(context.Background(), func(_ context.Context, event Event) error {
		got = append(got, event)
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(got) != 1 || got[0].Names[0] != "a" {
		t.Fatalf("expected the buffered event only, got %+v", got)
	}
}
