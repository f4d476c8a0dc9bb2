package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"cowly/pkg/domain"
)

func TestRedisBusPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	bus, err := NewRedisBus(RedisBusConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	got := make(chan ReadingEvent, 1)
	go func() {
		_ = sub.Run(ctx, func(ev ReadingEvent) { got <- ev })
	}()

	mr.Publish(DefaultChannel, "not json")
	want := ReadingEvent{
		UserID:  "u1",
		CowID:   "bella",
		Key:     "2024-05-02T09-15-30Z",
		Reading: domain.Reading{Temperature: 38.6, Timestamp: time.Date(2024, 5, 2, 9, 15, 30, 0, time.UTC)},
	}
	if err := bus.Publish(ctx, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-got:
		if ev.UserID != want.UserID || ev.Key != want.Key || ev.Reading.Temperature != 38.6 || !ev.Reading.Timestamp.Equal(want.Reading.Timestamp) {
			t.Fatalf("event = %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestNewRedisBusRequiresAddr(t *testing.T) {
	if _, err := NewRedisBus(RedisBusConfig{}); err == nil {
		t.Fatal("expected error for empty addr")
	}
}
