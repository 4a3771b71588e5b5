package events

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	bus := NewEventBus()
	received := make(chan Event, 1)

	bus.Subscribe(EventSignalGenerated, func(e Event) {
		received <- e
	})

	bus.PublishSignal("BTCUSDT", "enter_long", 100.5, 1700000000000)

	select {
	case e := <-received:
		if e.Data["symbol"] != "BTCUSDT" || e.Data["signal"] != "enter_long" {
			t.Errorf("unexpected event payload: %v", e.Data)
		}
		if e.ID == "" {
			t.Error("event must carry an ID")
		}
		if e.Timestamp.IsZero() {
			t.Error("event must carry a timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestSubscribersAreTypeScoped(t *testing.T) {
	bus := NewEventBus()
	received := make(chan Event, 1)

	bus.Subscribe(EventTrendChanged, func(e Event) {
		received <- e
	})

	bus.PublishSignal("BTCUSDT", "exit_long", 99, 0)

	select {
	case <-received:
		t.Fatal("subscriber received an event of another type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	received := make(chan EventType, 2)

	bus.SubscribeAll(func(e Event) {
		received <- e.Type
	})

	bus.PublishTrendChanged("BTCUSDT", "NEUTRAL", "UPTREND")
	bus.PublishDataDegraded("BTCUSDT", "4h", "exchange unreachable")

	got := map[EventType]bool{}
	for i := 0; i < 2; i++ {
		select {
		case typ := <-received:
			got[typ] = true
		case <-time.After(time.Second):
			t.Fatal("all-events subscriber missed an event")
		}
	}
	if !got[EventTrendChanged] || !got[EventDataDegraded] {
		t.Errorf("expected both event types, got %v", got)
	}
}
