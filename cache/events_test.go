package cache

import (
	"context"
	"encoding/json"
	"testing"
)

func TestNewEventEncodesPayload(t *testing.T) {
	ev, err := NewEvent("scene", "director", map[string]int{"target": 4})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Type != "scene" || ev.Profile != "director" || ev.At.IsZero() {
		t.Fatalf("event = %+v", ev)
	}
	var got map[string]int
	if err := json.Unmarshal(ev.Data, &got); err != nil || got["target"] != 4 {
		t.Fatalf("data = %s (%v)", ev.Data, err)
	}

	if _, err := NewEvent("bad", "director", make(chan int)); err == nil {
		t.Fatal("unencodable payload must fail")
	}
}

func TestPublisherDropsWhenFull(t *testing.T) {
	p := NewPublisher(NewEventBus(nil, "test"), 2)
	for i := 0; i < 2; i++ {
		if !p.Enqueue(Event{Type: "scene"}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	if p.Enqueue(Event{Type: "scene"}) {
		t.Fatal("third event must be dropped")
	}
}

func TestBusWithoutClient(t *testing.T) {
	bus := NewEventBus(nil, "vizdirector:events")
	if err := bus.Publish(context.Background(), Event{Type: "scene"}); err == nil {
		t.Fatal("publish without client must fail")
	}
	if bus.Channel() != "vizdirector:events" {
		t.Fatalf("channel = %s", bus.Channel())
	}
}
