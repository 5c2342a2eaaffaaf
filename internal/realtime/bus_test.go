package realtime

import (
	"encoding/json"
	"testing"
)

func TestBusDeliversToTypeSubscribers(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe("issue_status_changed", func(eventType string, payload json.RawMessage) {
		got = append(got, string(payload))
	})
	bus.Subscribe("comment_added", func(eventType string, payload json.RawMessage) {
		t.Fatal("handler for unrelated type fired")
	})

	bus.Publish("issue_status_changed", json.RawMessage(`{"title":"pothole"}`))
	bus.Publish("unknown_type", json.RawMessage(`{}`))

	if len(got) != 1 || got[0] != `{"title":"pothole"}` {
		t.Fatalf("delivered payloads: got %v, want one pothole payload", got)
	}
}

func TestBusFansOutToAllSubscribersOfType(t *testing.T) {
	bus := NewBus()
	hits := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe("leaderboard_updated", func(string, json.RawMessage) { hits++ })
	}

	bus.Publish("leaderboard_updated", nil)
	if hits != 3 {
		t.Fatalf("fan-out: got %d deliveries, want 3", hits)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	hits := 0
	sub := bus.Subscribe("upvote_updated", func(string, json.RawMessage) { hits++ })
	keep := 0
	bus.Subscribe("upvote_updated", func(string, json.RawMessage) { keep++ })

	bus.Publish("upvote_updated", nil)
	sub.Unsubscribe()
	bus.Publish("upvote_updated", nil)

	if hits != 1 {
		t.Fatalf("unsubscribed handler: got %d deliveries, want 1", hits)
	}
	if keep != 2 {
		t.Fatalf("remaining handler: got %d deliveries, want 2", keep)
	}
}

func TestBusPreservesPublishOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe("comment_added", func(_ string, payload json.RawMessage) {
		order = append(order, string(payload))
	})

	for _, p := range []string{"1", "2", "3"} {
		bus.Publish("comment_added", json.RawMessage(p))
	}
	if len(order) != 3 || order[0] != "1" || order[1] != "2" || order[2] != "3" {
		t.Fatalf("delivery order: got %v, want [1 2 3]", order)
	}
}
