package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"civicstream/internal/core/contracts"
	"civicstream/internal/core/domain"
)

type fakeQueue struct {
	acked   []string
	deleted []string
}

func (q *fakeQueue) Publish(ctx context.Context, payload []byte) error { return nil }

func (q *fakeQueue) Subscribe(ctx context.Context, group string, handler func(context.Context, string, []byte) error) error {
	return nil
}

func (q *fakeQueue) Acknowledge(ctx context.Context, group, messageID string) error {
	q.acked = append(q.acked, messageID)
	return nil
}

func (q *fakeQueue) DeleteMessage(ctx context.Context, messageID string) error {
	q.deleted = append(q.deleted, messageID)
	return nil
}

type fakeRegistry struct {
	roomCasts []domain.Room
	allCasts  int
}

func (r *fakeRegistry) Register(c contracts.Client)                {}
func (r *fakeRegistry) Unregister(c contracts.Client)              {}
func (r *fakeRegistry) Join(c contracts.Client, room domain.Room)  {}
func (r *fakeRegistry) Leave(c contracts.Client, room domain.Room) {}

func (r *fakeRegistry) Broadcast(ctx context.Context, room domain.Room, env domain.Envelope, exceptUser string) {
	r.roomCasts = append(r.roomCasts, room)
}

func (r *fakeRegistry) BroadcastAll(ctx context.Context, env domain.Envelope) {
	r.allCasts++
}

func newTestWorker(t *testing.T) (*EventWorker, *fakeQueue, *fakeRegistry) {
	t.Helper()
	q := &fakeQueue{}
	r := &fakeRegistry{}
	w, err := NewEventWorker(slog.New(slog.DiscardHandler), q, r, "test-group", 16)
	if err != nil {
		t.Fatalf("NewEventWorker: %v", err)
	}
	return w, q, r
}

func routedEvent(t *testing.T, id string, room domain.Room) []byte {
	t.Helper()
	env, err := domain.NewEnvelope(domain.EventLeaderboardUpdated, map[string]int{"rank": 1})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	raw, _ := json.Marshal(domain.RoutedEvent{ID: id, Room: room, Event: env})
	return raw
}

func TestProcessEventBroadcastsToRoom(t *testing.T) {
	w, q, r := newTestWorker(t)
	ctx := context.Background()

	if err := w.ProcessEvent(ctx, "m1", routedEvent(t, "ev1", domain.IssueRoom("42"))); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if len(r.roomCasts) != 1 || r.roomCasts[0] != domain.IssueRoom("42") {
		t.Fatalf("room broadcasts: got %v, want [issue:42]", r.roomCasts)
	}
	if len(q.acked) != 1 || q.acked[0] != "m1" {
		t.Fatalf("acks: got %v, want [m1]", q.acked)
	}
	if len(q.deleted) != 1 {
		t.Fatalf("deletes: got %v, want one entry", q.deleted)
	}
}

func TestProcessEventEmptyRoomBroadcastsAll(t *testing.T) {
	w, _, r := newTestWorker(t)

	if err := w.ProcessEvent(context.Background(), "m1", routedEvent(t, "ev1", "")); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if r.allCasts != 1 {
		t.Fatalf("broadcast-all count: got %d, want 1", r.allCasts)
	}
	if len(r.roomCasts) != 0 {
		t.Fatalf("room broadcasts: got %v, want none", r.roomCasts)
	}
}

// Redelivery of the same routed event must not double-broadcast.
func TestProcessEventDedupsRedelivery(t *testing.T) {
	w, q, r := newTestWorker(t)
	ctx := context.Background()
	raw := routedEvent(t, "ev1", domain.IssueRoom("42"))

	w.ProcessEvent(ctx, "m1", raw)
	w.ProcessEvent(ctx, "m2", raw)

	if len(r.roomCasts) != 1 {
		t.Fatalf("broadcasts after redelivery: got %d, want 1", len(r.roomCasts))
	}
	// the duplicate is still acked so the stream can move on
	if len(q.acked) != 2 {
		t.Fatalf("acks: got %v, want both messages acked", q.acked)
	}
}

func TestProcessEventPoisonMessageIsAcked(t *testing.T) {
	w, q, r := newTestWorker(t)

	err := w.ProcessEvent(context.Background(), "m1", []byte("{not json"))
	if err == nil {
		t.Fatal("ProcessEvent: expected error for malformed payload")
	}
	if len(q.acked) != 1 {
		t.Fatalf("poison message acks: got %v, want [m1]", q.acked)
	}
	if len(r.roomCasts) != 0 || r.allCasts != 0 {
		t.Fatal("poison message reached broadcast")
	}
}
