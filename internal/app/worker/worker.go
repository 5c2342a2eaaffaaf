package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"civicstream/internal/core/contracts"
	"civicstream/internal/core/domain"
	"civicstream/pkg/logging"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EventWorker drains the routed-event stream and fans envelopes out to
// the rooms on this gateway node. The stream is at-least-once, so a
// bounded seen-id cache keeps redeliveries from double-broadcasting.
type EventWorker struct {
	log      *slog.Logger
	queue    contracts.EventQueue
	registry contracts.Registry
	group    string
	seen     *lru.Cache[string, struct{}]
}

func NewEventWorker(
	log *slog.Logger,
	queue contracts.EventQueue,
	registry contracts.Registry,
	group string,
	seenCacheSize int,
) (*EventWorker, error) {
	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}
	return &EventWorker{
		log:      log,
		queue:    queue,
		registry: registry,
		group:    group,
		seen:     seen,
	}, nil
}

// Run starts the consumer loop; it returns once the subscription is
// registered and the loop runs until ctx is cancelled.
func (w *EventWorker) Run(ctx context.Context) error {
	if err := w.queue.Subscribe(ctx, w.group, w.ProcessEvent); err != nil {
		return err
	}
	w.log.InfoContext(ctx, "worker - run - subscribed to event stream", "group", w.group)
	return nil
}

func (w *EventWorker) ProcessEvent(ctx context.Context, messageID string, raw []byte) error {
	var ev domain.RoutedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		w.log.Error("worker - process event - malformed payload", "message_id", messageID)
		// poison message: ack so it is not redelivered forever
		_ = w.queue.Acknowledge(ctx, w.group, messageID)
		return err
	}

	if _, dup := w.seen.Get(ev.ID); dup {
		w.log.Debug("worker - process event - duplicate dropped",
			"message_id", messageID, logging.Event(ev.Event.Type))
		return w.queue.Acknowledge(ctx, w.group, messageID)
	}
	w.seen.Add(ev.ID, struct{}{})

	if ev.Room == "" {
		w.registry.BroadcastAll(ctx, ev.Event)
	} else {
		w.registry.Broadcast(ctx, ev.Room, ev.Event, ev.ExceptUser)
	}

	if err := w.queue.Acknowledge(ctx, w.group, messageID); err != nil {
		w.log.ErrorContext(ctx, "worker - process event - ack failed",
			"message_id", messageID, logging.Err(err))
		return err
	}
	if err := w.queue.DeleteMessage(ctx, messageID); err != nil {
		// already broadcast and acked; deletion is best-effort trimming
		w.log.WarnContext(ctx, "worker - process event - delete failed",
			"message_id", messageID, logging.Err(err))
	}
	return nil
}
