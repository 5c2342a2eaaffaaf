package contracts

import "context"

// EventQueue is the reliable fan-in path between ingest (ws handler,
// REST mutations, internal producers) and the fan-out worker. Backed by
// a redis stream with consumer groups; delivery is at-least-once, so
// consumers must dedup on message id.
type EventQueue interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, group string, handler func(ctx context.Context, messageID string, data []byte) error) error
	Acknowledge(ctx context.Context, group, messageID string) error
	DeleteMessage(ctx context.Context, messageID string) error
}
