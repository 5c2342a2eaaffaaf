package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const eventStreamKey = "stream:events"

// RedisEventQueue is the at-least-once fan-in stream between producers
// (ws handler, notification service) and the fan-out worker.
type RedisEventQueue struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisEventQueue(log *slog.Logger, rdb *redis.Client) *RedisEventQueue {
	return &RedisEventQueue{rdb: rdb, log: log}
}

func (q *RedisEventQueue) Publish(ctx context.Context, payload []byte) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStreamKey,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": payload},
	}).Err()
}

func (q *RedisEventQueue) Subscribe(
	ctx context.Context,
	group string,
	handler func(ctx context.Context, messageID string, data []byte) error,
) error {
	// Create group if not exists
	err := q.rdb.XGroupCreateMkStream(ctx, eventStreamKey, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	consumerName := uuid.NewString()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
					Group:    group,
					Consumer: consumerName,
					Streams:  []string{eventStreamKey, ">"},
					Count:    16,
					Block:    2 * time.Second,
				}).Result()
				if err != nil {
					if err != redis.Nil && ctx.Err() == nil {
						q.log.Warn("event queue - stream read error", "error", err.Error())
					}
					continue
				}
				for _, stream := range res {
					for _, msg := range stream.Messages {
						raw, ok := msg.Values["data"].(string)
						if !ok {
							continue
						}
						if err := handler(ctx, msg.ID, []byte(raw)); err != nil {
							q.log.Warn("event queue - handler error",
								"message_id", msg.ID, "error", err.Error())
						}
					}
				}
			}
		}
	}()
	return nil
}

func (q *RedisEventQueue) Acknowledge(ctx context.Context, group, messageID string) error {
	return q.rdb.XAck(ctx, eventStreamKey, group, messageID).Err()
}

func (q *RedisEventQueue) DeleteMessage(ctx context.Context, messageID string) error {
	return q.rdb.XDel(ctx, eventStreamKey, messageID).Err()
}
