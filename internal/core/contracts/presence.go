package contracts

import (
	"context"
	"time"

	"civicstream/internal/core/domain"
)

// PresenceStore tracks which users are currently online, backed by a
// TTL-scored redis ZSET. Entries that stop heartbeating age out.
type PresenceStore interface {
	// Touch marks a user online and refreshes their score.
	Touch(ctx context.Context, user domain.OnlineUser, ttl time.Duration) error
	// Online returns users who checked in within the freshness window.
	Online(ctx context.Context) ([]domain.OnlineUser, error)
	// Remove drops a user immediately (explicit disconnect).
	Remove(ctx context.Context, userID string) error
}
