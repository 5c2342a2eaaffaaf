package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"civicstream/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

const (
	presenceSetKey  = "presence:online"
	presenceInfoKey = "presence:users"

	// members older than this are considered offline
	freshnessWindow = 45 * time.Second
)

// RedisPresenceStore keeps the gateway-wide online set in a ZSET scored
// by last check-in, with a companion HASH for display attributes.
type RedisPresenceStore struct {
	rdb *redis.Client
}

func NewRedisPresenceStore(rdb *redis.Client) *RedisPresenceStore {
	return &RedisPresenceStore{rdb: rdb}
}

func (p *RedisPresenceStore) Touch(
	ctx context.Context,
	user domain.OnlineUser,
	ttl time.Duration,
) error {
	now := time.Now().Unix()
	if err := p.rdb.ZAdd(ctx, presenceSetKey, redis.Z{
		Score:  float64(now),
		Member: user.ID,
	}).Err(); err != nil {
		return err
	}
	info, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := p.rdb.HSet(ctx, presenceInfoKey, user.ID, info).Err(); err != nil {
		return err
	}
	// Expire the whole structure so an idle gateway doesn't leak keys.
	p.rdb.Expire(ctx, presenceSetKey, ttl*2)
	return p.rdb.Expire(ctx, presenceInfoKey, ttl*2).Err()
}

func (p *RedisPresenceStore) Online(ctx context.Context) ([]domain.OnlineUser, error) {
	threshold := time.Now().Add(-freshnessWindow).Unix()

	// Remove stale members first (self-cleaning)
	p.rdb.ZRemRangeByScore(ctx, presenceSetKey, "-inf", strconv.FormatInt(threshold, 10))

	ids, err := p.rdb.ZRange(ctx, presenceSetKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	users := make([]domain.OnlineUser, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	infos, err := p.rdb.HMGet(ctx, presenceInfoKey, ids...).Result()
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		u := domain.OnlineUser{ID: id}
		if raw, ok := infos[i].(string); ok {
			_ = json.Unmarshal([]byte(raw), &u)
		}
		users = append(users, u)
	}
	return users, nil
}

func (p *RedisPresenceStore) Remove(ctx context.Context, userID string) error {
	if err := p.rdb.ZRem(ctx, presenceSetKey, userID).Err(); err != nil {
		return err
	}
	return p.rdb.HDel(ctx, presenceInfoKey, userID).Err()
}
