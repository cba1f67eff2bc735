package redis

import (
	"context"
	"crypto/tls"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCanvasverseCache struct {
	client redis.UniversalClient
}

func NewRedisCanvasverseCache(ctx context.Context, devMode bool, redis_endpoint string) (*RedisCanvasverseCache, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: redis_endpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: redis_endpoint,
			// AWS elasticache endpoints require TLS
			TLSConfig: &tls.Config{},
		})
	}

	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return &RedisCanvasverseCache{client: client}, nil
}

func (redisCache *RedisCanvasverseCache) Publish(ctx context.Context, channel string, message []byte) error {
	if err := redisCache.client.Publish(ctx, channel, message).Err(); err != nil {
		return err
	}
	return nil
}

func (redisCache *RedisCanvasverseCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		log.Printf("Pubsub channel closed: %s", channel)
		return err
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

// Helper functions to generate Redis keys with hash tags for cluster compatibility
func buildPresenceKey(canvasId string) string {
	return "canvas:{" + canvasId + "}:presence"
}

func buildSnapshotKey(canvasId string) string {
	return "canvas:{" + canvasId + "}:snapshot"
}

// presenceIndexKey is a single global ZSet scoring every presence row by
// lastSeen, so the purge sweep never has to scan per-canvas hashes.
const presenceIndexKey = "presence:index"

const presenceIndexSep = "|"

const snapshotTTL = 10 * time.Minute

// Design Choice: Split Index/Data Pattern
// Presence is stored in two Redis structures:
// 1. Hash ("canvas:{id}:presence"): UserId -> JSON presence record.
//   - Purpose: O(1) upsert and removal per user, HVals for the room roster.
//
// 2. Global ZSet ("presence:index"): member "canvasId|userId" scored by LastSeen.
//   - Purpose: the reaper finds every stale row across all canvases with a
//     single ZRANGEBYSCORE instead of scanning each hash.
func (redisCache *RedisCanvasverseCache) UpsertPresence(ctx context.Context, canvasId string, userId string, data []byte, lastSeen int64) error {
	key := buildPresenceKey(canvasId)

	pipe := redisCache.client.Pipeline()
	pipe.HSet(ctx, key, userId, data)
	pipe.ZAdd(ctx, presenceIndexKey, redis.Z{Score: float64(lastSeen), Member: canvasId + presenceIndexSep + userId})
	_, err := pipe.Exec(ctx)
	return err
}

func (redisCache *RedisCanvasverseCache) GetPresence(ctx context.Context, canvasId string) ([][]byte, error) {
	key := buildPresenceKey(canvasId)

	values, err := redisCache.client.HVals(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	records := make([][]byte, 0, len(values))
	for _, v := range values {
		records = append(records, []byte(v))
	}
	return records, nil
}

func (redisCache *RedisCanvasverseCache) RemovePresence(ctx context.Context, canvasId string, userId string) error {
	key := buildPresenceKey(canvasId)

	pipe := redisCache.client.Pipeline()
	pipe.HDel(ctx, key, userId)
	pipe.ZRem(ctx, presenceIndexKey, canvasId+presenceIndexSep+userId)
	_, err := pipe.Exec(ctx)
	return err
}

func (redisCache *RedisCanvasverseCache) RemoveCanvasPresence(ctx context.Context, canvasId string) error {
	key := buildPresenceKey(canvasId)

	userIds, err := redisCache.client.HKeys(ctx, key).Result()
	if err != nil {
		return err
	}

	pipe := redisCache.client.Pipeline()
	pipe.Del(ctx, key)
	for _, userId := range userIds {
		pipe.ZRem(ctx, presenceIndexKey, canvasId+presenceIndexSep+userId)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (redisCache *RedisCanvasverseCache) CountCanvasPresence(ctx context.Context, canvasId string) (int64, error) {
	key := buildPresenceKey(canvasId)
	count, err := redisCache.client.HLen(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PurgeStalePresence drops every presence row whose lastSeen is at or
// below the cutoff. Returns the number of rows removed.
func (redisCache *RedisCanvasverseCache) PurgeStalePresence(ctx context.Context, cutoff int64) (int64, error) {
	members, err := redisCache.client.ZRangeByScore(ctx, presenceIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	pipe := redisCache.client.Pipeline()
	for _, member := range members {
		canvasId, userId, ok := strings.Cut(member, presenceIndexSep)
		if !ok {
			// Malformed index entry, drop it from the index only
			pipe.ZRem(ctx, presenceIndexKey, member)
			continue
		}
		pipe.HDel(ctx, buildPresenceKey(canvasId), userId)
		pipe.ZRem(ctx, presenceIndexKey, member)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return int64(len(members)), nil
}

func (redisCache *RedisCanvasverseCache) SetCanvasSnapshot(ctx context.Context, canvasId string, data []byte) error {
	key := buildSnapshotKey(canvasId)
	return redisCache.client.Set(ctx, key, data, snapshotTTL).Err()
}

func (redisCache *RedisCanvasverseCache) GetCanvasSnapshot(ctx context.Context, canvasId string) ([]byte, bool, error) {
	key := buildSnapshotKey(canvasId)
	val, err := redisCache.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

func (redisCache *RedisCanvasverseCache) InvalidateCanvas(ctx context.Context, canvasId string) error {
	// Both keys share the canvas hash tag, so they hash to the same slot
	return redisCache.client.Del(ctx, buildSnapshotKey(canvasId), buildPresenceKey(canvasId)).Err()
}
