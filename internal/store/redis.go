package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/SoftwareDev-01/6.vybe/internal/models"
)

const peersCacheTTL = 30 * time.Second

// RedisStore handles Redis operations: rate limit counters and the
// conversation-peer cache.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for middleware that issues its own
// commands.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// peersCacheKey returns the key for a user's cached peer listing.
func peersCacheKey(userID uuid.UUID) string {
	return fmt.Sprintf("peers:%s", userID)
}

// GetPeersCache returns the cached peer listing for userID, or nil on miss.
func (s *RedisStore) GetPeersCache(ctx context.Context, userID uuid.UUID) ([]models.PeerSummary, error) {
	data, err := s.client.Get(ctx, peersCacheKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var peers []models.PeerSummary
	if err := json.Unmarshal(data, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// SetPeersCache caches a peer listing with a short TTL.
func (s *RedisStore) SetPeersCache(ctx context.Context, userID uuid.UUID, peers []models.PeerSummary) error {
	data, err := json.Marshal(peers)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, peersCacheKey(userID), data, peersCacheTTL).Err()
}

// InvalidatePeers drops the cached listings for both sides of a pair,
// called after every send so ordering stays fresh.
func (s *RedisStore) InvalidatePeers(ctx context.Context, userIDs ...uuid.UUID) error {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = peersCacheKey(id)
	}
	return s.client.Del(ctx, keys...).Err()
}

// rateLimitKey returns the key for a rate limit counter.
func rateLimitKey(bucket string) string {
	return fmt.Sprintf("ratelimit:%s", bucket)
}

// IncrRateLimit increments the counter for a bucket and returns the new
// count, starting the window on first hit.
func (s *RedisStore) IncrRateLimit(ctx context.Context, bucket string, window time.Duration) (int64, error) {
	key := rateLimitKey(bucket)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
