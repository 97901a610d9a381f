package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bryan-buckman/termread/internal/model"
	"github.com/redis/go-redis/v9"
)

const snapshotPrefix = "termread:snapshot:"

// RedisStore keeps each snapshot as one JSON value that expires after ttl.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Store = (*RedisStore)(nil)

type redisSnapshot struct {
	FetchedAt int64       `json:"fetchedAt"`
	Feed      *model.Feed `json:"feed"`
}

// NewRedis connects to redisURL (redis://host:port/db).
func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// DatabaseType names the backend.
func (s *RedisStore) DatabaseType() string {
	return "Redis"
}

// SaveSnapshot stores feed under its URL with the store TTL.
func (s *RedisStore) SaveSnapshot(ctx context.Context, feed *model.Feed, fetchedAt time.Time) error {
	data, err := json.Marshal(redisSnapshot{FetchedAt: fetchedAt.UnixMilli(), Feed: feed})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.rdb.Set(ctx, snapshotPrefix+feed.URL, data, s.ttl).Err()
}

func (s *RedisStore) load(ctx context.Context, key string) (*redisSnapshot, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var snap redisSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	if snap.Feed == nil {
		return nil, ErrNotFound
	}
	return &snap, nil
}

// Snapshot returns the stored feed for url.
func (s *RedisStore) Snapshot(ctx context.Context, url string) (*model.Feed, error) {
	snap, err := s.load(ctx, snapshotPrefix+url)
	if err != nil {
		return nil, err
	}
	if snap.Feed.Items == nil {
		snap.Feed.Items = []model.FeedItem{}
	}
	return snap.Feed, nil
}

// Item finds ref in the stored feed for url.
func (s *RedisStore) Item(ctx context.Context, url, ref string) (*model.FeedItem, error) {
	feed, err := s.Snapshot(ctx, url)
	if err != nil {
		return nil, err
	}
	it, ok := feed.Lookup(ref)
	if !ok {
		return nil, ErrNotFound
	}
	return &it, nil
}

// PruneSnapshots removes snapshots older than before. Expiry normally
// handles this; pruning matters when the TTL is longer than the cutoff.
func (s *RedisStore) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	iter := s.rdb.Scan(ctx, 0, snapshotPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		snap, err := s.load(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil || snap.FetchedAt < before.UnixMilli() {
			n, err := s.rdb.Del(ctx, key).Result()
			if err != nil {
				return removed, err
			}
			removed += n
		}
	}
	return removed, iter.Err()
}
