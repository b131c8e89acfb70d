package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps every subscription as one field of a single hash, so
// HSETNX gives insert-if-absent and HDEL an atomic per-row delete.
type RedisStore struct {
	client *redis.Client
	key    string
}

type redisRecord struct {
	ID        string    `json:"id"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConnectRedis accepts either a redis:// URL or a bare host:port.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Upsert(ctx context.Context, sub Subscription) error {
	data, err := json.Marshal(redisRecord{
		ID:        sub.ID,
		P256dh:    sub.Keys.P256dh,
		Auth:      sub.Keys.Auth,
		CreatedAt: sub.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}
	return s.client.HSetNX(ctx, s.key, sub.Endpoint, data).Err()
}

func (s *RedisStore) Get(ctx context.Context, endpoint string) (Subscription, error) {
	raw, err := s.client.HGet(ctx, s.key, endpoint).Result()
	if errors.Is(err, redis.Nil) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, err
	}
	return decodeRecord(endpoint, raw)
}

func (s *RedisStore) List(ctx context.Context) ([]Subscription, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}

	subs := make([]Subscription, 0, len(fields))
	for endpoint, raw := range fields {
		sub, err := decodeRecord(endpoint, raw)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func decodeRecord(endpoint, raw string) (Subscription, error) {
	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Subscription{}, fmt.Errorf("failed to unmarshal subscription %q: %w", endpoint, err)
	}
	return Subscription{
		ID:        rec.ID,
		Endpoint:  endpoint,
		Keys:      Keys{P256dh: rec.P256dh, Auth: rec.Auth},
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (s *RedisStore) Remove(ctx context.Context, endpoint string) error {
	return s.client.HDel(ctx, s.key, endpoint).Err()
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.key).Result()
	return int(n), err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
