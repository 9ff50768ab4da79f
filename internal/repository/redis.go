package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"maidlink/internal/config"
	"maidlink/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	checkKeyPrefix     = "verification_check:"
	rateLimitKeyPrefix = "rate_limit:"
)

type RedisStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStateRepository(client *redis.Client, ttl time.Duration) *RedisStateRepository {
	return &RedisStateRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisStateRepository) SaveCheck(ctx context.Context, rec *models.CheckRecord) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal check record: %w", err)
	}
	if err := r.client.Set(ctx, checkKeyPrefix+rec.CheckID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save check record in redis: %w", err)
	}
	return nil
}

// GetCheck returns nil, nil when the record does not exist.
func (r *RedisStateRepository) GetCheck(ctx context.Context, checkID string) (*models.CheckRecord, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, checkKeyPrefix+checkID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get check record from redis: %w", err)
	}

	var rec models.CheckRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal check record: %w", err)
	}
	return &rec, nil
}

func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	fullKey := rateLimitKeyPrefix + key

	count, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
