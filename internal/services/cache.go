package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RecommendationCache stores served lists. Keys embed the model version, so a
// retrain invalidates everything without an explicit flush.
type RecommendationCache interface {
	Get(ctx context.Context, version uuid.UUID, userID int64, count int) (*CachedList, bool)
	Set(ctx context.Context, version uuid.UUID, userID int64, count int, list *CachedList)
}

// CachedList is the cached part of a response.
type CachedList struct {
	Result      RerankResult `json:"result"`
	ColdStart   bool         `json:"cold_start"`
	GeneratedAt time.Time    `json:"generated_at"`
}

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type RedisCache struct {
	client redisKV
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisCache(client redisKV, ttl time.Duration, logger *logrus.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(version uuid.UUID, userID int64, count int) string {
	return fmt.Sprintf("recs:%s:%d:%d", version.String(), userID, count)
}

func (c *RedisCache) Get(ctx context.Context, version uuid.UUID, userID int64, count int) (*CachedList, bool) {
	raw, err := c.client.Get(ctx, cacheKey(version, userID, count)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("user_id", userID).Warn("Failed to read recommendation cache")
		}
		return nil, false
	}

	var list CachedList
	if err := json.Unmarshal(raw, &list); err != nil {
		c.logger.WithError(err).WithField("user_id", userID).Warn("Discarding malformed cache entry")
		return nil, false
	}
	return &list, true
}

func (c *RedisCache) Set(ctx context.Context, version uuid.UUID, userID int64, count int, list *CachedList) {
	data, err := json.Marshal(list)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode recommendation cache entry")
		return
	}
	if err := c.client.Set(ctx, cacheKey(version, userID, count), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("user_id", userID).Warn("Failed to cache recommendations")
	}
}
