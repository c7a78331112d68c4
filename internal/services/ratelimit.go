package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/pkg/models"
)

type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}

type counterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimitService counts requests per subject in fixed Redis windows.
type RateLimitService struct {
	store  counterStore
	config config.RateLimitConfig
	logger *logrus.Logger
	now    func() time.Time
}

func NewRateLimitService(store counterStore, cfg config.RateLimitConfig, logger *logrus.Logger) *RateLimitService {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &RateLimitService{
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// IsAllowed counts one request for subject. Redis failures let the request
// through.
func (s *RateLimitService) IsAllowed(ctx context.Context, subject, role string) (bool, *RateLimitInfo, error) {
	limit := s.limitForRole(role)
	now := s.now()
	windowStart := now.Truncate(s.config.Window)
	info := &RateLimitInfo{
		Limit:     limit,
		Remaining: limit,
		ResetTime: windowStart.Add(s.config.Window).Unix(),
	}
	if limit <= 0 {
		return true, info, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	key := fmt.Sprintf("rate_limit:%s:%d", subject, windowStart.Unix())
	count, err := s.store.Incr(ctx, key).Result()
	if err != nil {
		return true, info, fmt.Errorf("failed to count request: %w", err)
	}
	if count == 1 {
		if err := s.store.ExpireNX(ctx, key, s.config.Window).Err(); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Failed to set rate limit expiry")
		}
	}

	info.Remaining = limit - int(count)
	if info.Remaining < 0 {
		info.Remaining = 0
	}
	return int(count) <= limit, info, nil
}

func (s *RateLimitService) limitForRole(role string) int {
	if role == models.RoleAdmin {
		return s.config.AdminLimit
	}
	return s.config.ClientLimit
}
