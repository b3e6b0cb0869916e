// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"visioncore/platform/access"
)

// ErrRateLimited is returned when a key exceeds its tier's request rate.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiter enforces per-tier requests-per-minute limits using a Redis
// sliding window, falling back to an in-process window when Redis is not
// configured. Rate limiting is a smoothing layer, not the quota system:
// on Redis errors it fails open and the credit/demo accounting in the
// access engine still bounds total consumption.
type RateLimiter struct {
	client *redis.Client
	limits map[access.Tier]int

	mu      sync.Mutex
	local   map[string][]time.Time
	cleanup time.Time
}

// NewRateLimiter creates a limiter. client may be nil for the in-process
// fallback; limits of 0 mean unlimited for that tier.
func NewRateLimiter(client *redis.Client, limits map[access.Tier]int) *RateLimiter {
	return &RateLimiter{
		client: client,
		limits: limits,
		local:  make(map[string][]time.Time),
	}
}

// ConnectRedis dials Redis from a URL and verifies the connection.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// Allow records one request for key and reports whether it stays within
// the tier's per-minute budget.
func (l *RateLimiter) Allow(ctx context.Context, key string, tier access.Tier) error {
	limit := l.limits[tier]
	if limit <= 0 {
		return nil
	}
	if l.client == nil {
		return l.allowLocal(key, limit)
	}
	return l.allowRedis(ctx, key, limit)
}

func (l *RateLimiter) allowRedis(ctx context.Context, key string, limit int) error {
	now := time.Now()
	bucket := "ratelimit:" + key

	pipe := l.client.Pipeline()
	minScore := now.Add(-time.Minute).UnixNano()
	pipe.ZRemRangeByScore(ctx, bucket, "0", fmt.Sprintf("%d", minScore))
	count := pipe.ZCard(ctx, bucket)
	pipe.ZAdd(ctx, bucket, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, bucket, 2*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: the access engine still enforces credits and demos.
		return nil
	}

	if count.Val() >= int64(limit) {
		return fmt.Errorf("%w: %d requests/minute", ErrRateLimited, limit)
	}
	return nil
}

func (l *RateLimiter) allowLocal(key string, limit int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)

	window := l.local[key][:0]
	for _, ts := range l.local[key] {
		if ts.After(cutoff) {
			window = append(window, ts)
		}
	}

	if len(window) >= limit {
		l.local[key] = window
		return fmt.Errorf("%w: %d requests/minute", ErrRateLimited, limit)
	}
	l.local[key] = append(window, now)

	// Periodically drop idle keys so the map does not grow unbounded.
	if now.Sub(l.cleanup) > 5*time.Minute {
		for k, times := range l.local {
			if len(times) == 0 || !times[len(times)-1].After(cutoff) {
				delete(l.local, k)
			}
		}
		l.cleanup = now
	}
	return nil
}
