// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"visioncore/platform/access"
)

func testLimiter(t *testing.T, limits map[access.Tier]int) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRateLimiter(client, limits), mr
}

func TestRateLimiterEnforcesLimit(t *testing.T) {
	limiter, _ := testLimiter(t, map[access.Tier]int{access.TierFree: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "key-a", access.TierFree); err != nil {
			t.Fatalf("request %d: unexpected rejection: %v", i+1, err)
		}
	}
	if err := limiter.Allow(ctx, "key-a", access.TierFree); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on request 4, got %v", err)
	}
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	limiter, _ := testLimiter(t, map[access.Tier]int{access.TierFree: 1})
	ctx := context.Background()

	if err := limiter.Allow(ctx, "key-a", access.TierFree); err != nil {
		t.Fatalf("key-a: %v", err)
	}
	if err := limiter.Allow(ctx, "key-b", access.TierFree); err != nil {
		t.Fatalf("key-b must have its own window: %v", err)
	}
}

func TestRateLimiterZeroMeansUnlimited(t *testing.T) {
	limiter, _ := testLimiter(t, map[access.Tier]int{access.TierEnterprise: 0})
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		if err := limiter.Allow(ctx, "key-ent", access.TierEnterprise); err != nil {
			t.Fatalf("enterprise must be unlimited, rejected at %d: %v", i+1, err)
		}
	}
}

func TestRateLimiterFailsOpenWhenRedisDies(t *testing.T) {
	limiter, mr := testLimiter(t, map[access.Tier]int{access.TierFree: 1})
	ctx := context.Background()

	if err := limiter.Allow(ctx, "key-a", access.TierFree); err != nil {
		t.Fatalf("first request: %v", err)
	}

	mr.Close()

	// Redis loss degrades to allowing traffic; the quota engine still
	// bounds what each key can consume.
	if err := limiter.Allow(ctx, "key-a", access.TierFree); err != nil {
		t.Fatalf("expected fail-open on redis outage, got %v", err)
	}
}

func TestRateLimiterLocalFallback(t *testing.T) {
	limiter := NewRateLimiter(nil, map[access.Tier]int{access.TierStarter: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.Allow(ctx, "key-a", access.TierStarter); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := limiter.Allow(ctx, "key-a", access.TierStarter); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited from local window, got %v", err)
	}
}
