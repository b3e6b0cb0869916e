// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the VisionCore API gateway.
//
// The gateway fronts the image transformation models with a tiered,
// metered HTTP API: it authenticates API keys, enforces per-tier feature
// access with credit deduction and demo quotas, rate-limits callers, and
// watermarks demo output before delivery.
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string (in-memory store if unset)
//	REDIS_URL - Redis connection string for rate limiting (optional)
//	MODEL_ENDPOINT - base URL of the model inference service (optional)
//	BILLING_WEBHOOK_SECRET - HMAC secret for billing-partner webhooks
//	ADMIN_JWT_SECRET - HMAC secret for admin API tokens
//	GATEWAY_CONFIG - path to a YAML config file (optional)
package main

import (
	"log"

	"visioncore/platform/gateway"
)

func main() {
	if err := gateway.Run(); err != nil {
		log.Fatalf("gateway: %v", err)
	}
}
