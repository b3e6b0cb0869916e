// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

// Package gateway is the VisionCore HTTP front door. It authenticates API
// keys, asks the access engine for a per-request verdict, rate-limits by
// tier, runs the requested image transform, and watermarks demo output.
//
// The package owns everything HTTP: routing, status-code mapping, the
// billing webhook endpoints, the admin provisioning surface, Prometheus
// metrics, and process startup via Run.
package gateway
