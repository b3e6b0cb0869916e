// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

/*
Package logger provides structured JSON logging for VisionCore gateway
components.

Each log entry is a single JSON line on stdout carrying the timestamp,
level, component, instance identity, a redacted API key prefix, the request
ID, and optional custom fields, so the entries are directly consumable by
log aggregation systems.

Create a logger for your component:

	log := logger.New("gateway")

and log with caller context:

	log.Info(apiKey, requestID, "authorized", map[string]interface{}{
		"feature": "upscale",
		"outcome": "GRANTED_DEMO",
	})

API keys are never written verbatim; they are reduced to a short prefix via
RedactKey before serialization.
*/
package logger
