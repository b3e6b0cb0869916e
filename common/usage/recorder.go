// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

// Package usage records per-request usage events for billing reconciliation
// and abuse analysis. Recording is best-effort: failures are logged and
// never block or fail the request that produced the event.
package usage

import (
	"database/sql"
	"log"
	"time"
)

// Recorder writes usage events to the database.
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a usage recorder over an open database handle.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Schema is the DDL for the usage_events table.
const Schema = `
CREATE TABLE IF NOT EXISTS usage_events (
	id          BIGSERIAL PRIMARY KEY,
	api_key     TEXT,
	request_id  TEXT,
	feature     TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	latency_ms  BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Event is one gateway request worth recording.
type Event struct {
	APIKey     string
	RequestID  string
	Feature    string
	Outcome    string // decision outcome or precondition failure class
	StatusCode int
	LatencyMs  int64
	Timestamp  time.Time
}

// Record inserts one usage event. Errors are logged, not propagated, so a
// metering outage never turns into a request outage.
func (r *Recorder) Record(event Event) {
	if r == nil || r.db == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err := r.db.Exec(`
		INSERT INTO usage_events (api_key, request_id, feature, outcome, status_code, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, nullString(event.APIKey), nullString(event.RequestID), event.Feature,
		event.Outcome, event.StatusCode, event.LatencyMs, event.Timestamp)

	if err != nil {
		log.Printf("[USAGE] failed to record event: %v", err)
	}
}

// RecordAsync inserts the event from a goroutine so the request path never
// waits on the metering write.
func (r *Recorder) RecordAsync(event Event) {
	if r == nil || r.db == nil {
		return
	}
	go r.Record(event)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
