// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured JSON logging for gateway components
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// LogEntry is one structured log line. KeyID carries a redacted API key
// prefix for correlating a caller's requests without ever logging the key.
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	KeyID      string                 `json:"key_id,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the named component. Instance identity comes
// from the deployment environment.
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// RedactKey returns a short, loggable identifier for an API key.
func RedactKey(key string) string {
	if len(key) <= 12 {
		return key
	}
	return key[:12] + "..."
}

// Log writes one structured entry to stdout.
func (l *Logger) Log(level LogLevel, apiKey, requestID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		KeyID:      RedactKey(apiKey),
		RequestID:  requestID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fall back to plain text if JSON marshaling fails
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}

	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(apiKey, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, apiKey, requestID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(apiKey, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, apiKey, requestID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(apiKey, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, apiKey, requestID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(apiKey, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, apiKey, requestID, message, fields)
}

// InfoWithDuration logs an info message with a duration field
func (l *Logger) InfoWithDuration(apiKey, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(apiKey, requestID, message, fields)
}

// ErrorWithCode logs an error with an HTTP status code
func (l *Logger) ErrorWithCode(apiKey, requestID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(apiKey, requestID, message, fields)
}
