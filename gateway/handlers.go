// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"time"

	"visioncore/platform/access"
	"visioncore/platform/common/usage"
	"visioncore/platform/stamp"
	"visioncore/platform/transform"
)

const maxUploadBytes = 32 << 20

// featureHandler returns the metered handler for one transform endpoint.
// The upload is parsed before authorization so that malformed requests are
// rejected without touching credits or demo counters.
func (s *Server) featureHandler(feature string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := RequestID(r.Context())

		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			s.writeError(w, r, http.StatusUnauthorized,
				"missing API key, sign up at /v1/auth/signup")
			return
		}

		req, err := parseTransformRequest(r)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		account, err := s.store.Get(r.Context(), key)
		if err != nil {
			s.failAccess(w, r, key, feature, err)
			return
		}

		if err := s.limiter.Allow(r.Context(), key, account.Tier); err != nil {
			s.metrics.RateLimited.Inc()
			s.record(key, requestID, feature, "RATE_LIMITED", http.StatusTooManyRequests, start)
			s.writeError(w, r, http.StatusTooManyRequests,
				"rate limit exceeded, retry shortly")
			return
		}

		decision, err := s.engine.Authorize(r.Context(), key, feature)
		if err != nil {
			s.failAccess(w, r, key, feature, err)
			return
		}
		s.metrics.Authorizations.WithLabelValues(feature, string(decision.Outcome)).Inc()

		switch decision.Outcome {
		case access.DeniedLocked:
			s.record(key, requestID, feature, string(decision.Outcome), http.StatusForbidden, start)
			s.writeError(w, r, http.StatusForbidden, fmt.Sprintf(
				"%s requires the %s plan, upgrade at /v1/pricing", feature, decision.TierRequired))
			return
		case access.DeniedDemoExhausted:
			s.record(key, requestID, feature, string(decision.Outcome), http.StatusForbidden, start)
			s.writeError(w, r, http.StatusForbidden, fmt.Sprintf(
				"demo limit reached for %s, upgrade to %s at /v1/pricing", feature, decision.TierRequired))
			return
		case access.DeniedNoCredit:
			s.record(key, requestID, feature, string(decision.Outcome), http.StatusTooManyRequests, start)
			s.writeError(w, r, http.StatusTooManyRequests,
				"out of credits, top up or upgrade at /v1/pricing")
			return
		}

		fn, err := s.registry.Get(feature)
		if err != nil {
			s.record(key, requestID, feature, string(decision.Outcome), http.StatusServiceUnavailable, start)
			s.writeError(w, r, http.StatusServiceUnavailable, "feature temporarily unavailable")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ModelTimeout())
		defer cancel()

		result, err := fn(ctx, req)
		if err != nil {
			status := http.StatusBadGateway
			msg := "transform failed"
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
				msg = "transform timed out"
			}
			s.log.ErrorWithCode(key, requestID, "transform failed", status, err, map[string]interface{}{
				"feature": feature,
			})
			s.record(key, requestID, feature, string(decision.Outcome), status, start)
			s.writeError(w, r, status, msg)
			return
		}

		if decision.Outcome == access.GrantedDemo && result.Image != nil {
			result.Image = stamp.Stamp(result.Image, decision.DemosRemaining)
		}

		s.record(key, requestID, feature, string(decision.Outcome), http.StatusOK, start)
		s.metrics.RequestLatency.WithLabelValues(feature).Observe(time.Since(start).Seconds())
		s.log.InfoWithDuration(key, requestID, "transform served", float64(time.Since(start).Milliseconds()), map[string]interface{}{
			"feature": feature,
			"outcome": string(decision.Outcome),
		})

		w.Header().Set("X-Credits-Remaining", fmt.Sprintf("%d", decision.Credits))
		if decision.Outcome == access.GrantedDemo {
			w.Header().Set("X-Demo-Mode", "true")
			w.Header().Set("X-Demos-Remaining", fmt.Sprintf("%d", decision.DemosRemaining))
		}
		writeResult(w, result)
	}
}

// failAccess maps precondition failures from the store or engine onto HTTP
// statuses. Store failures never turn into a grant.
func (s *Server) failAccess(w http.ResponseWriter, r *http.Request, key, feature string, err error) {
	requestID := RequestID(r.Context())
	switch {
	case errors.Is(err, access.ErrKeyNotFound):
		s.record(key, requestID, feature, "INVALID_KEY", http.StatusForbidden, time.Now())
		s.writeError(w, r, http.StatusForbidden, "invalid API key")
	case errors.Is(err, access.ErrKeyDisabled):
		s.record(key, requestID, feature, "KEY_DISABLED", http.StatusForbidden, time.Now())
		s.writeError(w, r, http.StatusForbidden, "API key disabled")
	default:
		s.log.ErrorWithCode(key, requestID, "quota store failure", http.StatusServiceUnavailable,
			err, map[string]interface{}{"feature": feature})
		s.writeError(w, r, http.StatusServiceUnavailable, "service temporarily unavailable")
	}
}

func (s *Server) record(key, requestID, feature, outcome string, status int, start time.Time) {
	s.usage.RecordAsync(usage.Event{
		APIKey:     key,
		RequestID:  requestID,
		Feature:    feature,
		Outcome:    outcome,
		StatusCode: status,
		LatencyMs:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
}

func parseTransformRequest(r *http.Request) (transform.Request, error) {
	var req transform.Request
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return req, fmt.Errorf("invalid multipart upload: %w", err)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return req, errors.New("missing file field")
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return req, errors.New("unsupported or corrupt image")
	}
	req.Image = img

	if mask, _, err := r.FormFile("mask"); err == nil {
		defer mask.Close()
		m, _, err := image.Decode(mask)
		if err != nil {
			return req, errors.New("unsupported or corrupt mask image")
		}
		req.Mask = m
	}

	req.Options = map[string]string{}
	for name, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			req.Options[name] = values[0]
		}
	}
	return req, nil
}

func writeResult(w http.ResponseWriter, result *transform.Result) {
	if result.Image != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, result.Image); err != nil {
			http.Error(w, "failed to encode result", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		return
	}
	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Payload)
}
