// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"io"
	"net/http"

	"visioncore/platform/access"
	"visioncore/platform/provisioning"
)

const signatureHeader = "X-Billing-Signature"

const maxWebhookBytes = 1 << 20

// handleWebhook processes one billing-partner event. The event kind carried
// in the payload is authoritative; the route kind labels metrics so each
// partner endpoint can be monitored separately.
func (s *Server) handleWebhook(kind provisioning.EventKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := RequestID(r.Context())

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			s.metrics.WebhookEvents.WithLabelValues(string(kind), "error").Inc()
			s.writeError(w, r, http.StatusBadRequest, "unreadable payload")
			return
		}

		account, err := s.webhooks.Process(r.Context(), payload, r.Header.Get(signatureHeader))
		if err != nil {
			switch {
			case errors.Is(err, provisioning.ErrSecretUnset), errors.Is(err, provisioning.ErrBadSignature):
				s.metrics.WebhookEvents.WithLabelValues(string(kind), "rejected").Inc()
				s.log.Warn("", requestID, "webhook rejected", map[string]interface{}{
					"kind":  string(kind),
					"error": err.Error(),
				})
				s.writeError(w, r, http.StatusUnauthorized, "invalid webhook signature")
			case errors.Is(err, provisioning.ErrUnknownEvent),
				errors.Is(err, provisioning.ErrMissingIdentity),
				errors.Is(err, access.ErrKeyNotFound),
				errors.Is(err, access.ErrEmailExists),
				errors.Is(err, access.ErrInvalidTier):
				// Bad payloads get a 4xx so the partner does not retry them.
				s.metrics.WebhookEvents.WithLabelValues(string(kind), "rejected").Inc()
				s.writeError(w, r, http.StatusBadRequest, err.Error())
			default:
				s.metrics.WebhookEvents.WithLabelValues(string(kind), "error").Inc()
				s.log.ErrorWithCode("", requestID, "webhook processing failed",
					http.StatusServiceUnavailable, err, map[string]interface{}{"kind": string(kind)})
				s.writeError(w, r, http.StatusServiceUnavailable, "webhook processing failed")
			}
			return
		}

		s.metrics.WebhookEvents.WithLabelValues(string(kind), "processed").Inc()
		resp := map[string]interface{}{"status": "processed"}
		if account != nil {
			// Cancellations return no account.
			resp["tier"] = account.Tier
			s.log.Info(account.Key, requestID, "webhook processed", map[string]interface{}{
				"kind": string(kind),
				"tier": string(account.Tier),
			})
		} else {
			s.log.Info("", requestID, "webhook processed", map[string]interface{}{
				"kind": string(kind),
			})
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}
