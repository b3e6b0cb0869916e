// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package provisioning

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"visioncore/platform/access"
)

// EventKind identifies a billing-partner subscription event.
type EventKind string

const (
	EventSubscribed EventKind = "subscription.created"
	EventUpgraded   EventKind = "subscription.updated"
	EventCancelled  EventKind = "subscription.cancelled"
)

var (
	// ErrSecretUnset is returned when no webhook secret is configured.
	// Events are rejected rather than accepted unsigned: an unverified
	// webhook path is a free-key minting exploit.
	ErrSecretUnset = errors.New("webhook secret not configured")

	// ErrBadSignature is returned when the payload signature does not match
	ErrBadSignature = errors.New("invalid webhook signature")

	// ErrUnknownEvent is returned for an unrecognized event kind
	ErrUnknownEvent = errors.New("unknown webhook event")

	// ErrMissingIdentity is returned when an event carries no usable email
	ErrMissingIdentity = errors.New("event missing subscriber email")
)

// Event is the decoded billing-partner payload. The subscriber's email is
// the identity that links partner events to accounts.
type Event struct {
	Kind EventKind `json:"kind"`
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
	Subscription struct {
		Plan string `json:"plan"`
	} `json:"subscription"`
}

// Sign computes the hex HMAC-SHA256 of payload under secret. Exposed so
// tests and the partner simulator produce identical signatures.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a partner signature over the raw payload bytes in
// constant time.
func VerifySignature(secret string, payload []byte, signature string) bool {
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookProcessor authenticates and applies billing-partner events.
type WebhookProcessor struct {
	svc    *Service
	secret string
}

// NewWebhookProcessor creates a processor bound to a shared secret.
func NewWebhookProcessor(svc *Service, secret string) *WebhookProcessor {
	return &WebhookProcessor{svc: svc, secret: secret}
}

// Process verifies the signature over the raw payload and applies the
// event: subscribe mints a key, update re-tiers, cancel drops to FREE.
// Returns the affected account for subscribe/update, nil for cancel.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) (*access.Account, error) {
	if p.secret == "" {
		return nil, ErrSecretUnset
	}
	if !VerifySignature(p.secret, payload, signature) {
		return nil, ErrBadSignature
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if event.User.Email == "" {
		return nil, ErrMissingIdentity
	}

	tier, ok := access.ParseTier(event.Subscription.Plan)
	if !ok && event.Kind != EventCancelled {
		return nil, access.ErrInvalidTier
	}

	switch event.Kind {
	case EventSubscribed:
		return p.svc.IssueKey(ctx, event.User.Email, event.User.Name, tier)

	case EventUpgraded:
		account, err := p.svc.store.GetByEmail(ctx, event.User.Email)
		if err != nil {
			return nil, err
		}
		return p.svc.SetTier(ctx, account.Key, tier)

	case EventCancelled:
		account, err := p.svc.store.GetByEmail(ctx, event.User.Email)
		if err != nil {
			return nil, err
		}
		return nil, p.svc.Cancel(ctx, account.Key)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event.Kind)
	}
}
