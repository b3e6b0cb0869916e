// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

// Package provisioning mints and manages API key records: signup, tier
// changes, cancellation, and the billing-partner webhook events that drive
// them. It shares the quota store with the access engine and goes through
// the same atomic update path for every mutation.
package provisioning

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"visioncore/platform/access"
	"visioncore/platform/shared/logger"
)

// ErrInvalidAmount is returned when a credit top-up amount is zero or
// negative.
var ErrInvalidAmount = errors.New("credit amount must be positive")

// initialCredits is the credit allotment seeded per tier at signup and
// restored on every tier change.
var initialCredits = map[access.Tier]int{
	access.TierFree:       50,
	access.TierStarter:    1000,
	access.TierPro:        10000,
	access.TierEnterprise: 50000,
}

// InitialCredits returns the credit allotment for a tier.
func InitialCredits(tier access.Tier) int {
	return initialCredits[tier]
}

// Service implements the provisioning interface over the quota store.
type Service struct {
	store access.Store
	log   *logger.Logger
}

// NewService creates a provisioning service.
func NewService(store access.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.New("provisioning")
	}
	return &Service{store: store, log: log}
}

// GenerateKey returns a new opaque API key. The prefix makes leaked keys
// identifiable in secret scanners.
func GenerateKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return "vck_live_" + base64.RawURLEncoding.EncodeToString(raw), nil
}

// IssueKey mints a new account at the requested tier with its tier-default
// credit allotment. Duplicate emails are rejected.
func (s *Service) IssueKey(ctx context.Context, email, name string, tier access.Tier) (*access.Account, error) {
	if !tier.Valid() {
		return nil, access.ErrInvalidTier
	}
	if email != "" {
		if _, err := s.store.GetByEmail(ctx, email); err == nil {
			return nil, access.ErrEmailExists
		} else if err != access.ErrKeyNotFound {
			return nil, err
		}
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	account := &access.Account{
		Key:     key,
		Email:   email,
		Name:    name,
		Tier:    tier,
		Credits: InitialCredits(tier),
		Active:  true,
	}
	if err := s.store.Create(ctx, account); err != nil {
		return nil, err
	}

	s.log.Info(key, "", "issued api key", map[string]interface{}{
		"tier":    tier,
		"credits": account.Credits,
	})
	return account, nil
}

// SetTier moves an account to a new tier and resets its credits to the
// tier's allotment.
func (s *Service) SetTier(ctx context.Context, key string, tier access.Tier) (*access.Account, error) {
	if !tier.Valid() {
		return nil, access.ErrInvalidTier
	}

	account, err := s.store.Update(ctx, key, func(a *access.Account) error {
		a.Tier = tier
		a.Credits = InitialCredits(tier)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(key, "", "tier changed", map[string]interface{}{"tier": tier})
	return account, nil
}

// Disable turns off all access for a key. The record is kept.
func (s *Service) Disable(ctx context.Context, key string) error {
	_, err := s.store.Update(ctx, key, func(a *access.Account) error {
		a.Active = false
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Warn(key, "", "api key disabled", nil)
	return nil
}

// Cancel handles subscription cancellation: the account drops to FREE with
// zero credits but stays active and is never deleted.
func (s *Service) Cancel(ctx context.Context, key string) error {
	_, err := s.store.Update(ctx, key, func(a *access.Account) error {
		a.Tier = access.TierFree
		a.Credits = 0
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info(key, "", "subscription cancelled", nil)
	return nil
}

// AddCredits tops up an account's balance.
func (s *Service) AddCredits(ctx context.Context, key string, amount int) (*access.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.store.Update(ctx, key, func(a *access.Account) error {
		a.Credits += amount
		return nil
	})
}

// Status returns the account behind a key.
func (s *Service) Status(ctx context.Context, key string) (*access.Account, error) {
	return s.store.Get(ctx, key)
}
