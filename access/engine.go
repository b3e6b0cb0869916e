// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"context"
	"errors"
	"fmt"
)

// Config tunes the decision engine.
type Config struct {
	// DemoLimit is the number of demo invocations allowed per (key, feature).
	DemoLimit int

	// CallCost is the number of credits deducted per authorized call.
	CallCost int

	// DemoConsumesCredit selects the billing variant for demo calls. When
	// true (the default policy) a demo call also deducts CallCost credits
	// and a zero balance denies the demo; when false demo calls bypass the
	// credit gate entirely.
	DemoConsumesCredit bool
}

// DefaultConfig returns the production engine configuration.
func DefaultConfig() Config {
	return Config{
		DemoLimit:          3,
		CallCost:           1,
		DemoConsumesCredit: true,
	}
}

// Engine decides authorization outcomes and applies the matching credit and
// demo-counter bookkeeping. It is stateless; all shared state lives in the
// Store, and every authorization is a single atomic read-modify-write so
// concurrent calls for one key can never double-spend.
type Engine struct {
	store   Store
	catalog *Catalog
	cfg     Config
}

// NewEngine creates a decision engine. A nil catalog falls back to the
// default feature table; zero config fields fall back to defaults.
func NewEngine(store Store, catalog *Catalog, cfg Config) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if cfg.DemoLimit <= 0 {
		cfg.DemoLimit = DefaultConfig().DemoLimit
	}
	if cfg.CallCost <= 0 {
		cfg.CallCost = DefaultConfig().CallCost
	}
	return &Engine{store: store, catalog: catalog, cfg: cfg}
}

// Catalog exposes the engine's feature table.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// errNoMutation aborts a store update that must leave the record untouched
// (deny decisions). It never escapes Authorize.
var errNoMutation = errors.New("decision requires no mutation")

// Authorize resolves the outcome for one (key, feature) request and commits
// the bookkeeping in the same atomic update that read the record.
//
// Check order: tier lock, then demo exhaustion, then the credit gate. The
// credit gate runs last on purpose: a demo-eligible caller with no credits
// is reported as DENIED_NO_CREDIT and the demo counter is not charged, so
// an empty balance can never be used to farm free demo calls.
//
// Precondition failures (unknown key, disabled key, store unavailability)
// are returned as errors, distinct from deny decisions; any error from the
// store means no grant took effect.
func (e *Engine) Authorize(ctx context.Context, key, feature string) (*Decision, error) {
	if key == "" {
		return nil, ErrKeyNotFound
	}

	var d Decision
	_, err := e.store.Update(ctx, key, func(a *Account) error {
		if !a.Active {
			return ErrKeyDisabled
		}

		required := e.catalog.RequiredTier(feature)
		d.Tier = a.Tier
		d.Credits = a.Credits

		if a.Tier.AtLeast(required) {
			if a.Credits <= 0 {
				d.Outcome = DeniedNoCredit
				return errNoMutation
			}
			a.Credits = deduct(a.Credits, e.cfg.CallCost)
			d.Outcome = GrantedFull
			d.Credits = a.Credits
			return nil
		}

		// Under tier: demo limits only apply here, a fully unlocked feature
		// is never demo-metered.
		if !a.Tier.AtLeast(e.catalog.DemoFloor(feature)) {
			d.Outcome = DeniedLocked
			d.TierRequired = required
			return errNoMutation
		}

		used := a.DemoCount(feature)
		if used >= e.cfg.DemoLimit {
			d.Outcome = DeniedDemoExhausted
			d.TierRequired = required
			return errNoMutation
		}

		if e.cfg.DemoConsumesCredit && a.Credits <= 0 {
			d.Outcome = DeniedNoCredit
			return errNoMutation
		}

		if a.DemoUsage == nil {
			a.DemoUsage = make(map[string]int)
		}
		a.DemoUsage[feature] = used + 1
		if e.cfg.DemoConsumesCredit {
			a.Credits = deduct(a.Credits, e.cfg.CallCost)
		}

		d.Outcome = GrantedDemo
		d.DemosRemaining = e.cfg.DemoLimit - (used + 1)
		d.Credits = a.Credits
		return nil
	})

	if err != nil && !errors.Is(err, errNoMutation) {
		return nil, err
	}
	if d.Outcome == "" {
		// Store contract violation: Update returned without running fn.
		return nil, fmt.Errorf("authorize %q: %w", feature, ErrStoreUnavailable)
	}
	return &d, nil
}

// deduct lowers a balance by cost, floored at zero.
func deduct(balance, cost int) int {
	if balance <= cost {
		return 0
	}
	return balance - cost
}
