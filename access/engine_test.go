// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func newTestEngine(t *testing.T, accounts ...*Account) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	for _, a := range accounts {
		if err := store.Create(context.Background(), a); err != nil {
			t.Fatalf("seed account %s: %v", a.Key, err)
		}
	}
	return NewEngine(store, DefaultCatalog(), DefaultConfig()), store
}

func account(key string, tier Tier, credits int) *Account {
	return &Account{Key: key, Tier: tier, Credits: credits, Active: true}
}

func TestAuthorizeDemoSequence(t *testing.T) {
	engine, store := newTestEngine(t, account("k1", TierFree, 5))
	ctx := context.Background()

	// Three demo calls: counter climbs, credits drain, remaining counts down.
	for i := 1; i <= 3; i++ {
		d, err := engine.Authorize(ctx, "k1", "upscale")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if d.Outcome != GrantedDemo {
			t.Fatalf("call %d: outcome = %s, want GRANTED_DEMO", i, d.Outcome)
		}
		if d.DemosRemaining != 3-i {
			t.Errorf("call %d: demos remaining = %d, want %d", i, d.DemosRemaining, 3-i)
		}
		if d.Credits != 5-i {
			t.Errorf("call %d: credits = %d, want %d", i, d.Credits, 5-i)
		}
	}

	// Fourth call is exhausted and must not mutate anything.
	d, err := engine.Authorize(ctx, "k1", "upscale")
	if err != nil {
		t.Fatalf("call 4: %v", err)
	}
	if d.Outcome != DeniedDemoExhausted {
		t.Fatalf("call 4: outcome = %s, want DENIED_DEMO_EXHAUSTED", d.Outcome)
	}
	if d.TierRequired != TierStarter {
		t.Errorf("call 4: tier required = %s, want STARTER", d.TierRequired)
	}

	a, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if a.DemoCount("upscale") != 3 {
		t.Errorf("demo count = %d, want 3", a.DemoCount("upscale"))
	}
	if a.Credits != 2 {
		t.Errorf("credits = %d, want 2", a.Credits)
	}
}

func TestAuthorizeFullGrant(t *testing.T) {
	engine, store := newTestEngine(t, account("k1", TierPro, 10))

	d, err := engine.Authorize(context.Background(), "k1", "upscale")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Outcome != GrantedFull {
		t.Fatalf("outcome = %s, want GRANTED_FULL", d.Outcome)
	}
	if d.Credits != 9 {
		t.Errorf("credits = %d, want 9", d.Credits)
	}

	// A tier-unlocked feature is never demo-metered.
	a, _ := store.Get(context.Background(), "k1")
	if a.DemoCount("upscale") != 0 {
		t.Errorf("demo count = %d, want 0", a.DemoCount("upscale"))
	}
}

func TestAuthorizeNoCreditRegardlessOfTier(t *testing.T) {
	engine, _ := newTestEngine(t, account("k1", TierEnterprise, 0))

	d, err := engine.Authorize(context.Background(), "k1", "magic-erase")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Outcome != DeniedNoCredit {
		t.Fatalf("outcome = %s, want DENIED_NO_CREDIT", d.Outcome)
	}
}

func TestAuthorizeDemoBlockedByCreditGate(t *testing.T) {
	engine, store := newTestEngine(t, account("k1", TierFree, 0))

	d, err := engine.Authorize(context.Background(), "k1", "upscale")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	// Credit check wins over the demo grant: no free access, no demo charged.
	if d.Outcome != DeniedNoCredit {
		t.Fatalf("outcome = %s, want DENIED_NO_CREDIT", d.Outcome)
	}
	a, _ := store.Get(context.Background(), "k1")
	if a.DemoCount("upscale") != 0 {
		t.Errorf("demo count = %d, want 0", a.DemoCount("upscale"))
	}
}

func TestAuthorizeFreeDemoVariant(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Create(context.Background(), account("k1", TierFree, 0)); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.DemoConsumesCredit = false
	engine := NewEngine(store, nil, cfg)

	d, err := engine.Authorize(context.Background(), "k1", "upscale")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Outcome != GrantedDemo {
		t.Fatalf("outcome = %s, want GRANTED_DEMO", d.Outcome)
	}
	if d.Credits != 0 {
		t.Errorf("credits = %d, want 0 (untouched)", d.Credits)
	}
}

func TestAuthorizeLocked(t *testing.T) {
	engine, store := newTestEngine(t, account("k1", TierFree, 10))

	d, err := engine.Authorize(context.Background(), "k1", "magic-erase")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Outcome != DeniedLocked {
		t.Fatalf("outcome = %s, want DENIED_LOCKED", d.Outcome)
	}
	if d.TierRequired != TierEnterprise {
		t.Errorf("tier required = %s, want ENTERPRISE", d.TierRequired)
	}

	a, _ := store.Get(context.Background(), "k1")
	if a.Credits != 10 {
		t.Errorf("credits = %d, want 10 (no charge on lock)", a.Credits)
	}
}

func TestAuthorizeUnknownFeatureFailsClosed(t *testing.T) {
	engine, _ := newTestEngine(t,
		account("pro", TierPro, 10),
		account("ent", TierEnterprise, 10),
	)
	ctx := context.Background()

	d, err := engine.Authorize(ctx, "pro", "does-not-exist")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Outcome != DeniedLocked {
		t.Fatalf("pro outcome = %s, want DENIED_LOCKED", d.Outcome)
	}
	if d.TierRequired != TierEnterprise {
		t.Errorf("tier required = %s, want ENTERPRISE", d.TierRequired)
	}

	// Even ENTERPRISE cannot demo around an unregistered feature, but it is
	// tier-unlocked for it by definition of the fail-closed default.
	d, err = engine.Authorize(ctx, "ent", "does-not-exist")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Outcome != GrantedFull {
		t.Fatalf("ent outcome = %s, want GRANTED_FULL", d.Outcome)
	}
}

func TestAuthorizePreconditionFailures(t *testing.T) {
	engine, _ := newTestEngine(t, &Account{Key: "off", Tier: TierPro, Credits: 10, Active: false})

	if _, err := engine.Authorize(context.Background(), "missing", "upscale"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("unknown key: err = %v, want ErrKeyNotFound", err)
	}
	if _, err := engine.Authorize(context.Background(), "", "upscale"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("empty key: err = %v, want ErrKeyNotFound", err)
	}
	if _, err := engine.Authorize(context.Background(), "off", "upscale"); !errors.Is(err, ErrKeyDisabled) {
		t.Errorf("disabled key: err = %v, want ErrKeyDisabled", err)
	}
}

func TestCreditFloor(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Create(context.Background(), account("k1", TierPro, 1)); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.CallCost = 5
	engine := NewEngine(store, nil, cfg)

	d, err := engine.Authorize(context.Background(), "k1", "compress")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Outcome != GrantedFull {
		t.Fatalf("outcome = %s, want GRANTED_FULL", d.Outcome)
	}
	if d.Credits != 0 {
		t.Errorf("credits = %d, want 0 (floored, never negative)", d.Credits)
	}
}

func TestTierMonotonicity(t *testing.T) {
	catalog := DefaultCatalog()
	order := []Tier{TierFree, TierStarter, TierPro, TierEnterprise}

	for _, feature := range catalog.Features() {
		required := catalog.RequiredTier(feature)
		unlocked := false
		for _, tier := range order {
			if tier == required {
				unlocked = true
			}
			if unlocked && !tier.AtLeast(required) {
				t.Errorf("feature %s: tier %s should retain full access", feature, tier)
			}
		}
	}
}

func TestConcurrentDoubleSpend(t *testing.T) {
	const workers = 20
	engine, store := newTestEngine(t, account("k1", TierEnterprise, 1))

	outcomes := make([]Outcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := engine.Authorize(context.Background(), "k1", "upscale")
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			outcomes[i] = d.Outcome
		}(i)
	}
	wg.Wait()

	granted, denied := 0, 0
	for _, o := range outcomes {
		switch o {
		case GrantedFull:
			granted++
		case DeniedNoCredit:
			denied++
		default:
			t.Errorf("unexpected outcome %s", o)
		}
	}
	if granted != 1 {
		t.Errorf("granted = %d, want exactly 1 (no double-spend)", granted)
	}
	if denied != workers-1 {
		t.Errorf("denied = %d, want %d", denied, workers-1)
	}

	a, _ := store.Get(context.Background(), "k1")
	if a.Credits != 0 {
		t.Errorf("credits = %d, want 0", a.Credits)
	}
}

func TestConcurrentDemoLimit(t *testing.T) {
	const workers = 20
	engine, store := newTestEngine(t, account("k1", TierFree, 100))

	var wg sync.WaitGroup
	results := make([]Outcome, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := engine.Authorize(context.Background(), "k1", "colorize")
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = d.Outcome
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, o := range results {
		if o == GrantedDemo {
			granted++
		}
	}
	if granted != 3 {
		t.Errorf("demo grants = %d, want exactly 3", granted)
	}

	a, _ := store.Get(context.Background(), "k1")
	if a.DemoCount("colorize") != 3 {
		t.Errorf("demo count = %d, want 3", a.DemoCount("colorize"))
	}
	if a.Credits != 97 {
		t.Errorf("credits = %d, want 97 (one per granted demo)", a.Credits)
	}
}

// failingStore simulates an unreachable quota store.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (*Account, error) {
	return nil, fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
}
func (failingStore) GetByEmail(context.Context, string) (*Account, error) {
	return nil, fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
}
func (failingStore) Create(context.Context, *Account) error {
	return fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
}
func (failingStore) Update(context.Context, string, func(*Account) error) (*Account, error) {
	return nil, fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
}
func (failingStore) Ping(context.Context) error {
	return fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
}

func TestStoreFailureIsNeverAGrant(t *testing.T) {
	engine := NewEngine(failingStore{}, nil, DefaultConfig())

	d, err := engine.Authorize(context.Background(), "k1", "upscale")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if d != nil {
		t.Fatalf("decision = %+v, want nil on store failure", d)
	}
}
