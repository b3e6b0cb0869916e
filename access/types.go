// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

// Package access implements the access-control and quota-enforcement engine
// for the VisionCore gateway. Given an API key and a requested feature it
// decides between a full grant, a watermarked demo grant, or a denial, and
// applies the matching credit/demo bookkeeping atomically against the
// quota store.
package access

import "time"

// Tier is an ordered subscription level. Higher tiers unlock every feature
// a lower tier unlocks.
type Tier string

const (
	TierFree       Tier = "FREE"
	TierStarter    Tier = "STARTER"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
)

// tierRank maps tiers onto their ordering. Unknown tiers rank below FREE so
// a corrupted record never unlocks anything.
var tierRank = map[Tier]int{
	TierFree:       0,
	TierStarter:    1,
	TierPro:        2,
	TierEnterprise: 3,
}

// ParseTier normalizes a tier name. "BASIC" is accepted as a legacy alias
// for STARTER (the billing partner still sends it).
func ParseTier(s string) (Tier, bool) {
	switch Tier(normalizeTier(s)) {
	case TierFree:
		return TierFree, true
	case TierStarter, Tier("BASIC"):
		return TierStarter, true
	case TierPro:
		return TierPro, true
	case TierEnterprise:
		return TierEnterprise, true
	}
	return "", false
}

func normalizeTier(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// AtLeast reports whether t ranks at or above other.
func (t Tier) AtLeast(other Tier) bool {
	return tierRank[t] >= tierRank[other]
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Account is the persistent record behind one issued API key.
type Account struct {
	Key       string         `json:"key"`
	Email     string         `json:"email,omitempty"`
	Name      string         `json:"name,omitempty"`
	Tier      Tier           `json:"tier"`
	Credits   int            `json:"credits"`
	Active    bool           `json:"active"`
	DemoUsage map[string]int `json:"demo_usage,omitempty"` // feature -> demos consumed
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// DemoCount returns the number of demo invocations consumed for a feature.
func (a *Account) DemoCount(feature string) int {
	if a.DemoUsage == nil {
		return 0
	}
	return a.DemoUsage[feature]
}

// Outcome is the engine's verdict for one authorization.
type Outcome string

const (
	// DeniedLocked: the feature is above the caller's tier and the caller is
	// below the feature's demo floor.
	DeniedLocked Outcome = "DENIED_LOCKED"

	// DeniedNoCredit: the account's credit balance is exhausted.
	DeniedNoCredit Outcome = "DENIED_NO_CREDIT"

	// DeniedDemoExhausted: the per-feature demo allowance is used up.
	DeniedDemoExhausted Outcome = "DENIED_DEMO_EXHAUSTED"

	// GrantedFull: full access, output leaves the system unmodified.
	GrantedFull Outcome = "GRANTED_FULL"

	// GrantedDemo: trial access, output must be watermarked before delivery.
	GrantedDemo Outcome = "GRANTED_DEMO"
)

// Granted reports whether the outcome permits running the transform.
func (o Outcome) Granted() bool {
	return o == GrantedFull || o == GrantedDemo
}

// Decision is the per-request verdict handed to the request handler. It is
// never persisted.
type Decision struct {
	Outcome Outcome `json:"outcome"`

	// DemosRemaining is meaningful only when Outcome is GrantedDemo.
	DemosRemaining int `json:"demos_remaining,omitempty"`

	// TierRequired names the tier that unlocks the feature; set for
	// DeniedLocked and DeniedDemoExhausted so the caller can render an
	// upgrade prompt.
	TierRequired Tier `json:"tier_required,omitempty"`

	// Tier and Credits reflect the account after the decision was applied.
	Tier    Tier `json:"tier"`
	Credits int  `json:"credits"`
}
