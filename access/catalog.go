// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package access

// Feature describes one catalog entry: the tier that grants full access and
// the lowest tier allowed to try the feature in demo mode. A caller below
// DemoFloor is locked out entirely.
type Feature struct {
	Required  Tier `yaml:"required"`
	DemoFloor Tier `yaml:"demo_floor"`
}

// Catalog maps feature names to their access rules. The zero value is an
// empty catalog where every lookup fails closed to ENTERPRISE.
type Catalog struct {
	features map[string]Feature
}

// NewCatalog builds a catalog from an explicit feature table.
func NewCatalog(features map[string]Feature) *Catalog {
	m := make(map[string]Feature, len(features))
	for name, f := range features {
		if !f.Required.Valid() {
			f.Required = TierEnterprise
		}
		if !f.DemoFloor.Valid() {
			f.DemoFloor = TierFree
		}
		m[name] = f
	}
	return &Catalog{features: m}
}

// DefaultCatalog returns the production feature table.
func DefaultCatalog() *Catalog {
	return NewCatalog(map[string]Feature{
		// FREE tier - full access for everyone
		"compress":      {Required: TierFree, DemoFloor: TierFree},
		"palette":       {Required: TierFree, DemoFloor: TierFree},
		"signature-rip": {Required: TierFree, DemoFloor: TierFree},
		"auto-tag":      {Required: TierFree, DemoFloor: TierFree},

		// STARTER tier - free users get demos
		"upscale":       {Required: TierStarter, DemoFloor: TierFree},
		"remove-bg":     {Required: TierStarter, DemoFloor: TierFree},
		"portrait-mode": {Required: TierStarter, DemoFloor: TierFree},
		"sticker-maker": {Required: TierStarter, DemoFloor: TierFree},

		// PRO tier - free/starter users get demos
		"colorize":       {Required: TierPro, DemoFloor: TierFree},
		"anime":          {Required: TierPro, DemoFloor: TierFree},
		"instant-studio": {Required: TierPro, DemoFloor: TierFree},
		"extend":         {Required: TierPro, DemoFloor: TierFree},

		// ENTERPRISE tier - only PRO users get demos, everyone else is locked
		"magic-erase":  {Required: TierEnterprise, DemoFloor: TierPro},
		"vectorize":    {Required: TierEnterprise, DemoFloor: TierPro},
		"privacy-blur": {Required: TierEnterprise, DemoFloor: TierPro},
	})
}

// RequiredTier returns the minimum tier granting full access to a feature.
// Unknown features require ENTERPRISE so a routing mistake can never grant
// access to something the catalog does not know about.
func (c *Catalog) RequiredTier(feature string) Tier {
	if f, ok := c.lookup(feature); ok {
		return f.Required
	}
	return TierEnterprise
}

// DemoFloor returns the minimum tier allowed to demo a feature. Unknown
// features fail closed: no tier below ENTERPRISE may demo them.
func (c *Catalog) DemoFloor(feature string) Tier {
	if f, ok := c.lookup(feature); ok {
		return f.DemoFloor
	}
	return TierEnterprise
}

// Features returns the names of all registered features.
func (c *Catalog) Features() []string {
	names := make([]string, 0, len(c.features))
	for name := range c.features {
		names = append(names, name)
	}
	return names
}

func (c *Catalog) lookup(feature string) (Feature, bool) {
	if c == nil || c.features == nil {
		return Feature{}, false
	}
	f, ok := c.features[feature]
	return f, ok
}
