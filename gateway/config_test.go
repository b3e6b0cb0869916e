// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"visioncore/platform/access"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Engine.DemoLimit != 3 {
		t.Errorf("expected demo limit 3, got %d", cfg.Engine.DemoLimit)
	}
	if cfg.Engine.CallCost != 1 {
		t.Errorf("expected call cost 1, got %d", cfg.Engine.CallCost)
	}
	if !cfg.Engine.DemoConsumesCredit {
		t.Error("demo calls consume credit by default")
	}
	if cfg.RateLimits[access.TierEnterprise] != 0 {
		t.Error("enterprise rate limit must default to unlimited")
	}
	if cfg.ModelTimeout() != 120*time.Second {
		t.Errorf("expected 120s model timeout, got %s", cfg.ModelTimeout())
	}
}

func TestLoadConfigFileWithEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")

	content := `
port: "9090"
database_url: ${TEST_GATEWAY_DB}
engine:
  demo_limit: 5
  call_cost: 2
  demo_consumes_credit: false
rate_limits:
  FREE: 7
catalog:
  resize:
    required: FREE
    demo_floor: FREE
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GATEWAY_CONFIG", path)
	t.Setenv("TEST_GATEWAY_DB", "postgres://cfg-test")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://cfg-test" {
		t.Errorf("env expansion failed, got %q", cfg.DatabaseURL)
	}
	if cfg.Engine.DemoLimit != 5 || cfg.Engine.CallCost != 2 || cfg.Engine.DemoConsumesCredit {
		t.Errorf("engine overrides not applied: %+v", cfg.Engine)
	}
	if cfg.RateLimits[access.TierFree] != 7 {
		t.Errorf("rate limit override not applied, got %d", cfg.RateLimits[access.TierFree])
	}

	catalog := cfg.BuildCatalog()
	if got := catalog.RequiredTier("resize"); got != access.TierFree {
		t.Errorf("catalog override not applied, got %s", got)
	}
	// Features absent from the override table stay locked down.
	if got := catalog.RequiredTier("upscale"); got != access.TierEnterprise {
		t.Errorf("unknown feature must fail closed, got %s", got)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte("port: \"9090\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GATEWAY_CONFIG", path)
	t.Setenv("PORT", "7070")
	t.Setenv("DEMO_LIMIT", "10")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "7070" {
		t.Errorf("environment must win over the file, got %s", cfg.Port)
	}
	if cfg.Engine.DemoLimit != 10 {
		t.Errorf("DEMO_LIMIT override not applied, got %d", cfg.Engine.DemoLimit)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG", "/nonexistent/gateway.yaml")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestExampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte(ExampleConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := defaultConfig()
	if err := cfg.loadFile(path); err != nil {
		t.Fatalf("example config must parse: %v", err)
	}
	if cfg.RateLimits[access.TierPro] != 200 {
		t.Errorf("expected PRO limit 200, got %d", cfg.RateLimits[access.TierPro])
	}
}
