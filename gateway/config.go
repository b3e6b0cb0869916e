// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"visioncore/platform/access"
)

// Config holds everything the gateway needs at startup. Values come from
// the environment, optionally overridden by a YAML config file whose
// contents may reference environment variables as ${VAR}.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	// BillingWebhookSecret authenticates inbound billing events. Empty
	// means the webhook endpoints reject everything.
	BillingWebhookSecret string `yaml:"billing_webhook_secret"`

	// AdminJWTSecret signs/verifies admin bearer tokens. Empty disables
	// the admin surface.
	AdminJWTSecret string `yaml:"admin_jwt_secret"`

	ModelEndpoint  string `yaml:"model_endpoint"`
	ModelTimeoutMS int    `yaml:"model_timeout_ms"`

	Engine struct {
		DemoLimit          int  `yaml:"demo_limit"`
		CallCost           int  `yaml:"call_cost"`
		DemoConsumesCredit bool `yaml:"demo_consumes_credit"`
	} `yaml:"engine"`

	// RateLimits are requests per minute per tier; 0 means unlimited.
	RateLimits map[access.Tier]int `yaml:"rate_limits"`

	// Catalog overrides the built-in feature table when non-empty.
	Catalog map[string]access.Feature `yaml:"catalog"`
}

// LoadConfig builds the runtime configuration: defaults, then the YAML file
// named by GATEWAY_CONFIG (if any), then environment variables on top.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{
		Port:           "8080",
		ModelTimeoutMS: 120000,
		RateLimits: map[access.Tier]int{
			access.TierFree:       10,
			access.TierStarter:    50,
			access.TierPro:        200,
			access.TierEnterprise: 0, // unlimited
		},
	}
	cfg.Engine.DemoLimit = 3
	cfg.Engine.CallCost = 1
	cfg.Engine.DemoConsumesCredit = true
	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	expanded := os.Expand(string(data), func(name string) string {
		return os.Getenv(name)
	})
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("BILLING_WEBHOOK_SECRET"); v != "" {
		c.BillingWebhookSecret = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		c.AdminJWTSecret = v
	}
	if v := os.Getenv("MODEL_ENDPOINT"); v != "" {
		c.ModelEndpoint = v
	}
	if v := os.Getenv("DEMO_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.DemoLimit = n
		}
	}
	if v := os.Getenv("DEMO_CONSUMES_CREDIT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Engine.DemoConsumesCredit = b
		}
	}
}

// ModelTimeout returns the model service timeout as a duration.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutMS) * time.Millisecond
}

// EngineConfig maps the configuration onto the access engine's knobs.
func (c *Config) EngineConfig() access.Config {
	return access.Config{
		DemoLimit:          c.Engine.DemoLimit,
		CallCost:           c.Engine.CallCost,
		DemoConsumesCredit: c.Engine.DemoConsumesCredit,
	}
}

// BuildCatalog returns the feature catalog: overrides from the config file
// when present, the built-in table otherwise.
func (c *Config) BuildCatalog() *access.Catalog {
	if len(c.Catalog) > 0 {
		return access.NewCatalog(c.Catalog)
	}
	return access.DefaultCatalog()
}

// ExampleConfig documents the YAML layout understood by loadFile.
const ExampleConfig = `
port: "8080"
database_url: ${DATABASE_URL}
redis_url: redis://localhost:6379
billing_webhook_secret: ${BILLING_WEBHOOK_SECRET}
admin_jwt_secret: ${ADMIN_JWT_SECRET}
model_endpoint: http://models:9000
engine:
  demo_limit: 3
  call_cost: 1
  demo_consumes_credit: true
rate_limits:
  FREE: 10
  STARTER: 50
  PRO: 200
  ENTERPRISE: 0
`
