// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/cors"

	"visioncore/platform/access"
	"visioncore/platform/common/usage"
	"visioncore/platform/shared/logger"
	"visioncore/platform/transform"
)

// Run loads configuration, wires the gateway's collaborators, and serves
// until SIGINT or SIGTERM.
func Run() error {
	log := logger.New("gateway")

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, usageRec, closeDB, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()

	var client *transform.ModelClient
	if cfg.ModelEndpoint != "" {
		client = transform.NewModelClient(cfg.ModelEndpoint, cfg.ModelTimeout())
	} else {
		log.Warn("", "", "MODEL_ENDPOINT not set, model-backed features disabled", nil)
	}
	registry := transform.DefaultRegistry(client)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Warn("", "", "redis unavailable, using in-memory rate limiting", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	limiter := NewRateLimiter(redisClient, cfg.RateLimits)

	server := NewServer(cfg, store, registry, limiter, usageRec)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      c.Handler(server.Router()),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.ModelTimeout() + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "", "gateway listening", map[string]interface{}{"port": cfg.Port})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-sig:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log.Info("", "", "shutting down", nil)
	return httpServer.Shutdown(shutdownCtx)
}

// openStore connects the quota store. Without DATABASE_URL the gateway runs
// on the in-memory store, which is fine for development and useless in
// production: every restart forgets all keys.
func openStore(cfg *Config, log *logger.Logger) (access.Store, *usage.Recorder, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("", "", "DATABASE_URL not set, using in-memory quota store", nil)
		return access.NewMemoryStore(), nil, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("ping database: %w", err)
	}

	return access.NewPostgresStore(db), usage.NewRecorder(db), func() { db.Close() }, nil
}
