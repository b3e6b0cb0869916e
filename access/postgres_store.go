// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PostgresStore implements Store using PostgreSQL. Account rows and their
// demo counters are read and written inside one transaction with the
// account row locked, so the per-key serialization the Store contract
// requires comes from the database itself.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the DDL for the store's tables. Applied by deployment tooling,
// kept here so the code and the schema travel together.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	api_key    TEXT PRIMARY KEY,
	email      TEXT UNIQUE,
	name       TEXT,
	tier       TEXT NOT NULL,
	credits    INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
	active     BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS demo_usage (
	api_key TEXT NOT NULL REFERENCES accounts(api_key),
	feature TEXT NOT NULL,
	count   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (api_key, feature)
);
`

// Get fetches the account for an API key.
func (s *PostgresStore) Get(ctx context.Context, key string) (*Account, error) {
	account, err := s.scanAccount(ctx, s.db,
		`SELECT api_key, email, name, tier, credits, active, created_at, updated_at
		 FROM accounts WHERE api_key = $1`, key)
	if err != nil {
		return nil, err
	}
	if err := s.loadDemoUsage(ctx, s.db, account); err != nil {
		return nil, err
	}
	return account, nil
}

// GetByEmail fetches the account registered under an email address.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	account, err := s.scanAccount(ctx, s.db,
		`SELECT api_key, email, name, tier, credits, active, created_at, updated_at
		 FROM accounts WHERE email = $1`, email)
	if err != nil {
		return nil, err
	}
	if err := s.loadDemoUsage(ctx, s.db, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Create persists a new account.
func (s *PostgresStore) Create(ctx context.Context, account *Account) error {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (api_key, email, name, tier, credits, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.Key, nullString(account.Email), nullString(account.Name),
		account.Tier, account.Credits, account.Active,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			if strings.Contains(err.Error(), "email") {
				return ErrEmailExists
			}
			return ErrKeyExists
		}
		return fmt.Errorf("%w: create account: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Update applies fn to the account under a transaction holding a row lock,
// so concurrent updates for the same key serialize on the database and no
// credit decrement or demo increment can be lost.
func (s *PostgresStore) Update(ctx context.Context, key string, fn func(*Account) error) (*Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	account, err := s.scanAccount(ctx, tx,
		`SELECT api_key, email, name, tier, credits, active, created_at, updated_at
		 FROM accounts WHERE api_key = $1 FOR UPDATE`, key)
	if err != nil {
		return nil, err
	}
	if err := s.loadDemoUsage(ctx, tx, account); err != nil {
		return nil, err
	}

	before := snapshotUsage(account.DemoUsage)

	if err := fn(account); err != nil {
		return nil, err
	}

	account.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET tier = $2, credits = $3, active = $4, updated_at = $5
		 WHERE api_key = $1`,
		account.Key, account.Tier, account.Credits, account.Active, account.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: update account: %v", ErrStoreUnavailable, err)
	}

	for feature, count := range account.DemoUsage {
		if before[feature] == count {
			continue
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO demo_usage (api_key, feature, count) VALUES ($1, $2, $3)
			 ON CONFLICT (api_key, feature) DO UPDATE SET count = EXCLUDED.count`,
			account.Key, feature, count,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: update demo usage: %v", ErrStoreUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
	}
	return account, nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// querier covers *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *PostgresStore) scanAccount(ctx context.Context, q querier, query string, arg interface{}) (*Account, error) {
	var a Account
	var email, name sql.NullString

	err := q.QueryRowContext(ctx, query, arg).Scan(
		&a.Key, &email, &name, &a.Tier, &a.Credits, &a.Active,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get account: %v", ErrStoreUnavailable, err)
	}

	a.Email = email.String
	a.Name = name.String
	return &a, nil
}

func (s *PostgresStore) loadDemoUsage(ctx context.Context, q querier, account *Account) error {
	rows, err := q.QueryContext(ctx,
		`SELECT feature, count FROM demo_usage WHERE api_key = $1`, account.Key)
	if err != nil {
		return fmt.Errorf("%w: get demo usage: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	usage := make(map[string]int)
	for rows.Next() {
		var feature string
		var count int
		if err := rows.Scan(&feature, &count); err != nil {
			return fmt.Errorf("%w: scan demo usage: %v", ErrStoreUnavailable, err)
		}
		usage[feature] = count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: read demo usage: %v", ErrStoreUnavailable, err)
	}
	if len(usage) > 0 {
		account.DemoUsage = usage
	}
	return nil
}

func snapshotUsage(usage map[string]int) map[string]int {
	out := make(map[string]int, len(usage))
	for k, v := range usage {
		out[k] = v
	}
	return out
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
