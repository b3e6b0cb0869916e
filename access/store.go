// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package access

import "context"

// Store is the persistence contract for account records. It is the only
// shared mutable state in the system; no in-process caching of accounts is
// permitted outside an implementation's own atomic update path.
type Store interface {
	// Get fetches the account for an API key. Returns ErrKeyNotFound when no
	// record exists and an error wrapping ErrStoreUnavailable on
	// infrastructure failure.
	Get(ctx context.Context, key string) (*Account, error)

	// GetByEmail fetches the account registered under an email address.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Create persists a new account. Returns ErrKeyExists or ErrEmailExists
	// on uniqueness violations.
	Create(ctx context.Context, account *Account) error

	// Update applies fn to the account under a per-key atomic
	// read-modify-write: two concurrent Updates for the same key must not
	// both observe the same starting state, and the mutated record must be
	// persisted as a single logical write. If fn returns an error the record
	// is left untouched and the error is propagated. Updates for different
	// keys proceed independently.
	Update(ctx context.Context, key string, fn func(*Account) error) (*Account, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
