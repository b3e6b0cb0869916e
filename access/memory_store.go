// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for local development and tests.
// Updates serialize per key; reads and updates for different keys do not
// contend beyond the map lookup.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	locks    map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Get fetches a copy of the account for an API key.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[key]; ok {
		return copyAccount(a), nil
	}
	return nil, ErrKeyNotFound
}

// GetByEmail fetches a copy of the account registered under an email.
func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.Email != "" && a.Email == email {
			return copyAccount(a), nil
		}
	}
	return nil, ErrKeyNotFound
}

// Create persists a new account.
func (s *MemoryStore) Create(ctx context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.Key]; exists {
		return ErrKeyExists
	}
	if account.Email != "" {
		for _, a := range s.accounts {
			if a.Email == account.Email {
				return ErrEmailExists
			}
		}
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.UpdatedAt = account.CreatedAt
	s.accounts[account.Key] = copyAccount(account)
	return nil
}

// Update applies fn under the key's mutex, so concurrent updates for one
// key serialize exactly like row locking does in the Postgres store.
func (s *MemoryStore) Update(ctx context.Context, key string, fn func(*Account) error) (*Account, error) {
	lock, err := s.keyLock(key)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current, ok := s.accounts[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrKeyNotFound
	}

	working := copyAccount(current)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.accounts[key] = working
	s.mu.Unlock()
	return copyAccount(working), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) keyLock(key string) (*sync.Mutex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[key]; !ok {
		return nil, ErrKeyNotFound
	}
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock, nil
}

func copyAccount(a *Account) *Account {
	out := *a
	if a.DemoUsage != nil {
		out.DemoUsage = make(map[string]int, len(a.DemoUsage))
		for k, v := range a.DemoUsage {
			out.DemoUsage[k] = v
		}
	}
	return &out
}
