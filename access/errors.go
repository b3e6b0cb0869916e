// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package access

import "errors"

var (
	// ErrKeyNotFound is returned when no account exists for an API key
	ErrKeyNotFound = errors.New("api key not found")

	// ErrKeyDisabled is returned when the account behind a key is inactive
	ErrKeyDisabled = errors.New("api key disabled")

	// ErrKeyExists is returned when creating an account whose key is taken
	ErrKeyExists = errors.New("api key already exists")

	// ErrEmailExists is returned when an email is already registered
	ErrEmailExists = errors.New("email already registered")

	// ErrInvalidTier is returned for an unknown tier name
	ErrInvalidTier = errors.New("invalid tier")

	// ErrStoreUnavailable wraps store read/write failures. Callers must fail
	// closed: an authorization that hits this error is a denial, never a grant.
	ErrStoreUnavailable = errors.New("quota store unavailable")
)
