// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"errors"

	"github.com/holomush/accountd/internal/token"
)

// Sentinel errors for account operations. Callers classify failures with
// errors.Is; the concrete errors returned are oops errors wrapping these.
var (
	// ErrNotFound indicates the requested account does not exist.
	ErrNotFound = errors.New("account not found")

	// ErrConflict indicates the handle or email is already registered.
	ErrConflict = errors.New("account already exists")

	// ErrUnauthorized indicates a credential check failed.
	ErrUnauthorized = errors.New("invalid credentials")

	// ErrUnauthenticated indicates no valid session was presented.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrOldPasswordMismatch indicates the current password supplied to a
	// password change did not match.
	ErrOldPasswordMismatch = errors.New("invalid old password")

	// ErrDelivery indicates the reset message could not be delivered.
	ErrDelivery = errors.New("message delivery failed")

	// ErrInvalidInput indicates a handle, email or password failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidToken indicates a token failed verification.
	ErrInvalidToken = token.ErrInvalidToken
)
