// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Handle validation constraints.
const (
	MinHandleLength = 3
	MaxHandleLength = 30
)

// MaxPasswordBytes bounds password length. bcrypt ignores input past 72
// bytes, so legacy hashes and argon2id accept the same range.
const MaxPasswordBytes = 72

// handleRegex matches handles that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var handleRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

var fieldValidator = validator.New()

// Account is a persisted user identity with a hashed credential.
type Account struct {
	ID           ulid.ULID
	Handle       string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public projection of an Account. It carries no credential
// material and is safe to serialize to clients.
type Profile struct {
	ID        string    `json:"_id"`
	Handle    string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile returns the public projection of the account.
func (a *Account) Profile() Profile {
	return Profile{
		ID:        a.ID.String(),
		Handle:    a.Handle,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// NewAccount creates an Account with a fresh ID after validating the handle
// and email. The email is normalized to lower case.
func NewAccount(handle, email, passwordHash string, now time.Time) (*Account, error) {
	if err := ValidateHandle(handle); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &Account{
		ID:           ulid.Make(),
		Handle:       handle,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ValidateHandle checks a handle against the naming rules:
// - Length: MinHandleLength to MaxHandleLength characters
// - Must start with a letter
// - Only letters, numbers, and underscores
func ValidateHandle(handle string) error {
	if len(handle) < MinHandleLength || len(handle) > MaxHandleLength {
		return oops.Code("ACCOUNT_INVALID_HANDLE").
			With("length", len(handle)).
			Wrapf(ErrInvalidInput, "handle must be %d-%d characters", MinHandleLength, MaxHandleLength)
	}
	if !handleRegex.MatchString(handle) {
		return oops.Code("ACCOUNT_INVALID_HANDLE").
			Wrapf(ErrInvalidInput, "handle must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail checks that email is a well-formed address.
func ValidateEmail(email string) error {
	if err := fieldValidator.Var(email, "required,email"); err != nil {
		return oops.Code("ACCOUNT_INVALID_EMAIL").Wrapf(ErrInvalidInput, "invalid email address")
	}
	return nil
}

// ValidatePassword checks a plaintext password against the password policy.
func ValidatePassword(password string) error {
	if password == "" {
		return oops.Code("ACCOUNT_INVALID_PASSWORD").Wrapf(ErrInvalidInput, "password cannot be empty")
	}
	if len(password) > MaxPasswordBytes {
		return oops.Code("ACCOUNT_INVALID_PASSWORD").
			With("max_bytes", MaxPasswordBytes).
			Wrapf(ErrInvalidInput, "password exceeds %d bytes", MaxPasswordBytes)
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository persists accounts.
//
// Lookups return an error wrapping ErrNotFound when no account matches.
// Create returns an error wrapping ErrConflict when the handle or email is
// already taken. Handle lookups are case-insensitive.
type Repository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)
	GetByHandle(ctx context.Context, handle string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, updatedAt time.Time) error
}
