// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/pkg/errutil"
)

// CredentialStore owns account creation and password hashing on top of a
// Repository. Plaintext passwords never leave this type.
type CredentialStore struct {
	repo   Repository
	hasher PasswordHasher
	now    func() time.Time
	logger *slog.Logger
}

// CredentialOption configures a CredentialStore.
type CredentialOption func(*CredentialStore)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) CredentialOption {
	return func(c *CredentialStore) {
		c.now = now
	}
}

// WithCredentialLogger sets the logger for background failures such as
// hash upgrades.
func WithCredentialLogger(logger *slog.Logger) CredentialOption {
	return func(c *CredentialStore) {
		c.logger = logger
	}
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(repo Repository, hasher PasswordHasher, opts ...CredentialOption) (*CredentialStore, error) {
	if repo == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("password hasher is required")
	}
	c := &CredentialStore{
		repo:   repo,
		hasher: hasher,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Create hashes the password and persists a new account. The returned
// error wraps ErrConflict when the handle or email is taken and
// ErrInvalidInput when validation fails.
func (c *CredentialStore) Create(ctx context.Context, handle, email, password string) (*Account, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := c.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("ACCOUNT_HASH_FAILED").With("operation", "hash password").Wrap(err)
	}

	acct, err := NewAccount(handle, email, hash, c.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := c.repo.Create(ctx, acct); err != nil {
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "create account").
			With("handle", handle).
			Wrap(err)
	}
	return acct, nil
}

// VerifyPassword reports whether password matches the account's stored
// hash. A malformed stored hash is logged and treated as a mismatch. A
// matching legacy hash is upgraded in place.
func (c *CredentialStore) VerifyPassword(ctx context.Context, acct *Account, password string) bool {
	ok, err := c.hasher.Verify(password, acct.PasswordHash)
	if err != nil {
		errutil.LogError(c.logger, "stored password hash unreadable",
			oops.With("account_id", acct.ID.String()).Wrap(err))
		return false
	}
	if !ok {
		return false
	}
	if c.hasher.NeedsUpgrade(acct.PasswordHash) {
		c.upgradeHash(ctx, acct, password)
	}
	return true
}

func (c *CredentialStore) upgradeHash(ctx context.Context, acct *Account, password string) {
	if err := c.SetPassword(ctx, acct, password); err != nil {
		errutil.LogError(c.logger, "password hash upgrade failed", err)
		return
	}
	c.logger.InfoContext(ctx, "password hash upgraded", "account_id", acct.ID.String())
}

// SetPassword re-hashes and persists a new password. It does not check
// the previous password.
func (c *CredentialStore) SetPassword(ctx context.Context, acct *Account, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := c.hasher.Hash(password)
	if err != nil {
		return oops.Code("ACCOUNT_HASH_FAILED").With("operation", "hash password").Wrap(err)
	}
	updatedAt := c.now().UTC()
	if err := c.repo.UpdatePassword(ctx, acct.ID, hash, updatedAt); err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update password").
			With("account_id", acct.ID.String()).
			Wrap(err)
	}
	acct.PasswordHash = hash
	acct.UpdatedAt = updatedAt
	return nil
}

// FindByHandle looks up an account by handle. A missing account is
// reported as (nil, false, nil).
func (c *CredentialStore) FindByHandle(ctx context.Context, handle string) (*Account, bool, error) {
	return found(c.repo.GetByHandle(ctx, handle))
}

// FindByID looks up an account by ID. A missing account is reported as
// (nil, false, nil).
func (c *CredentialStore) FindByID(ctx context.Context, id ulid.ULID) (*Account, bool, error) {
	return found(c.repo.GetByID(ctx, id))
}

// FindByEmail looks up an account by email. A missing account is reported
// as (nil, false, nil).
func (c *CredentialStore) FindByEmail(ctx context.Context, email string) (*Account, bool, error) {
	return found(c.repo.GetByEmail(ctx, NormalizeEmail(email)))
}

func found(acct *Account, err error) (*Account, bool, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return acct, true, nil
}
