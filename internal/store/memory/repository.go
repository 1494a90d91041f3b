// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process account repository for development
// and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// Repository stores accounts in maps guarded by a mutex. Returned accounts
// are copies; callers cannot mutate stored state.
type Repository struct {
	mu       sync.RWMutex
	byID     map[ulid.ULID]account.Account
	byHandle map[string]ulid.ULID
	byEmail  map[string]ulid.ULID
}

var _ account.Repository = (*Repository)(nil)

// NewRepository creates an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		byID:     make(map[ulid.ULID]account.Account),
		byHandle: make(map[string]ulid.ULID),
		byEmail:  make(map[string]ulid.ULID),
	}
}

func handleKey(handle string) string { return strings.ToLower(handle) }

// Create stores acct. The handle and email must both be unused.
func (r *Repository) Create(_ context.Context, acct *account.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHandle[handleKey(acct.Handle)]; ok {
		return oops.Code("ACCOUNT_CONFLICT").With("field", "handle").Wrap(account.ErrConflict)
	}
	if _, ok := r.byEmail[acct.Email]; ok {
		return oops.Code("ACCOUNT_CONFLICT").With("field", "email").Wrap(account.ErrConflict)
	}
	if _, ok := r.byID[acct.ID]; ok {
		return oops.Code("ACCOUNT_CONFLICT").With("field", "id").Wrap(account.ErrConflict)
	}

	r.byID[acct.ID] = *acct
	r.byHandle[handleKey(acct.Handle)] = acct.ID
	r.byEmail[acct.Email] = acct.ID
	return nil
}

// GetByID returns the account with id.
func (r *Repository) GetByID(_ context.Context, id ulid.ULID) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(id, "id", id.String())
}

// GetByHandle returns the account with handle, ignoring case.
func (r *Repository) GetByHandle(_ context.Context, handle string) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHandle[handleKey(handle)]
	if !ok {
		return nil, notFound("handle", handle)
	}
	return r.get(id, "handle", handle)
}

// GetByEmail returns the account with email.
func (r *Repository) GetByEmail(_ context.Context, email string) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, notFound("email", email)
	}
	return r.get(id, "email", email)
}

// UpdatePassword replaces the stored hash of the account with id.
func (r *Repository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.byID[id]
	if !ok {
		return notFound("id", id.String())
	}
	acct.PasswordHash = passwordHash
	acct.UpdatedAt = updatedAt
	r.byID[id] = acct
	return nil
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }

// Close is a no-op.
func (r *Repository) Close(context.Context) error { return nil }

// Len returns the number of stored accounts.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Repository) get(id ulid.ULID, field, value string) (*account.Account, error) {
	acct, ok := r.byID[id]
	if !ok {
		return nil, notFound(field, value)
	}
	return &acct, nil
}

func notFound(field, value string) error {
	return oops.Code("ACCOUNT_NOT_FOUND").With(field, value).Wrap(account.ErrNotFound)
}
