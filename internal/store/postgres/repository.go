// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides a PostgreSQL account repository and its schema
// migrations.
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// Unique index names from the migrations.
const (
	handleIndex = "accounts_handle_lower_key"
	emailIndex  = "accounts_email_key"
)

// pool is the subset of pgxpool.Pool the repository needs. pgxmock pools
// satisfy it in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Repository implements account.Repository using PostgreSQL.
type Repository struct {
	pool pool
}

var _ account.Repository = (*Repository)(nil)

// Open connects to PostgreSQL at databaseURL.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("driver", "postgres").Wrap(err)
	}
	return &Repository{pool: p}, nil
}

// NewRepository wraps an existing pool.
func NewRepository(p pool) *Repository {
	return &Repository{pool: p}
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return oops.Code("STORE_UNAVAILABLE").With("driver", "postgres").Wrap(err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Repository) Close(context.Context) error {
	r.pool.Close()
	return nil
}

// Create stores a new account.
func (r *Repository) Create(ctx context.Context, acct *account.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, handle, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		acct.ID.String(),
		acct.Handle,
		acct.Email,
		acct.PasswordHash,
		acct.CreatedAt,
		acct.UpdatedAt,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return oops.Code("ACCOUNT_CONFLICT").
			With("field", conflictField(pgErr.ConstraintName)).
			Wrap(account.ErrConflict)
	}
	return oops.Code("ACCOUNT_CREATE_FAILED").
		With("operation", "insert account").
		With("handle", acct.Handle).
		Wrap(err)
}

func conflictField(constraint string) string {
	switch {
	case constraint == handleIndex:
		return "handle"
	case constraint == emailIndex:
		return "email"
	case strings.HasSuffix(constraint, "_pkey"):
		return "id"
	default:
		return constraint
	}
}

const selectAccount = `
	SELECT id, handle, email, password_hash, created_at, updated_at
	FROM accounts
`

// GetByID retrieves an account by ID.
func (r *Repository) GetByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	row := r.pool.QueryRow(ctx, selectAccount+`WHERE id = $1`, id.String())
	return r.scan(row, "id", id.String())
}

// GetByHandle retrieves an account by handle (case-insensitive).
func (r *Repository) GetByHandle(ctx context.Context, handle string) (*account.Account, error) {
	row := r.pool.QueryRow(ctx, selectAccount+`WHERE LOWER(handle) = LOWER($1)`, handle)
	return r.scan(row, "handle", handle)
}

// GetByEmail retrieves an account by normalized email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	row := r.pool.QueryRow(ctx, selectAccount+`WHERE email = $1`, email)
	return r.scan(row, "email", email)
}

// UpdatePassword replaces the password hash of the account with id.
func (r *Repository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, updatedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, updatedAt)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	return nil
}

func (r *Repository) scan(row pgx.Row, field, value string) (*account.Account, error) {
	var (
		acct  account.Account
		rawID string
	)
	err := row.Scan(&rawID, &acct.Handle, &acct.Email, &acct.PasswordHash, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With(field, value).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "get account by "+field).
			With(field, value).
			Wrap(err)
	}
	acct.ID, err = ulid.Parse(rawID)
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "parse account id").
			With("id", rawID).
			Wrap(err)
	}
	return &acct, nil
}
