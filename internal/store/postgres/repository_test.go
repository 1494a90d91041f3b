// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/pkg/errutil"
)

var accountColumns = []string{"id", "handle", "email", "password_hash", "created_at", "updated_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func testAccount(t *testing.T) *account.Account {
	t.Helper()
	acct, err := account.NewAccount("alice", "a@x.com", "$argon2id$hash", time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC))
	require.NoError(t, err)
	return acct
}

func TestRepository_Create(t *testing.T) {
	acct := testAccount(t)

	tests := []struct {
		name      string
		execErr   error
		wantErr   error
		wantCode  string
		wantField string
	}{
		{name: "success"},
		{
			name:      "duplicate handle",
			execErr:   &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: handleIndex},
			wantErr:   account.ErrConflict,
			wantCode:  "ACCOUNT_CONFLICT",
			wantField: "handle",
		},
		{
			name:      "duplicate email",
			execErr:   &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: emailIndex},
			wantErr:   account.ErrConflict,
			wantCode:  "ACCOUNT_CONFLICT",
			wantField: "email",
		},
		{
			name:      "duplicate id",
			execErr:   &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_pkey"},
			wantErr:   account.ErrConflict,
			wantCode:  "ACCOUNT_CONFLICT",
			wantField: "id",
		},
		{
			name:     "other database error",
			execErr:  errors.New("connection refused"),
			wantCode: "ACCOUNT_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			exp := mock.ExpectExec(`INSERT INTO accounts`).
				WithArgs(acct.ID.String(), "alice", "a@x.com", "$argon2id$hash", acct.CreatedAt, acct.UpdatedAt)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			err := NewRepository(mock).Create(context.Background(), acct)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NotErrorIs(t, err, account.ErrConflict)
			}
			if tt.wantField != "" {
				errutil.AssertErrorContext(t, err, "field", tt.wantField)
			}
		})
	}
}

func TestRepository_GetByID(t *testing.T) {
	acct := testAccount(t)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`WHERE id = \$1`).
			WithArgs(acct.ID.String()).
			WillReturnRows(pgxmock.NewRows(accountColumns).
				AddRow(acct.ID.String(), acct.Handle, acct.Email, acct.PasswordHash, acct.CreatedAt, acct.UpdatedAt))

		got, err := NewRepository(mock).GetByID(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, acct, got)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`WHERE id = \$1`).
			WithArgs(acct.ID.String()).
			WillReturnRows(pgxmock.NewRows(accountColumns))

		_, err := NewRepository(mock).GetByID(ctx, acct.ID)
		require.Error(t, err)
		assert.ErrorIs(t, err, account.ErrNotFound)
		errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_FOUND")
	})

	t.Run("corrupt id", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`WHERE id = \$1`).
			WithArgs(acct.ID.String()).
			WillReturnRows(pgxmock.NewRows(accountColumns).
				AddRow("not-a-ulid", acct.Handle, acct.Email, acct.PasswordHash, acct.CreatedAt, acct.UpdatedAt))

		_, err := NewRepository(mock).GetByID(ctx, acct.ID)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ACCOUNT_QUERY_FAILED")
	})

	t.Run("query error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`WHERE id = \$1`).
			WithArgs(acct.ID.String()).
			WillReturnError(errors.New("connection reset"))

		_, err := NewRepository(mock).GetByID(ctx, acct.ID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, account.ErrNotFound)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestRepository_GetByHandle_CaseInsensitive(t *testing.T) {
	acct := testAccount(t)
	mock := newMock(t)
	mock.ExpectQuery(`WHERE LOWER\(handle\) = LOWER\(\$1\)`).
		WithArgs("ALICE").
		WillReturnRows(pgxmock.NewRows(accountColumns).
			AddRow(acct.ID.String(), acct.Handle, acct.Email, acct.PasswordHash, acct.CreatedAt, acct.UpdatedAt))

	got, err := NewRepository(mock).GetByHandle(context.Background(), "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Handle)
}

func TestRepository_GetByEmail_NotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`WHERE email = \$1`).
		WithArgs("nobody@x.com").
		WillReturnRows(pgxmock.NewRows(accountColumns))

	_, err := NewRepository(mock).GetByEmail(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, account.ErrNotFound)
	errutil.AssertErrorContext(t, err, "email", "nobody@x.com")
}

func TestRepository_UpdatePassword(t *testing.T) {
	id := ulid.Make()
	at := time.Date(2026, 2, 3, 5, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("updated", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE accounts SET password_hash`).
			WithArgs(id.String(), "new-hash", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewRepository(mock).UpdatePassword(ctx, id, "new-hash", at))
	})

	t.Run("no such account", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE accounts SET password_hash`).
			WithArgs(id.String(), "new-hash", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewRepository(mock).UpdatePassword(ctx, id, "new-hash", at)
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE accounts SET password_hash`).
			WithArgs(id.String(), "new-hash", at).
			WillReturnError(errors.New("deadlock detected"))

		err := NewRepository(mock).UpdatePassword(ctx, id, "new-hash", at)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ACCOUNT_UPDATE_FAILED")
	})
}

func TestRepository_Ping(t *testing.T) {
	mock := newMock(t)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("no route to host"))

	repo := NewRepository(mock)
	require.NoError(t, repo.Ping(context.Background()))

	err := repo.Ping(context.Background())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_UNAVAILABLE")
}
