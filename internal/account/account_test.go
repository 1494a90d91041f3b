// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/pkg/errutil"
)

func TestValidateHandle(t *testing.T) {
	tests := []struct {
		name    string
		handle  string
		wantErr bool
	}{
		{"simple", "alice", false},
		{"mixed case with digits", "Alice_99", false},
		{"minimum length", "abc", false},
		{"maximum length", strings.Repeat("a", account.MaxHandleLength), false},
		{"too short", "ab", true},
		{"too long", strings.Repeat("a", account.MaxHandleLength+1), true},
		{"starts with digit", "1alice", true},
		{"contains space", "ali ce", true},
		{"contains dash", "ali-ce", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := account.ValidateHandle(tt.handle)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, account.ErrInvalidInput)
				errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_HANDLE")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, account.ValidateEmail("a@x.com"))
	assert.NoError(t, account.ValidateEmail("first.last+tag@example.co.uk"))

	for _, bad := range []string{"", "plain", "@x.com", "a@", "a b@x.com"} {
		err := account.ValidateEmail(bad)
		require.Error(t, err, "email %q", bad)
		assert.ErrorIs(t, err, account.ErrInvalidInput)
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, account.ValidatePassword("pw1"))
	assert.NoError(t, account.ValidatePassword(strings.Repeat("x", account.MaxPasswordBytes)))

	err := account.ValidatePassword("")
	require.Error(t, err)
	assert.ErrorIs(t, err, account.ErrInvalidInput)

	err = account.ValidatePassword(strings.Repeat("x", account.MaxPasswordBytes+1))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_PASSWORD")
}

func TestNewAccount(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("normalizes email and assigns id", func(t *testing.T) {
		acct, err := account.NewAccount("alice", "  Alice@X.com ", "hash", now)
		require.NoError(t, err)
		assert.Equal(t, "alice@x.com", acct.Email)
		assert.NotZero(t, acct.ID)
		assert.Equal(t, now, acct.CreatedAt)
		assert.Equal(t, now, acct.UpdatedAt)
	})

	t.Run("rejects empty hash", func(t *testing.T) {
		_, err := account.NewAccount("alice", "a@x.com", "", now)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_HASH")
	})

	t.Run("rejects invalid handle", func(t *testing.T) {
		_, err := account.NewAccount("a", "a@x.com", "hash", now)
		assert.ErrorIs(t, err, account.ErrInvalidInput)
	})
}

func TestProfile_OmitsPasswordHash(t *testing.T) {
	acct, err := account.NewAccount("alice", "a@x.com", "$argon2id$secret-hash", time.Now())
	require.NoError(t, err)

	p := acct.Profile()
	assert.Equal(t, acct.ID.String(), p.ID)
	assert.Equal(t, "alice", p.Handle)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-hash")
	assert.NotContains(t, string(data), "password")
	assert.Contains(t, string(data), `"name":"alice"`)
}
