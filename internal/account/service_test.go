// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/account/mocks"
	"github.com/holomush/accountd/internal/mail"
	"github.com/holomush/accountd/internal/store/memory"
	"github.com/holomush/accountd/internal/token"
	"github.com/holomush/accountd/pkg/errutil"
)

var resetTokenPattern = regexp.MustCompile(`Token ([A-Za-z0-9_\-\.]+)</p>`)

type serviceFixture struct {
	svc    *account.Service
	repo   *memory.Repository
	tokens *token.Issuer
	mailer *mail.Recorder
	now    time.Time
}

func newServiceFixture(t *testing.T, opts ...account.ServiceOption) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:   memory.NewRepository(),
		mailer: mail.NewRecorder(),
		now:    time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	creds, err := account.NewCredentialStore(f.repo, fastHasher(), account.WithClock(clock))
	require.NoError(t, err)

	f.tokens, err = token.NewIssuer(token.Config{
		SessionSecret: []byte("session-secret-0123456789abcdefghij"),
		ResetSecret:   []byte("reset-secret-0123456789abcdefghijklm"),
		SessionTTL:    token.DefaultSessionTTL,
		ResetTTL:      token.DefaultResetTTL,
	}, token.WithClock(clock))
	require.NoError(t, err)

	f.svc, err = account.NewService(creds, f.tokens, f.mailer, opts...)
	require.NoError(t, err)
	return f
}

func (f *serviceFixture) lastResetToken(t *testing.T) string {
	t.Helper()
	msgs := f.mailer.Messages()
	require.NotEmpty(t, msgs)
	m := resetTokenPattern.FindStringSubmatch(msgs[len(msgs)-1].HTMLBody)
	require.Len(t, m, 2, "reset email should carry a token")
	return m[1]
}

func TestNewService_RequiresDeps(t *testing.T) {
	creds, err := account.NewCredentialStore(memory.NewRepository(), fastHasher())
	require.NoError(t, err)
	issuer := mocks.NewMockTokenIssuer(t)

	_, err = account.NewService(nil, issuer, mail.NewRecorder())
	assert.Contains(t, err.Error(), "credential store is required")
	_, err = account.NewService(creds, nil, mail.NewRecorder())
	assert.Contains(t, err.Error(), "token issuer is required")
	_, err = account.NewService(creds, issuer, nil)
	assert.Contains(t, err.Error(), "mail sender is required")
}

func TestService_RegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	profile, err := f.svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Handle)
	assert.Equal(t, "a@x.com", profile.Email)

	session, err := f.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, profile.ID, session.Profile.ID)
	assert.Equal(t, f.now.Add(24*time.Hour), session.ExpiresAt)

	accountID, err := f.tokens.VerifySessionToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, accountID)
}

func TestService_Register_DuplicateHandle(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	_, err := f.svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "alice", "different@x.com", "other-password")
	require.Error(t, err)
	assert.ErrorIs(t, err, account.ErrConflict)
	errutil.AssertErrorCode(t, err, "ACCOUNT_CONFLICT")
	assert.Equal(t, 1, f.repo.Len())
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	_, err := f.svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "bob", "A@X.com", "pw1")
	assert.ErrorIs(t, err, account.ErrConflict)
}

func TestService_Register_InvalidInput(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Register(context.Background(), "x", "a@x.com", "pw1")
	assert.ErrorIs(t, err, account.ErrInvalidInput)
}

func TestService_Login_Failures(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	_, err := f.svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)

	t.Run("unknown handle is not found", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "bob", "pw1")
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "alice", "wrong")
		assert.ErrorIs(t, err, account.ErrUnauthorized)
		errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_CREDENTIALS")
	})

	t.Run("handle match ignores case", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "ALICE", "pw1")
		assert.NoError(t, err)
	})
}

func TestService_ChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("correct old password", func(t *testing.T) {
		f := newServiceFixture(t)
		p, err := f.svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)

		require.NoError(t, f.svc.ChangePassword(ctx, p.ID, "pw1", "pw2"))

		_, err = f.svc.Login(ctx, "alice", "pw1")
		assert.ErrorIs(t, err, account.ErrUnauthorized)
		_, err = f.svc.Login(ctx, "alice", "pw2")
		assert.NoError(t, err)
	})

	t.Run("wrong old password never mutates the hash", func(t *testing.T) {
		f := newServiceFixture(t)
		p, err := f.svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)
		id := ulid.MustParse(p.ID)
		before, err := f.repo.GetByID(ctx, id)
		require.NoError(t, err)

		err = f.svc.ChangePassword(ctx, p.ID, "wrong", "pw2")
		require.Error(t, err)
		assert.ErrorIs(t, err, account.ErrOldPasswordMismatch)

		after, err := f.repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before.PasswordHash, after.PasswordHash)

		_, err = f.svc.Login(ctx, "alice", "pw1")
		assert.NoError(t, err)
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newServiceFixture(t)
		err := f.svc.ChangePassword(ctx, ulid.Make().String(), "pw1", "pw2")
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("malformed account id", func(t *testing.T) {
		f := newServiceFixture(t)
		err := f.svc.ChangePassword(ctx, "not-a-ulid", "pw1", "pw2")
		assert.ErrorIs(t, err, account.ErrNotFound)
	})
}

func TestService_ForgotAndResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	_, err := f.svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))

	msgs := f.mailer.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"a@x.com"}, msgs[0].To)
	assert.Equal(t, mail.PasswordResetSubject, msgs[0].Subject)

	tok := f.lastResetToken(t)
	require.NoError(t, f.svc.ResetPassword(ctx, tok, "pw2"))

	_, err = f.svc.Login(ctx, "alice", "pw1")
	assert.ErrorIs(t, err, account.ErrUnauthorized)
	_, err = f.svc.Login(ctx, "alice", "pw2")
	assert.NoError(t, err)

	// Reset tokens are not single-use; the same token works until it expires.
	require.NoError(t, f.svc.ResetPassword(ctx, tok, "pw3"))
}

func TestService_ForgotPassword_UnknownEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("reports not found by default", func(t *testing.T) {
		f := newServiceFixture(t)
		err := f.svc.ForgotPassword(ctx, "nobody@x.com")
		assert.ErrorIs(t, err, account.ErrNotFound)
		assert.Empty(t, f.mailer.Messages())
	})

	t.Run("conceals when configured", func(t *testing.T) {
		f := newServiceFixture(t, account.WithConcealUnknownEmail(true))
		require.NoError(t, f.svc.ForgotPassword(ctx, "nobody@x.com"))
		assert.Empty(t, f.mailer.Messages())
	})
}

func TestService_ForgotPassword_DeliveryFailure(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	_, err := f.svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)

	relayErr := errors.New("connection refused")
	f.mailer.FailWith(relayErr)

	err = f.svc.ForgotPassword(ctx, "a@x.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, account.ErrDelivery)
	assert.ErrorIs(t, err, relayErr)
	errutil.AssertErrorCode(t, err, "ACCOUNT_RESET_DELIVERY_FAILED")
}

func TestService_ResetPassword_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("expired token", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)
		require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
		tok := f.lastResetToken(t)

		f.now = f.now.Add(11 * time.Minute)
		err = f.svc.ResetPassword(ctx, tok, "pw2")
		assert.ErrorIs(t, err, account.ErrInvalidToken)
	})

	t.Run("session token is not a reset token", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)
		s, err := f.svc.Login(ctx, "alice", "pw1")
		require.NoError(t, err)

		err = f.svc.ResetPassword(ctx, s.Token, "pw2")
		assert.ErrorIs(t, err, account.ErrInvalidToken)
	})

	t.Run("subject vanished", func(t *testing.T) {
		f := newServiceFixture(t)
		tok, _, err := f.tokens.IssueResetToken(ulid.Make().String())
		require.NoError(t, err)

		err = f.svc.ResetPassword(ctx, tok, "pw2")
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("empty new password", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.Register(ctx, "alice", "a@x.com", "pw1")
		require.NoError(t, err)
		require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))

		err = f.svc.ResetPassword(ctx, f.lastResetToken(t), "")
		assert.ErrorIs(t, err, account.ErrInvalidInput)
	})
}

func TestService_Profile(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	p, err := f.svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)

	got, err := f.svc.Profile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = f.svc.Profile(ctx, ulid.Make().String())
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestService_Login_TokenIssueFailure(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	creds, err := account.NewCredentialStore(repo, fastHasher())
	require.NoError(t, err)
	acct, err := creds.Create(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)

	issuer := mocks.NewMockTokenIssuer(t)
	issuer.On("IssueSessionToken", acct.ID.String()).Return("", time.Time{}, errors.New("signer unavailable"))

	svc, err := account.NewService(creds, issuer, mail.NewRecorder())
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "pw1")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "ACCOUNT_LOGIN_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "issue session token")
}

func TestService_StoreFailuresAreInternal(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection reset")

	repo := mocks.NewMockRepository(t)
	repo.On("GetByHandle", ctx, "alice").Return(nil, storeErr)
	repo.On("GetByEmail", ctx, "a@x.com").Return(nil, storeErr)

	creds, err := account.NewCredentialStore(repo, fastHasher())
	require.NoError(t, err)
	svc, err := account.NewService(creds, mocks.NewMockTokenIssuer(t), mail.NewRecorder())
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "a@x.com", "pw1")
	require.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, account.ErrConflict)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	_, err = svc.Login(ctx, "alice", "pw1")
	require.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, account.ErrNotFound)

	err = svc.ForgotPassword(ctx, "a@x.com")
	require.ErrorIs(t, err, storeErr)
	errutil.AssertErrorCode(t, err, "ACCOUNT_RESET_REQUEST_FAILED")
}

func TestService_NeverLogsSecrets(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := newServiceFixture(t, account.WithLogger(logger))

	_, err := f.svc.Register(ctx, "alice", "a@x.com", "plaintext-pw1")
	require.NoError(t, err)
	s, err := f.svc.Login(ctx, "alice", "plaintext-pw1")
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "alice", "plaintext-wrong")
	require.Error(t, err)
	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	resetTok := f.lastResetToken(t)

	out := buf.String()
	assert.Contains(t, out, "account registered")
	assert.Contains(t, out, "login rejected")
	assert.NotContains(t, out, "plaintext-pw1")
	assert.NotContains(t, out, "plaintext-wrong")
	assert.NotContains(t, out, s.Token)
	assert.NotContains(t, out, resetTok)
}
