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

	"github.com/holomush/accountd/internal/mail"
)

// TokenIssuer issues the tokens the Service hands out and verifies reset
// tokens presented back to it.
type TokenIssuer interface {
	IssueSessionToken(accountID string) (string, time.Time, error)
	IssueResetToken(accountID string) (string, time.Time, error)
	VerifyResetToken(token string) (string, error)
	ResetTTL() time.Duration
}

// Session is the result of a successful login.
type Session struct {
	Profile   Profile
	Token     string
	ExpiresAt time.Time
}

// Service orchestrates the account flows.
type Service struct {
	creds               *CredentialStore
	tokens              TokenIssuer
	mailer              mail.Sender
	logger              *slog.Logger
	concealUnknownEmail bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithConcealUnknownEmail makes ForgotPassword succeed for unknown email
// addresses instead of reporting ErrNotFound.
func WithConcealUnknownEmail(conceal bool) ServiceOption {
	return func(s *Service) {
		s.concealUnknownEmail = conceal
	}
}

// NewService creates a Service.
func NewService(creds *CredentialStore, tokens TokenIssuer, mailer mail.Sender, opts ...ServiceOption) (*Service, error) {
	if creds == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("credential store is required")
	}
	if tokens == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("token issuer is required")
	}
	if mailer == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("mail sender is required")
	}
	s := &Service{
		creds:  creds,
		tokens: tokens,
		mailer: mailer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an account and returns its public profile.
func (s *Service) Register(ctx context.Context, handle, email, password string) (Profile, error) {
	if _, exists, err := s.creds.FindByHandle(ctx, handle); err != nil {
		return Profile{}, oops.Code("ACCOUNT_REGISTER_FAILED").With("operation", "find by handle").Wrap(err)
	} else if exists {
		return Profile{}, oops.Code("ACCOUNT_CONFLICT").With("handle", handle).Wrap(ErrConflict)
	}

	acct, err := s.creds.Create(ctx, handle, email, password)
	if err != nil {
		return Profile{}, err
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", acct.ID.String())
	return acct.Profile(), nil
}

// Login checks a handle and password and issues a session token.
func (s *Service) Login(ctx context.Context, handle, password string) (Session, error) {
	acct, exists, err := s.creds.FindByHandle(ctx, handle)
	if err != nil {
		return Session{}, oops.Code("ACCOUNT_LOGIN_FAILED").With("operation", "find by handle").Wrap(err)
	}
	if !exists {
		return Session{}, oops.Code("ACCOUNT_NOT_FOUND").With("handle", handle).Wrap(ErrNotFound)
	}

	if !s.creds.VerifyPassword(ctx, acct, password) {
		s.logger.InfoContext(ctx, "login rejected", "account_id", acct.ID.String())
		return Session{}, oops.Code("ACCOUNT_INVALID_CREDENTIALS").Wrap(ErrUnauthorized)
	}

	tok, expiresAt, err := s.tokens.IssueSessionToken(acct.ID.String())
	if err != nil {
		return Session{}, oops.Code("ACCOUNT_LOGIN_FAILED").
			With("operation", "issue session token").
			With("account_id", acct.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "login succeeded", "account_id", acct.ID.String())
	return Session{Profile: acct.Profile(), Token: tok, ExpiresAt: expiresAt}, nil
}

// Profile resolves an account ID to its public profile. The error wraps
// ErrNotFound when the account does not exist.
func (s *Service) Profile(ctx context.Context, accountID string) (Profile, error) {
	acct, err := s.lookup(ctx, accountID)
	if err != nil {
		return Profile{}, err
	}
	return acct.Profile(), nil
}

// ChangePassword replaces the password of an authenticated account after
// checking the current one. Only the password hash is written.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	acct, err := s.lookup(ctx, accountID)
	if err != nil {
		return err
	}

	if !s.creds.VerifyPassword(ctx, acct, oldPassword) {
		return oops.Code("ACCOUNT_OLD_PASSWORD_MISMATCH").
			With("account_id", accountID).
			Wrap(ErrOldPasswordMismatch)
	}

	if err := s.creds.SetPassword(ctx, acct, newPassword); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password changed", "account_id", accountID)
	return nil
}

// ForgotPassword mails a reset token to the account registered under email.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	acct, exists, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		return oops.Code("ACCOUNT_RESET_REQUEST_FAILED").With("operation", "find by email").Wrap(err)
	}
	if !exists {
		if s.concealUnknownEmail {
			s.logger.InfoContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return oops.Code("ACCOUNT_NOT_FOUND").Wrap(ErrNotFound)
	}

	tok, _, err := s.tokens.IssueResetToken(acct.ID.String())
	if err != nil {
		return oops.Code("ACCOUNT_RESET_REQUEST_FAILED").
			With("operation", "issue reset token").
			With("account_id", acct.ID.String()).
			Wrap(err)
	}

	msg, err := mail.NewPasswordResetMessage(acct.Email, tok, s.tokens.ResetTTL())
	if err != nil {
		return oops.Code("ACCOUNT_RESET_REQUEST_FAILED").
			With("operation", "render reset message").
			Wrap(err)
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		return oops.Code("ACCOUNT_RESET_DELIVERY_FAILED").
			With("account_id", acct.ID.String()).
			Wrap(errors.Join(ErrDelivery, err))
	}

	s.logger.InfoContext(ctx, "password reset email sent", "account_id", acct.ID.String())
	return nil
}

// ResetPassword sets a new password for the account named by a valid
// reset token. The token is not consumed and remains valid until expiry.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	accountID, err := s.tokens.VerifyResetToken(resetToken)
	if err != nil {
		return err
	}

	acct, err := s.lookup(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.creds.SetPassword(ctx, acct, newPassword); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password reset", "account_id", accountID)
	return nil
}

func (s *Service) lookup(ctx context.Context, accountID string) (*Account, error) {
	id, err := ulid.ParseStrict(accountID)
	if err != nil {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("account_id", accountID).Wrap(ErrNotFound)
	}
	acct, exists, err := s.creds.FindByID(ctx, id)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("account_id", accountID).Wrap(err)
	}
	if !exists {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("account_id", accountID).Wrap(ErrNotFound)
	}
	return acct, nil
}
