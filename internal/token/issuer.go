// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package token issues and verifies the signed tokens used by accountd.
//
// Two signing domains exist: session tokens, presented on authenticated
// requests, and reset tokens, mailed to prove control of an email address.
// Each domain has its own secret, lifetime and audience, and a token from one
// domain never verifies in the other.
package token

import (
	"bytes"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ErrInvalidToken is returned for every verification failure. The cause
// (signature, expiry, structure, audience) is deliberately not exposed.
var ErrInvalidToken = errors.New("invalid token")

// Audiences identifying each signing domain.
const (
	AudienceSession = "session"
	AudienceReset   = "password-reset"
)

// MinSecretLength is the minimum HMAC secret length in bytes.
const MinSecretLength = 32

// Default lifetimes.
const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultResetTTL   = 10 * time.Minute
	DefaultIssuer     = "accountd"
)

// Config holds the secrets and lifetimes for both signing domains.
type Config struct {
	SessionSecret []byte
	ResetSecret   []byte
	SessionTTL    time.Duration
	ResetTTL      time.Duration
	Issuer        string
}

// Validate checks the configuration invariants: both secrets long enough
// and distinct, and reset tokens shorter-lived than sessions.
func (c Config) Validate() error {
	if len(c.SessionSecret) < MinSecretLength {
		return oops.Code("TOKEN_INVALID_CONFIG").Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	if len(c.ResetSecret) < MinSecretLength {
		return oops.Code("TOKEN_INVALID_CONFIG").Errorf("reset secret must be at least %d bytes", MinSecretLength)
	}
	if bytes.Equal(c.SessionSecret, c.ResetSecret) {
		return oops.Code("TOKEN_INVALID_CONFIG").Errorf("session and reset secrets must differ")
	}
	if c.SessionTTL <= 0 || c.ResetTTL <= 0 {
		return oops.Code("TOKEN_INVALID_CONFIG").Errorf("token lifetimes must be positive")
	}
	if c.ResetTTL >= c.SessionTTL {
		return oops.Code("TOKEN_INVALID_CONFIG").
			With("reset_ttl", c.ResetTTL.String()).
			With("session_ttl", c.SessionTTL.String()).
			Errorf("reset token lifetime must be shorter than session lifetime")
	}
	return nil
}

type domain struct {
	secret   []byte
	ttl      time.Duration
	audience string
}

// Issuer creates and verifies session and reset tokens.
type Issuer struct {
	session domain
	reset   domain
	issuer  string
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// WithLogger sets the logger used for verification failure diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

// NewIssuer creates an Issuer after validating cfg.
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	i := &Issuer{
		session: domain{secret: bytes.Clone(cfg.SessionSecret), ttl: cfg.SessionTTL, audience: AudienceSession},
		reset:   domain{secret: bytes.Clone(cfg.ResetSecret), ttl: cfg.ResetTTL, audience: AudienceReset},
		issuer:  cfg.Issuer,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// SessionTTL returns the session token lifetime.
func (i *Issuer) SessionTTL() time.Duration { return i.session.ttl }

// ResetTTL returns the reset token lifetime.
func (i *Issuer) ResetTTL() time.Duration { return i.reset.ttl }

// IssueSessionToken signs a session token for accountID.
func (i *Issuer) IssueSessionToken(accountID string) (string, time.Time, error) {
	return i.issue(i.session, accountID)
}

// IssueResetToken signs a password reset token for accountID.
func (i *Issuer) IssueResetToken(accountID string) (string, time.Time, error) {
	return i.issue(i.reset, accountID)
}

// VerifySessionToken returns the account ID carried by a valid session token.
func (i *Issuer) VerifySessionToken(token string) (string, error) {
	return i.verify(i.session, token)
}

// VerifyResetToken returns the account ID carried by a valid reset token.
func (i *Issuer) VerifyResetToken(token string) (string, error) {
	return i.verify(i.reset, token)
}

func (i *Issuer) issue(d domain, accountID string) (string, time.Time, error) {
	if accountID == "" {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").
			With("audience", d.audience).
			Errorf("account id is required")
	}
	now := i.now()
	expiresAt := now.Add(d.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   accountID,
		Audience:  jwt.ClaimStrings{d.audience},
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        ulid.Make().String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").
			With("audience", d.audience).
			Wrap(err)
	}
	return signed, expiresAt, nil
}

func (i *Issuer) verify(d domain, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, oops.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return d.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithAudience(d.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		i.logger.Debug("token rejected", "audience", d.audience, "reason", err.Error())
		return "", oops.Code("TOKEN_INVALID").With("audience", d.audience).Wrap(ErrInvalidToken)
	}
	if claims.Subject == "" {
		i.logger.Debug("token rejected", "audience", d.audience, "reason", "missing subject")
		return "", oops.Code("TOKEN_INVALID").With("audience", d.audience).Wrap(ErrInvalidToken)
	}
	return claims.Subject, nil
}
