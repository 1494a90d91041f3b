// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/pkg/errutil"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "accessToken"

// SessionVerifier verifies session tokens and returns their account ID.
type SessionVerifier interface {
	VerifySessionToken(token string) (string, error)
}

// ProfileResolver resolves an account ID to its public profile.
type ProfileResolver interface {
	Profile(ctx context.Context, accountID string) (account.Profile, error)
}

type profileKey struct{}

// WithProfile returns a copy of ctx carrying p.
func WithProfile(ctx context.Context, p account.Profile) context.Context {
	return context.WithValue(ctx, profileKey{}, p)
}

// ProfileFromContext returns the profile attached by the Authenticator.
func ProfileFromContext(ctx context.Context) (account.Profile, bool) {
	p, ok := ctx.Value(profileKey{}).(account.Profile)
	return p, ok
}

// Authenticator gates routes on a valid session token.
type Authenticator struct {
	tokens   SessionVerifier
	profiles ProfileResolver
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithAuthMetrics counts rejected requests on m.
func WithAuthMetrics(m *observability.Metrics) AuthenticatorOption {
	return func(a *Authenticator) {
		a.metrics = m
	}
}

// WithAuthLogger sets the authenticator logger.
func WithAuthLogger(logger *slog.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(tokens SessionVerifier, profiles ProfileResolver, opts ...AuthenticatorOption) (*Authenticator, error) {
	if tokens == nil {
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("session verifier is required")
	}
	if profiles == nil {
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("profile resolver is required")
	}
	a := &Authenticator{
		tokens:   tokens,
		profiles: profiles,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// tokenFromRequest reads the session token from the cookie, falling back to
// an Authorization: Bearer header.
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return ""
}

// Middleware rejects requests without a valid session and attaches the
// caller's profile to the request context otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tok := tokenFromRequest(r)
		if tok == "" {
			a.metrics.RecordSessionRejected()
			respondError(w, http.StatusUnauthorized, msgUnauthenticated, nil)
			return
		}

		accountID, err := a.tokens.VerifySessionToken(tok)
		if err != nil {
			a.metrics.RecordSessionRejected()
			respondError(w, http.StatusUnauthorized, msgInvalidAccess, nil)
			return
		}

		profile, err := a.profiles.Profile(ctx, accountID)
		switch {
		case errors.Is(err, account.ErrNotFound):
			a.metrics.RecordSessionRejected()
			a.logger.InfoContext(ctx, "session for missing account", "account_id", accountID)
			respondError(w, http.StatusUnauthorized, msgInvalidAccess, nil)
			return
		case err != nil:
			errutil.LogErrorContext(ctx, a.logger, "session profile lookup failed", err)
			respondError(w, http.StatusInternalServerError, msgInternal, nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithProfile(ctx, profile)))
	})
}
