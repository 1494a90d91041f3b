// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/observability"
)

// AccountService is the account flow surface the handlers drive.
type AccountService interface {
	Register(ctx context.Context, handle, email, password string) (account.Profile, error)
	Login(ctx context.Context, handle, password string) (account.Session, error)
	Profile(ctx context.Context, accountID string) (account.Profile, error)
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
}

var _ AccountService = (*account.Service)(nil)

type handlers struct {
	svc      AccountService
	validate *requestValidator
	metrics  *observability.Metrics
	logger   *slog.Logger
}

type userData struct {
	User account.Profile `json:"user"`
}

type loginData struct {
	User        account.Profile `json:"user"`
	AccessToken string          `json:"accessToken"`
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, event string, err error, notFound string) {
	status := writeServiceError(r.Context(), h.logger, w, err, notFound)
	h.metrics.RecordAuthEvent(event, outcome(status))
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.validate.bind(w, r, &req) {
		h.metrics.RecordAuthEvent("register", "rejected")
		return
	}

	profile, err := h.svc.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "register", err, "")
		return
	}

	h.metrics.RecordAuthEvent("register", "success")
	respond(w, http.StatusCreated, userData{User: profile}, msgRegistered)
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.validate.bind(w, r, &req) {
		h.metrics.RecordAuthEvent("login", "rejected")
		return
	}

	session, err := h.svc.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		h.fail(w, r, "login", err, msgLoginNotFound)
		return
	}

	http.SetCookie(w, sessionCookie(session.Token, session.ExpiresAt))
	h.metrics.RecordAuthEvent("login", "success")
	respond(w, http.StatusOK, loginData{User: session.Profile, AccessToken: session.Token}, msgLoggedIn)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	profile, ok := ProfileFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, msgUnauthenticated, nil)
		return
	}
	respond(w, http.StatusOK, userData{User: profile}, msgProfile)
}

func (h *handlers) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	h.metrics.RecordAuthEvent("logout", "success")
	respond(w, http.StatusOK, nil, msgLoggedOut)
}

func (h *handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	profile, ok := ProfileFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, msgUnauthenticated, nil)
		return
	}

	var req changePasswordRequest
	if !h.validate.bind(w, r, &req) {
		h.metrics.RecordAuthEvent("change_password", "rejected")
		return
	}

	if err := h.svc.ChangePassword(r.Context(), profile.ID, req.OldPassword, req.NewPassword); err != nil {
		h.fail(w, r, "change_password", err, "")
		return
	}

	h.metrics.RecordAuthEvent("change_password", "success")
	respond(w, http.StatusOK, nil, msgPasswordChanged)
}

func (h *handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.validate.bind(w, r, &req) {
		h.metrics.RecordAuthEvent("forgot_password", "rejected")
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, r, "forgot_password", err, msgNotFound)
		return
	}

	h.metrics.RecordAuthEvent("forgot_password", "success")
	respond(w, http.StatusOK, nil, msgEmailSent)
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "tokenId")

	var req resetPasswordRequest
	if !h.validate.bind(w, r, &req) {
		h.metrics.RecordAuthEvent("reset_password", "rejected")
		return
	}

	if err := h.svc.ResetPassword(r.Context(), tok, req.NewPassword); err != nil {
		// A valid token whose account is gone is still a failed credential.
		if errors.Is(err, account.ErrNotFound) {
			h.metrics.RecordAuthEvent("reset_password", "rejected")
			respondError(w, http.StatusUnauthorized, msgResetNoUser, nil)
			return
		}
		h.fail(w, r, "reset_password", err, "")
		return
	}

	h.metrics.RecordAuthEvent("reset_password", "success")
	respond(w, http.StatusOK, nil, msgPasswordUpdated)
}

func sessionCookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusNotFound, msgRouteNotFound, nil)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed, nil)
}
