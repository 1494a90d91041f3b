// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/pkg/errutil"
)

// Client-facing messages.
const (
	msgConflict         = "User with email already exists"
	msgLoginNotFound    = "User Does Not Exist!"
	msgNotFound         = "User not found"
	msgInvalidCreds     = "Invalid credentials!"
	msgOldPassword      = "Invalid old password"
	msgInvalidToken     = "Invalid token"
	msgInvalidAccess    = "Invalid access token"
	msgResetNoUser      = "no user found"
	msgUnauthenticated  = "Unauthorized request"
	msgInvalidInput     = "Invalid input"
	msgValidationFailed = "Validation failed"
	msgInvalidBody      = "Invalid request body"
	msgDeliveryFailed   = "Failed to send email"
	msgInternal         = "Internal server error"
	msgRouteNotFound    = "Route not found"
	msgMethodNotAllowed = "Method not allowed"
	msgRegistered       = "User registered successfully"
	msgLoggedIn         = "User logged in successfully"
	msgLoggedOut        = "User logged out successfully"
	msgPasswordChanged  = "Password changed successfully"
	msgEmailSent        = "Email sent"
	msgPasswordUpdated  = "Password updated"
	msgProfile          = "Current user fetched successfully"
)

// classify maps a service error to a status and client-safe message.
// notFound overrides the message for ErrNotFound, which differs per route.
func classify(err error, notFound string) (int, string) {
	switch {
	case errors.Is(err, account.ErrConflict):
		return http.StatusConflict, msgConflict
	case errors.Is(err, account.ErrNotFound):
		if notFound == "" {
			notFound = msgNotFound
		}
		return http.StatusNotFound, notFound
	case errors.Is(err, account.ErrUnauthorized):
		return http.StatusUnauthorized, msgInvalidCreds
	case errors.Is(err, account.ErrUnauthenticated):
		return http.StatusUnauthorized, msgInvalidAccess
	case errors.Is(err, account.ErrOldPasswordMismatch):
		return http.StatusBadRequest, msgOldPassword
	case errors.Is(err, account.ErrInvalidToken):
		return http.StatusUnauthorized, msgInvalidToken
	case errors.Is(err, account.ErrInvalidInput):
		return http.StatusBadRequest, msgInvalidInput
	case errors.Is(err, account.ErrDelivery):
		return http.StatusInternalServerError, msgDeliveryFailed
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// writeServiceError classifies err and writes the error envelope. Server
// faults are logged with their oops code and context; the client only sees
// the generic message.
func writeServiceError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, notFound string) int {
	status, message := classify(err, notFound)
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(ctx, logger, "request failed", err)
	}
	respondError(w, status, message, nil)
	return status
}

// outcome labels an operation result for the auth events metric.
func outcome(status int) string {
	switch {
	case status < http.StatusBadRequest:
		return "success"
	case status < http.StatusInternalServerError:
		return "rejected"
	default:
		return "error"
	}
}
