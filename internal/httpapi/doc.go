// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the account flows over HTTP.
//
// Every response is a JSON envelope with statusCode, message, success and,
// on success, data. Gated routes accept the session token from the
// accessToken cookie or an Authorization: Bearer header; the resolved
// profile is available to handlers through ProfileFromContext.
package httpapi
