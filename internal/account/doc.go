// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package account implements user accounts and the flows that act on them.
//
// # Domain Types
//
// Account is the persisted record; Profile is its public projection and is
// the only form handed to HTTP clients. Accounts are created with
// NewAccount, which validates the handle and email.
//
// # Credentials
//
// CredentialStore wraps a Repository and a PasswordHasher. It is the only
// component that hashes or compares plaintext passwords. Lookups report a
// missing account as a false result rather than an error.
//
// # Services
//
// Service coordinates registration, login, password change, and the
// forgot/reset password flow. It depends on a TokenIssuer for session and
// reset tokens and on a mail.Sender for delivering reset tokens.
package account
