// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mail delivers outbound account email.
package mail

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/samber/oops"
)

// Message is an outbound email.
type Message struct {
	To       []string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers a message and reports the outcome. Send blocks until the
// message is accepted by the transport, the transport fails, or ctx ends.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// PasswordResetSubject is the subject line of reset emails.
const PasswordResetSubject = "Reset Password"

var passwordResetTemplate = template.Must(template.New("reset").Parse(
	`<h1>Reset Your Password</h1>
<p>Token {{.Token}}</p>
<p>The link will expire in {{.Minutes}} minutes.</p>
<p>If you didn't request a password reset, please ignore this email.</p>
`))

// NewPasswordResetMessage renders the password reset email for token.
func NewPasswordResetMessage(to, token string, ttl time.Duration) (Message, error) {
	var body bytes.Buffer
	data := struct {
		Token   string
		Minutes int
	}{
		Token:   token,
		Minutes: int(ttl.Round(time.Minute) / time.Minute),
	}
	if err := passwordResetTemplate.Execute(&body, data); err != nil {
		return Message{}, oops.Code("MAIL_RENDER_FAILED").With("template", "reset").Wrap(err)
	}
	return Message{
		To:       []string{to},
		Subject:  PasswordResetSubject,
		HTMLBody: body.String(),
		TextBody: "Your password reset token: " + token,
	}, nil
}
