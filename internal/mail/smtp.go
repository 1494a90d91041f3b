// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/samber/oops"
	"gopkg.in/gomail.v2"
)

// DefaultSMTPTimeout bounds a single SMTP delivery.
const DefaultSMTPTimeout = 15 * time.Second

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Timeout    time.Duration
	SkipVerify bool
}

// Validate checks the required SMTP settings.
func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return oops.Code("MAIL_INVALID_CONFIG").Errorf("smtp host is required")
	}
	if c.Port <= 0 {
		return oops.Code("MAIL_INVALID_CONFIG").Errorf("smtp port must be positive, got %d", c.Port)
	}
	if c.From == "" {
		return oops.Code("MAIL_INVALID_CONFIG").Errorf("smtp from address is required")
	}
	return nil
}

// dialer abstracts gomail.Dialer for testing.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	from    string
	timeout time.Duration
	dialer  dialer
}

// NewSMTPSender creates an SMTPSender from cfg.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.SkipVerify {
		//nolint:gosec // G402: opt-in for local relays with self-signed certificates
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: cfg.Host}
	}
	return newSMTPSender(cfg, d), nil
}

func newSMTPSender(cfg SMTPConfig, d dialer) *SMTPSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSMTPTimeout
	}
	return &SMTPSender{from: cfg.From, timeout: timeout, dialer: d}
}

// Send delivers msg, waiting at most the configured timeout.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return oops.Code("MAIL_NO_RECIPIENTS").Errorf("no recipients specified")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	switch {
	case msg.HTMLBody != "":
		m.SetBody("text/html", msg.HTMLBody)
		if msg.TextBody != "" {
			m.AddAlternative("text/plain", msg.TextBody)
		}
	default:
		m.SetBody("text/plain", msg.TextBody)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Buffered so the send goroutine can finish after a timeout.
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return oops.Code("MAIL_SEND_FAILED").With("subject", msg.Subject).Wrap(err)
		}
		return nil
	case <-ctx.Done():
		return oops.Code("MAIL_SEND_TIMEOUT").With("subject", msg.Subject).Wrap(ctx.Err())
	}
}
