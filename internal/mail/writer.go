// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// WriterSender writes messages to an io.Writer instead of delivering them.
// It backs the "log" mail driver used in development.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSender creates a WriterSender writing to w.
func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

// Send writes msg to the underlying writer.
func (s *WriterSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body := msg.TextBody
	if body == "" {
		body = msg.HTMLBody
	}
	_, err := fmt.Fprintf(s.w, "To: %s\nSubject: %s\n\n%s\n\n", strings.Join(msg.To, ", "), msg.Subject, body)
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").Wrap(err)
	}
	return nil
}

// Recorder captures messages in memory. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent sends return err. A nil err restores success.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Send records msg, or returns the configured failure.
func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
