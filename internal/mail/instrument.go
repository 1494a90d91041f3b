// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import "context"

// Delivery outcomes reported to a DeliveryRecorder.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// DeliveryRecorder counts delivery outcomes.
type DeliveryRecorder interface {
	RecordMailDelivery(outcome string)
}

type instrumented struct {
	next     Sender
	recorder DeliveryRecorder
}

// Instrument returns a Sender that reports every Send outcome to recorder.
func Instrument(next Sender, recorder DeliveryRecorder) Sender {
	if recorder == nil {
		return next
	}
	return &instrumented{next: next, recorder: recorder}
}

func (s *instrumented) Send(ctx context.Context, msg Message) error {
	if err := s.next.Send(ctx, msg); err != nil {
		s.recorder.RecordMailDelivery(OutcomeFailed)
		return err
	}
	s.recorder.RecordMailDelivery(OutcomeSent)
	return nil
}
