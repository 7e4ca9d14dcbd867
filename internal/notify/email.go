// Package notify delivers outbound email, including the compiled case
// report sent to a client at the end of an interview.
package notify

import (
	"context"

	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

// EmailSender defines the interface for sending emails.
// Implementations can be swapped (SES, SMTP, stub) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // Plain text body
	HTML    string // Optional HTML body
}

// StubEmailSender logs instead of sending. Used in local development
// when no SES credentials are configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email (not sent)", "to", msg.To, "subject", msg.Subject, "body_len", len(msg.Body))
	return nil
}

var _ EmailSender = (*StubEmailSender)(nil)
