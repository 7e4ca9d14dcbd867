package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atulwalsh/legal-intake-ai/internal/intake"
	"github.com/atulwalsh/legal-intake-ai/internal/session"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

// ReportMailer emails the compiled case report to the client once an
// interview ends.
type ReportMailer struct {
	email  EmailSender
	logger *logging.Logger
}

var _ session.ReportSender = (*ReportMailer)(nil)

func NewReportMailer(email EmailSender, logger *logging.Logger) *ReportMailer {
	if email == nil {
		panic("notify: email sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReportMailer{email: email, logger: logger}
}

// SendCaseReport delivers the report for a completed interview.
func (m *ReportMailer) SendCaseReport(ctx context.Context, record *intake.CaseRecord, email string) error {
	if record == nil {
		return errors.New("notify: case record cannot be nil")
	}
	if strings.TrimSpace(email) == "" {
		return errors.New("notify: recipient email required")
	}
	if strings.TrimSpace(record.CaseReport) == "" {
		return fmt.Errorf("notify: case %s has no report to send", record.CaseID)
	}

	msg := EmailMessage{
		To:      email,
		ToName:  clientName(record),
		Subject: fmt.Sprintf("Your case intake summary (case %s)", record.CaseID),
		Body:    reportBody(record),
	}
	if err := m.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send case report for %s: %w", record.CaseID, err)
	}
	m.logger.Info("case report emailed", "case_id", record.CaseID, "to", email)
	return nil
}

func clientName(record *intake.CaseRecord) string {
	if record.UserInfo == nil {
		return ""
	}
	return strings.TrimSpace(record.UserInfo.FirstName + " " + record.UserInfo.LastName)
}

func reportBody(record *intake.CaseRecord) string {
	var b strings.Builder
	name := clientName(record)
	if name != "" {
		fmt.Fprintf(&b, "Dear %s,\n\n", name)
	}
	b.WriteString("Thank you for completing your intake interview. ")
	b.WriteString("A summary of the information you provided is below. ")
	b.WriteString("An attorney will review it and follow up with you.\n\n")
	b.WriteString(record.CaseReport)
	b.WriteString("\n\nHastings, Cohan & Walsh, LLP\n")
	return b.String()
}
