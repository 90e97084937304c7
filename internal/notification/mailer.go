package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// SMTPMailer sends plain-text email over SMTP.
type SMTPMailer struct {
	logger *zap.Logger
	addr   string
	auth   smtp.Auth
	from   string
}

// NewSMTPMailer configures a mailer. Auth is skipped when username is empty,
// which suits local relay setups.
func NewSMTPMailer(logger *zap.Logger, host string, port int, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{
		logger: logger,
		addr:   fmt.Sprintf("%s:%d", host, port),
		auth:   auth,
		from:   from,
	}
}

func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	m.logger.Debug("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
