// internal/pkg/email/smtp.go
package email

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
)

// sendSMTPEmail sends email using SMTP (Gmail, Outlook, or self-hosted)
func (s *EmailService) sendSMTPEmail(email *Email) error {
	if s.config.External.Email.SMTPHost == "" || s.config.External.Email.SMTPUser == "" {
		return fmt.Errorf("SMTP configuration incomplete: missing host or user")
	}

	auth := smtp.PlainAuth("",
		s.config.External.Email.SMTPUser,
		s.config.External.Email.SMTPPass,
		s.config.External.Email.SMTPHost)

	headers := make(map[string]string)
	headers["From"] = s.fromHeader()
	headers["To"] = strings.Join(email.To, ", ")
	headers["Subject"] = email.Subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=\"utf-8\""

	if s.config.External.Email.ReplyTo != "" {
		headers["Reply-To"] = s.config.External.Email.ReplyTo
	}

	var msg bytes.Buffer
	for key, value := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", key, value))
	}
	msg.WriteString("\r\n")
	msg.WriteString(email.HTMLContent)

	serverAddr := fmt.Sprintf("%s:%d", s.config.External.Email.SMTPHost, s.config.External.Email.SMTPPort)

	return smtp.SendMail(serverAddr, auth, s.config.External.Email.FromEmail, email.To, msg.Bytes())
}
