// internal/pkg/email/api_providers.go
package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type sendGridRequest struct {
	Personalizations []sendGridRecipients `json:"personalizations"`
	From             sendGridAddress      `json:"from"`
	Subject          string               `json:"subject"`
	Content          []sendGridContent    `json:"content"`
	ReplyTo          *sendGridAddress     `json:"reply_to,omitempty"`
}

type sendGridRecipients struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// sendResendEmail delivers through the Resend API
func (s *EmailService) sendResendEmail(email *Email) error {
	if s.config.External.Email.APIKey == "" {
		return fmt.Errorf("Resend API key not configured")
	}

	body := resendRequest{
		From:    s.fromHeader(),
		To:      email.To,
		Subject: email.Subject,
		HTML:    email.HTMLContent,
		ReplyTo: s.config.External.Email.ReplyTo,
	}

	return s.postProviderAPI("https://api.resend.com/emails", body, http.StatusOK)
}

// sendSendGridEmail delivers through the SendGrid v3 API
func (s *EmailService) sendSendGridEmail(email *Email) error {
	if s.config.External.Email.APIKey == "" {
		return fmt.Errorf("SendGrid API key not configured")
	}

	recipients := make([]sendGridAddress, 0, len(email.To))
	for _, addr := range email.To {
		recipients = append(recipients, sendGridAddress{Email: addr})
	}

	body := sendGridRequest{
		Personalizations: []sendGridRecipients{{To: recipients}},
		From: sendGridAddress{
			Email: s.config.External.Email.FromEmail,
			Name:  s.config.External.Email.FromName,
		},
		Subject: email.Subject,
		Content: []sendGridContent{{Type: "text/html", Value: email.HTMLContent}},
	}
	if s.config.External.Email.ReplyTo != "" {
		body.ReplyTo = &sendGridAddress{Email: s.config.External.Email.ReplyTo}
	}

	// SendGrid acknowledges accepted mail with 202
	return s.postProviderAPI("https://api.sendgrid.com/v3/mail/send", body, http.StatusAccepted)
}

// fromHeader formats the sender as "Name <address>" when a name is configured
func (s *EmailService) fromHeader() string {
	fromEmail := s.config.External.Email.FromEmail
	if name := s.config.External.Email.FromName; name != "" {
		return fmt.Sprintf("%s <%s>", name, fromEmail)
	}
	return fromEmail
}

// postProviderAPI sends an authenticated JSON request to a provider endpoint
func (s *EmailService) postProviderAPI(endpoint string, body interface{}, wantStatus int) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal provider request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.External.Email.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach email provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("email provider returned status %d", resp.StatusCode)
	}
	return nil
}
