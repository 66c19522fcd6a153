// internal/pkg/notify/telegram.go
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/pkg/events"
)

const maxAttempts = 2

// TelegramNotifier forwards order events to a Telegram chat via the bot API
type TelegramNotifier struct {
	config *config.Config
	logger *logrus.Logger
	client *http.Client
}

// NewTelegramNotifier creates a notifier with a bounded-timeout HTTP client
func NewTelegramNotifier(cfg *config.Config, logger *logrus.Logger) *TelegramNotifier {
	timeout := cfg.External.Telegram.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramNotifier{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// HandleOrderCreated formats and sends the new-order message. Failures are
// logged and swallowed; notifications are best-effort.
func (n *TelegramNotifier) HandleOrderCreated(event events.OrderCreated) {
	if n.config.External.Telegram.BotToken == "" || n.config.External.Telegram.ChatID == "" {
		return
	}

	text := fmt.Sprintf("New order %s\nCustomer: %s\nPayment: %s\nTotal: %d",
		event.OrderNumber, event.CustomerName, event.PaymentMethodLabel, event.TotalAmount)

	if err := n.sendMessage(text); err != nil {
		n.logger.WithFields(logrus.Fields{
			"order_number": event.OrderNumber,
			"error":        err.Error(),
		}).Warn("Telegram order notification failed")
		return
	}

	n.logger.WithField("order_number", event.OrderNumber).Info("Telegram order notification sent")
}

func (n *TelegramNotifier) sendMessage(text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage",
		n.config.External.Telegram.APIURL, n.config.External.Telegram.BotToken)

	body, err := json.Marshal(sendMessageRequest{
		ChatID: n.config.External.Telegram.ChatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal Telegram request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = n.post(url, body)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (n *TelegramNotifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create Telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
