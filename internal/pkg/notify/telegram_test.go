package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/pkg/events"
)

func newTestNotifier(apiURL string) *TelegramNotifier {
	cfg := &config.Config{}
	cfg.External.Telegram.BotToken = "test-token"
	cfg.External.Telegram.ChatID = "-100123"
	cfg.External.Telegram.APIURL = apiURL

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewTelegramNotifier(cfg, logger)
}

func TestHandleOrderCreatedSendsMessage(t *testing.T) {
	var body sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := newTestNotifier(server.URL)
	notifier.HandleOrderCreated(events.OrderCreated{
		OrderNumber:        "A1B2C3D4",
		CustomerName:       "Jane Tran",
		PaymentMethod:      "bank_transfer",
		PaymentMethodLabel: "Bank Transfer (QR)",
		TotalAmount:        200000,
	})

	assert.Equal(t, "-100123", body.ChatID)
	assert.Contains(t, body.Text, "A1B2C3D4")
	assert.Contains(t, body.Text, "Jane Tran")
	assert.Contains(t, body.Text, "Bank Transfer (QR)")
	assert.Contains(t, body.Text, "200000")
}

func TestHandleOrderCreatedRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := newTestNotifier(server.URL)
	notifier.HandleOrderCreated(events.OrderCreated{OrderNumber: "E5F6G7H8"})

	assert.Equal(t, int32(2), calls.Load())
}

func TestHandleOrderCreatedGivesUpAfterTwoAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := newTestNotifier(server.URL)
	// Must not panic or propagate the failure.
	notifier.HandleOrderCreated(events.OrderCreated{OrderNumber: "Z9Y8X7W6"})

	assert.Equal(t, int32(2), calls.Load())
}

func TestHandleOrderCreatedSkipsWhenUnconfigured(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	notifier := newTestNotifier(server.URL)
	notifier.config.External.Telegram.BotToken = ""
	notifier.HandleOrderCreated(events.OrderCreated{OrderNumber: "Q1W2E3R4"})

	assert.Equal(t, int32(0), calls.Load())
}
