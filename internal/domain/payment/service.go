// internal/domain/payment/service.go
package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/domain/order"
	"github.com/your-org/flowershop-backend/internal/pkg/apperror"
	"github.com/your-org/flowershop-backend/internal/pkg/events"
	"gorm.io/gorm"
)

// maxQRAttempts bounds the gateway warm-up retries
const maxQRAttempts = 2

// Service handles payment processing against the QR gateway
type Service struct {
	db           *gorm.DB
	config       *config.Config
	orderService *order.Service
	logger       *logrus.Logger
	client       *http.Client
}

// NewService creates a new payment service
func NewService(db *gorm.DB, cfg *config.Config, orderService *order.Service, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	timeout := cfg.External.Payment.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		db:           db,
		config:       cfg,
		orderService: orderService,
		logger:       logger,
		client:       &http.Client{Timeout: timeout},
	}
}

// QRCodeResponse carries everything the client needs to render a transfer QR
type QRCodeResponse struct {
	OrderNumber string `json:"order_number"`
	Amount      int64  `json:"amount"`
	QRImageURL  string `json:"qr_image_url"`
	BankID      string `json:"bank_id"`
	AccountNo   string `json:"account_no"`
	AccountName string `json:"account_name"`
}

// WebhookRequest represents a payment notification from the gateway
type WebhookRequest struct {
	OrderNumber   string `json:"order_number" binding:"required"`
	TransactionID string `json:"transaction_id" binding:"required"`
	Amount        int64  `json:"amount" binding:"required"`
	Status        string `json:"status" binding:"required"`
}

// GetPaymentQR builds the bank-transfer QR for a pending order.
// COD orders have no QR; paid orders cannot be paid again.
func (s *Service) GetPaymentQR(orderID uint, userID uint, isAdmin bool) (*QRCodeResponse, error) {
	ord, err := s.orderService.GetOrder(orderID, userID, isAdmin)
	if err != nil {
		return nil, err
	}

	if ord.PaymentMethod != order.PaymentMethodBankTransfer {
		return nil, apperror.NewValidation("order is not payable by bank transfer")
	}
	if ord.Payment == nil {
		return nil, apperror.NewNotFound("payment")
	}
	if ord.Payment.Status == order.PaymentStatusPaid {
		return nil, apperror.NewValidation("order is already paid")
	}

	qrURL := s.buildQRImageURL(ord.TotalAmount, ord.OrderNumber)
	s.warmQR(qrURL, ord.OrderNumber)

	return &QRCodeResponse{
		OrderNumber: ord.OrderNumber,
		Amount:      ord.TotalAmount,
		QRImageURL:  qrURL,
		BankID:      s.config.External.Payment.BankID,
		AccountNo:   s.config.External.Payment.AccountNo,
		AccountName: s.config.External.Payment.AccountName,
	}, nil
}

// HandleOrderCreated pre-generates the transfer QR for freshly placed
// bank-transfer orders and records the payload reference on the payment
// row. Best-effort: a gateway outage leaves the payment untouched and the
// client can still request the QR on demand.
func (s *Service) HandleOrderCreated(event events.OrderCreated) {
	if event.PaymentMethod != string(order.PaymentMethodBankTransfer) {
		return
	}

	qrURL := s.buildQRImageURL(event.TotalAmount, event.OrderNumber)
	s.warmQR(qrURL, event.OrderNumber)

	result := s.db.Model(&order.Payment{}).
		Where("order_id = ? AND transaction_id = ''", event.OrderID).
		Update("transaction_id", qrURL)
	if result.Error != nil {
		s.logger.WithError(result.Error).WithField("order_number", event.OrderNumber).
			Warn("Failed to store QR payload reference")
	}
}

// HandleWebhook processes a gateway payment notification. A successful
// payment confirms the order; a repeated notification for an already-paid
// order is acknowledged without changes.
func (s *Service) HandleWebhook(req *WebhookRequest) error {
	var ord order.Order
	if err := s.db.Where("order_number = ?", req.OrderNumber).First(&ord).Error; err != nil {
		return apperror.NewNotFound("order")
	}

	var pay order.Payment
	if err := s.db.Where("order_id = ?", ord.ID).First(&pay).Error; err != nil {
		return apperror.NewNotFound("payment")
	}

	if pay.Status == order.PaymentStatusPaid {
		s.logger.WithField("order_number", req.OrderNumber).
			Info("Duplicate payment webhook ignored")
		return nil
	}

	if req.Status != "success" {
		if err := s.db.Model(&pay).Updates(map[string]interface{}{
			"status":         order.PaymentStatusFailed,
			"transaction_id": req.TransactionID,
		}).Error; err != nil {
			return fmt.Errorf("failed to record payment failure: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"order_number":   req.OrderNumber,
			"transaction_id": req.TransactionID,
		}).Warn("Payment failed")
		return nil
	}

	if req.Amount != pay.Amount {
		return apperror.NewFieldValidation("amount",
			fmt.Sprintf("amount mismatch: expected %d", pay.Amount))
	}

	now := time.Now().UTC()
	if err := s.db.Model(&pay).Updates(map[string]interface{}{
		"status":         order.PaymentStatusPaid,
		"transaction_id": req.TransactionID,
		"paid_at":        now,
	}).Error; err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_number":   req.OrderNumber,
		"transaction_id": req.TransactionID,
		"amount":         req.Amount,
	}).Info("Payment received")

	if ord.Status == order.OrderStatusPending {
		if _, err := s.orderService.UpdateOrderStatus(ord.ID, 0, &order.UpdateStatusRequest{
			Status:  order.OrderStatusConfirmed,
			Comment: "payment received",
		}); err != nil {
			s.logger.WithError(err).WithField("order_number", req.OrderNumber).
				Warn("Payment recorded but order confirmation failed")
		}
	}

	return nil
}

// MarkPaymentPaid lets an admin settle a payment manually (COD collected,
// transfer verified out of band)
func (s *Service) MarkPaymentPaid(orderID uint, actorID uint, transactionID string) (*order.Payment, error) {
	var pay order.Payment
	if err := s.db.Where("order_id = ?", orderID).First(&pay).Error; err != nil {
		return nil, apperror.NewNotFound("payment")
	}

	if pay.Status == order.PaymentStatusPaid {
		return nil, apperror.NewValidation("payment is already settled")
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":  order.PaymentStatusPaid,
		"paid_at": now,
	}
	if transactionID != "" {
		updates["transaction_id"] = transactionID
	}
	if err := s.db.Model(&pay).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"actor_id": actorID,
	}).Info("Payment settled manually")

	pay.Status = order.PaymentStatusPaid
	pay.PaidAt = &now
	pay.TransactionID = transactionID
	return &pay, nil
}

// buildQRImageURL assembles the gateway image URL with the transfer details
// pre-filled; the order number doubles as the transfer reference.
func (s *Service) buildQRImageURL(amount int64, orderNumber string) string {
	pc := s.config.External.Payment

	query := url.Values{}
	query.Set("amount", fmt.Sprintf("%d", amount))
	query.Set("addInfo", orderNumber)
	query.Set("accountName", pc.AccountName)

	return fmt.Sprintf("%s/%s-%s-compact2.png?%s",
		pc.QRBaseURL, pc.BankID, pc.AccountNo, query.Encode())
}

// warmQR asks the gateway to render the image ahead of the client.
// Failures are logged and never block the checkout flow.
func (s *Service) warmQR(qrURL, orderNumber string) {
	var lastErr error
	for attempt := 1; attempt <= maxQRAttempts; attempt++ {
		lastErr = s.fetchQR(qrURL)
		if lastErr == nil {
			return
		}
	}

	s.logger.WithError(lastErr).WithField("order_number", orderNumber).
		Warn("QR gateway warm-up failed")
}

// fetchQR performs a single bounded request against the gateway. Each
// attempt gets its own deadline so a slow first try does not starve the
// retry.
func (s *Service) fetchQR(qrURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, qrURL, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}
