// internal/interfaces/http/handlers/payment.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/flowershop-backend/internal/domain/payment"
	"github.com/your-org/flowershop-backend/internal/interfaces/http/middleware"
)

// PaymentHandler handles payment endpoints
type PaymentHandler struct {
	paymentService *payment.Service
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService *payment.Service) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// GetPaymentQR handles GET /orders/:id/payment/qr
func (h *PaymentHandler) GetPaymentQR(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	orderID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	qr, err := h.paymentService.GetPaymentQR(orderID, userID, middleware.IsAdminFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "payment QR generated successfully",
		"data":    qr,
	})
}

// HandleWebhook handles POST /webhooks/payment from the gateway
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	var req payment.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.paymentService.HandleWebhook(&req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "webhook processed",
	})
}

// MarkPaymentPaid handles PUT /admin/orders/:id/payment - manual settlement
func (h *PaymentHandler) MarkPaymentPaid(c *gin.Context) {
	actorID, _ := middleware.GetUserIDFromContext(c)

	orderID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		respondBindError(c, err)
		return
	}

	pay, err := h.paymentService.MarkPaymentPaid(orderID, actorID, req.TransactionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "payment settled successfully",
		"data":    pay,
	})
}
