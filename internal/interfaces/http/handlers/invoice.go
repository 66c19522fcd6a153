// internal/interfaces/http/handlers/invoice.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/flowershop-backend/internal/domain/order"
	"github.com/your-org/flowershop-backend/internal/interfaces/http/middleware"
	"github.com/your-org/flowershop-backend/internal/pkg/pdf"
)

// InvoiceHandler handles invoice endpoints
type InvoiceHandler struct {
	orderService *order.Service
	pdfService   *pdf.Service
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(orderService *order.Service, pdfService *pdf.Service) *InvoiceHandler {
	return &InvoiceHandler{
		orderService: orderService,
		pdfService:   pdfService,
	}
}

// DownloadInvoice handles GET /orders/:id/invoice
func (h *InvoiceHandler) DownloadInvoice(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	orderID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	// Ownership is enforced by the order lookup itself
	ord, err := h.orderService.GetOrder(orderID, userID, middleware.IsAdminFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	pdfBuffer, err := h.pdfService.GenerateInvoice(ord)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "failed to generate invoice",
		})
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=invoice-%s.pdf", ord.OrderNumber))
	c.Header("Content-Length", strconv.Itoa(pdfBuffer.Len()))

	c.Data(http.StatusOK, "application/pdf", pdfBuffer.Bytes())
}
