// internal/pkg/pdf/service_test.go
package pdf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/domain/order"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0 ₫", FormatAmount(0))
	assert.Equal(t, "999 ₫", FormatAmount(999))
	assert.Equal(t, "1,000 ₫", FormatAmount(1000))
	assert.Equal(t, "200,000 ₫", FormatAmount(200000))
	assert.Equal(t, "1,234,567 ₫", FormatAmount(1234567))
	assert.Equal(t, "-50,000 ₫", FormatAmount(-50000))
}

func TestInvoiceHTMLContainsOrderDetails(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Name = "Flower Shop"
	cfg.External.Email.FromEmail = "orders@flowershop.example"
	svc := NewService(cfg)

	paidAt := time.Now()
	ord := &order.Order{
		OrderNumber:      "A1B2C3D4",
		Status:           order.OrderStatusConfirmed,
		PaymentMethod:    order.PaymentMethodBankTransfer,
		Subtotal:         200000,
		TotalAmount:      200000,
		ShippingFullName: "Jane Tran",
		ShippingPhone:    "0900000001",
		ShippingAddress:  "123 St, W1, D1, HN",
		CreatedAt:        time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Items: []order.OrderItem{{
			ProductName: "Rose Bouquet",
			Quantity:    2,
			UnitPrice:   100000,
			LineTotal:   200000,
		}},
		Payment: &order.Payment{
			Status: order.PaymentStatusPaid,
			PaidAt: &paidAt,
		},
	}

	html, err := svc.generateHTML(svc.buildInvoiceData(ord))
	require.NoError(t, err)

	assert.Contains(t, html, "INV-A1B2C3D4")
	assert.Contains(t, html, "March 14, 2026")
	assert.Contains(t, html, "Jane Tran")
	assert.Contains(t, html, "123 St, W1, D1, HN")
	assert.Contains(t, html, "Rose Bouquet")
	assert.Contains(t, html, "200,000 ₫")
	assert.Contains(t, html, "Bank Transfer (QR)")
	assert.Contains(t, html, "status-paid")
	assert.Contains(t, html, "orders@flowershop.example")
}

func TestInvoiceWithoutPaymentDefaultsToPending(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Name = "Flower Shop"
	svc := NewService(cfg)

	ord := &order.Order{
		OrderNumber:   "E5F6G7H8",
		Status:        order.OrderStatusPending,
		PaymentMethod: order.PaymentMethodCOD,
	}

	data := svc.buildInvoiceData(ord)
	assert.Equal(t, "pending", data.PaymentStatus)
}
