// internal/domain/payment/service_test.go
package payment

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/domain/cart"
	"github.com/your-org/flowershop-backend/internal/domain/order"
	"github.com/your-org/flowershop-backend/internal/domain/product"
	"github.com/your-org/flowershop-backend/internal/domain/user"
	"github.com/your-org/flowershop-backend/internal/pkg/apperror"
	"github.com/your-org/flowershop-backend/internal/pkg/events"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&user.User{},
		&user.Address{},
		&product.Category{},
		&product.Product{},
		&cart.CartItem{},
		&order.Order{},
		&order.OrderItem{},
		&order.Payment{},
		&order.OrderStatusHistory{},
	))

	return db
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(t *testing.T, db *gorm.DB, qrBaseURL string) *Service {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Name = "Flower Shop Backend"
	cfg.External.Payment.QRBaseURL = qrBaseURL
	cfg.External.Payment.BankID = "970436"
	cfg.External.Payment.AccountNo = "0011001122334"
	cfg.External.Payment.AccountName = "FLOWER SHOP"
	cfg.External.Payment.Timeout = 2 * time.Second

	cartService := cart.NewService(db, nil, cfg)
	orderService := order.NewService(db, cfg, cartService, nil, nil, newTestLogger())

	return NewService(db, cfg, orderService, newTestLogger())
}

func seedOrder(t *testing.T, db *gorm.DB, method order.PaymentMethod) order.Order {
	t.Helper()

	ord := order.Order{
		OrderNumber:      "A1B2C3D4",
		UserID:           1,
		Status:           order.OrderStatusPending,
		PaymentMethod:    method,
		Subtotal:         200000,
		TotalAmount:      200000,
		ShippingFullName: "Jane Tran",
		ShippingPhone:    "0900000001",
		ShippingAddress:  "123 St, W1, D1, HN",
		Items: []order.OrderItem{{
			ProductID: 1, ProductName: "Rose Bouquet",
			Quantity: 2, UnitPrice: 100000, LineTotal: 200000,
		}},
	}
	require.NoError(t, db.Create(&ord).Error)

	pay := order.Payment{
		OrderID: ord.ID,
		Method:  method,
		Status:  order.PaymentStatusPending,
		Amount:  ord.TotalAmount,
	}
	require.NoError(t, db.Create(&pay).Error)

	return ord
}

func TestGetPaymentQRBuildsGatewayURL(t *testing.T) {
	var hits int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/970436-0011001122334-compact2.png", r.URL.Path)
		assert.Equal(t, "200000", r.URL.Query().Get("amount"))
		assert.Equal(t, "A1B2C3D4", r.URL.Query().Get("addInfo"))
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	db := setupTestDB(t)
	svc := newTestService(t, db, gateway.URL)
	ord := seedOrder(t, db, order.PaymentMethodBankTransfer)

	resp, err := svc.GetPaymentQR(ord.ID, ord.UserID, false)
	require.NoError(t, err)

	assert.Equal(t, "A1B2C3D4", resp.OrderNumber)
	assert.Equal(t, int64(200000), resp.Amount)
	assert.True(t, strings.HasPrefix(resp.QRImageURL, gateway.URL))
	assert.Contains(t, resp.QRImageURL, "addInfo=A1B2C3D4")
	assert.Equal(t, "FLOWER SHOP", resp.AccountName)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGetPaymentQRSurvivesGatewayOutage(t *testing.T) {
	var hits int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer gateway.Close()

	db := setupTestDB(t)
	svc := newTestService(t, db, gateway.URL)
	ord := seedOrder(t, db, order.PaymentMethodBankTransfer)

	resp, err := svc.GetPaymentQR(ord.ID, ord.UserID, false)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.QRImageURL)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestWarmQRRetriesWithFreshDeadline(t *testing.T) {
	var hits int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			// First attempt burns its entire deadline
			time.Sleep(300 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	db := setupTestDB(t)
	svc := newTestService(t, db, gateway.URL)
	svc.client.Timeout = 100 * time.Millisecond

	svc.warmQR(gateway.URL+"/970436-0011001122334-compact2.png", "A1B2C3D4")

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestGetPaymentQRRejectsCOD(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, "http://unused.invalid")
	ord := seedOrder(t, db, order.PaymentMethodCOD)

	_, err := svc.GetPaymentQR(ord.ID, ord.UserID, false)
	require.Error(t, err)
	_, ok := apperror.IsValidation(err)
	assert.True(t, ok)
}

func TestHandleOrderCreatedStoresQRReference(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	db := setupTestDB(t)
	svc := newTestService(t, db, gateway.URL)
	ord := seedOrder(t, db, order.PaymentMethodBankTransfer)

	svc.HandleOrderCreated(events.OrderCreated{
		OrderID:       ord.ID,
		OrderNumber:   ord.OrderNumber,
		TotalAmount:   ord.TotalAmount,
		PaymentMethod: string(order.PaymentMethodBankTransfer),
	})

	var pay order.Payment
	require.NoError(t, db.Where("order_id = ?", ord.ID).First(&pay).Error)
	assert.True(t, strings.HasPrefix(pay.TransactionID, gateway.URL))
	assert.Contains(t, pay.TransactionID, "addInfo=A1B2C3D4")
}

func TestHandleOrderCreatedIgnoresCOD(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, "http://unused.invalid")
	ord := seedOrder(t, db, order.PaymentMethodCOD)

	svc.HandleOrderCreated(events.OrderCreated{
		OrderID:       ord.ID,
		OrderNumber:   ord.OrderNumber,
		TotalAmount:   ord.TotalAmount,
		PaymentMethod: string(order.PaymentMethodCOD),
	})

	var pay order.Payment
	require.NoError(t, db.Where("order_id = ?", ord.ID).First(&pay).Error)
	assert.Empty(t, pay.TransactionID)
}

func TestHandleWebhookMarksPaidAndConfirmsOrder(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, "http://unused.invalid")
	ord := seedOrder(t, db, order.PaymentMethodBankTransfer)

	err := svc.HandleWebhook(&WebhookRequest{
		OrderNumber:   ord.OrderNumber,
		TransactionID: "FT123456",
		Amount:        200000,
		Status:        "success",
	})
	require.NoError(t, err)

	var pay order.Payment
	require.NoError(t, db.Where("order_id = ?", ord.ID).First(&pay).Error)
	assert.Equal(t, order.PaymentStatusPaid, pay.Status)
	assert.Equal(t, "FT123456", pay.TransactionID)
	require.NotNil(t, pay.PaidAt)

	var updated order.Order
	require.NoError(t, db.First(&updated, ord.ID).Error)
	assert.Equal(t, order.OrderStatusConfirmed, updated.Status)
}

func TestHandleWebhookIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, "http://unused.invalid")
	ord := seedOrder(t, db, order.PaymentMethodBankTransfer)

	req := &WebhookRequest{
		OrderNumber:   ord.OrderNumber,
		TransactionID: "FT123456",
		Amount:        200000,
		Status:        "success",
	}
	require.NoError(t, svc.HandleWebhook(req))
	require.NoError(t, svc.HandleWebhook(req))

	var pay order.Payment
	require.NoError(t, db.Where("order_id = ?", ord.ID).First(&pay).Error)
	assert.Equal(t, "FT123456", pay.TransactionID)
}

func TestHandleWebhookRejectsAmountMismatch(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, "http://unused.invalid")
	ord := seedOrder(t, db, order.PaymentMethodBankTransfer)

	err := svc.HandleWebhook(&WebhookRequest{
		OrderNumber:   ord.OrderNumber,
		TransactionID: "FT123456",
		Amount:        999,
		Status:        "success",
	})
	require.Error(t, err)
	verr, ok := apperror.IsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "amount")

	var pay order.Payment
	require.NoError(t, db.Where("order_id = ?", ord.ID).First(&pay).Error)
	assert.Equal(t, order.PaymentStatusPending, pay.Status)
}

func TestHandleWebhookRecordsFailure(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, "http://unused.invalid")
	ord := seedOrder(t, db, order.PaymentMethodBankTransfer)

	err := svc.HandleWebhook(&WebhookRequest{
		OrderNumber:   ord.OrderNumber,
		TransactionID: "FT999",
		Amount:        200000,
		Status:        "failed",
	})
	require.NoError(t, err)

	var pay order.Payment
	require.NoError(t, db.Where("order_id = ?", ord.ID).First(&pay).Error)
	assert.Equal(t, order.PaymentStatusFailed, pay.Status)

	var updated order.Order
	require.NoError(t, db.First(&updated, ord.ID).Error)
	assert.Equal(t, order.OrderStatusPending, updated.Status)
}

func TestHandleWebhookUnknownOrder(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, "http://unused.invalid")

	err := svc.HandleWebhook(&WebhookRequest{
		OrderNumber:   "ZZZZZZZZ",
		TransactionID: "FT1",
		Amount:        1,
		Status:        "success",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestMarkPaymentPaid(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, "http://unused.invalid")
	ord := seedOrder(t, db, order.PaymentMethodCOD)

	pay, err := svc.MarkPaymentPaid(ord.ID, 1, "")
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatusPaid, pay.Status)
	require.NotNil(t, pay.PaidAt)

	_, err = svc.MarkPaymentPaid(ord.ID, 1, "")
	require.Error(t, err)
	_, ok := apperror.IsValidation(err)
	assert.True(t, ok)
}
