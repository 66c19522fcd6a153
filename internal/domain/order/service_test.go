// internal/domain/order/service_test.go
package order

import (
	"io"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/domain/cart"
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
		&product.ProductImage{},
		&cart.CartItem{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&OrderStatusHistory{},
	))

	return db
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(t *testing.T, db *gorm.DB, bus *events.Bus) *Service {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Name = "Flower Shop Backend"
	cartService := cart.NewService(db, nil, cfg)

	return NewService(db, cfg, cartService, nil, bus, newTestLogger())
}

type checkoutFixture struct {
	user    user.User
	address user.Address
	product product.Product
}

func seedCheckout(t *testing.T, db *gorm.DB, stock int, cartQuantity int) checkoutFixture {
	t.Helper()

	buyer := user.User{
		Email:     "jane@example.com",
		Password:  "irrelevant",
		FirstName: "Jane",
		LastName:  "Tran",
		IsActive:  true,
	}
	require.NoError(t, db.Create(&buyer).Error)

	address := user.Address{
		UserID:   buyer.ID,
		FullName: "Jane Tran",
		Phone:    "0900000001",
		City:     "HN",
		District: "D1",
		Ward:     "W1",
		Detail:   "123 St",
	}
	require.NoError(t, db.Create(&address).Error)

	category := product.Category{Name: "Bouquets", Slug: "bouquets", IsActive: true}
	require.NoError(t, db.Create(&category).Error)

	prod := product.Product{
		SKU:           "ROSE-01",
		Name:          "Rose Bouquet",
		Slug:          "rose-bouquet",
		Price:         100000,
		CategoryID:    category.ID,
		StockQuantity: stock,
		IsActive:      true,
	}
	require.NoError(t, db.Create(&prod).Error)

	if cartQuantity > 0 {
		line := cart.CartItem{
			UserID:    &buyer.ID,
			ProductID: prod.ID,
			Quantity:  cartQuantity,
			Price:     prod.Price,
		}
		require.NoError(t, db.Create(&line).Error)
	}

	return checkoutFixture{user: buyer, address: address, product: prod}
}

func TestCreateOrderEndToEnd(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 5, 2)

	order, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID,
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	assert.Len(t, order.OrderNumber, 8)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, PaymentMethodCOD, order.PaymentMethod)
	assert.Equal(t, int64(200000), order.Subtotal)
	assert.Equal(t, int64(200000), order.TotalAmount)
	assert.Equal(t, "Jane Tran", order.ShippingFullName)
	assert.Equal(t, "123 St, W1, D1, HN", order.ShippingAddress)

	require.Len(t, order.Items, 1)
	assert.Equal(t, "Rose Bouquet", order.Items[0].ProductName)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, int64(100000), order.Items[0].UnitPrice)
	assert.Equal(t, int64(200000), order.Items[0].LineTotal)

	require.NotNil(t, order.Payment)
	assert.Equal(t, PaymentStatusPending, order.Payment.Status)
	assert.Equal(t, int64(200000), order.Payment.Amount)

	var prod product.Product
	require.NoError(t, db.First(&prod, fx.product.ID).Error)
	assert.Equal(t, 3, prod.StockQuantity)

	var remaining int64
	require.NoError(t, db.Model(&cart.CartItem{}).Where("user_id = ?", fx.user.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	var history []OrderStatusHistory
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, OrderStatusPending, history[0].Status)
}

func TestCreateOrderInsufficientStockAbortsEverything(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 1, 3)

	_, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID,
		PaymentMethod: "cod",
	})
	require.Error(t, err)

	verr, ok := apperror.IsValidation(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "quantity")
	assert.Contains(t, verr.Fields["quantity"][0], "Rose Bouquet")
	assert.Contains(t, verr.Fields["quantity"][0], "only 1 available")

	// Nothing from the aborted checkout may stick
	var prod product.Product
	require.NoError(t, db.First(&prod, fx.product.ID).Error)
	assert.Equal(t, 1, prod.StockQuantity)

	var cartLines int64
	require.NoError(t, db.Model(&cart.CartItem{}).Where("user_id = ?", fx.user.ID).Count(&cartLines).Error)
	assert.Equal(t, int64(1), cartLines)

	var orders int64
	require.NoError(t, db.Model(&Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 5, 0)

	_, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID,
		PaymentMethod: "cod",
	})
	require.Error(t, err)

	verr, ok := apperror.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "cart is empty", verr.Message)
}

func TestCreateOrderEmptyCartCheckedBeforeAddress(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 5, 0)

	// An empty cart with a bad address must still report the empty cart
	_, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID + 100,
		PaymentMethod: "cod",
	})
	require.Error(t, err)

	verr, ok := apperror.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "cart is empty", verr.Message)
}

func TestCreateOrderRejectsForeignAddress(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 5, 2)

	other := user.User{Email: "other@example.com", Password: "x", FirstName: "O", LastName: "T", IsActive: true}
	require.NoError(t, db.Create(&other).Error)
	foreign := user.Address{
		UserID: other.ID, FullName: "Other", Phone: "0900000002",
		City: "HN", District: "D2", Ward: "W2", Detail: "9 Rd",
	}
	require.NoError(t, db.Create(&foreign).Error)

	_, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     foreign.ID,
		PaymentMethod: "cod",
	})
	require.Error(t, err)

	verr, ok := apperror.IsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "address_id")
}

func TestCreateOrderSkipsVanishedProducts(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 5, 2)

	// A second cart line whose product has since been deactivated
	gone := product.Product{
		SKU: "LILY-01", Name: "Lily", Slug: "lily", Price: 50000,
		CategoryID: fx.product.CategoryID, StockQuantity: 10, IsActive: false,
	}
	require.NoError(t, db.Create(&gone).Error)
	// gorm's default:true tag makes Create drop the zero-value false above
	require.NoError(t, db.Model(&gone).Update("is_active", false).Error)
	line := cart.CartItem{UserID: &fx.user.ID, ProductID: gone.ID, Quantity: 1, Price: 50000}
	require.NoError(t, db.Create(&line).Error)

	order, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID,
		PaymentMethod: "bank_transfer",
	})
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	assert.Equal(t, fx.product.ID, order.Items[0].ProductID)
	assert.Equal(t, int64(200000), order.TotalAmount)
}

func TestCreateOrderPublishesEvent(t *testing.T) {
	db := setupTestDB(t)

	received := make(chan events.OrderCreated, 1)
	bus := events.NewBus(newTestLogger(), 8)
	bus.Subscribe(func(event events.OrderCreated) {
		received <- event
	})
	bus.Start()
	defer bus.Close()

	svc := newTestService(t, db, bus)
	fx := seedCheckout(t, db, 5, 2)

	order, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID,
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, order.OrderNumber, event.OrderNumber)
		assert.Equal(t, int64(200000), event.TotalAmount)
		assert.Equal(t, "Jane Tran", event.CustomerName)
		assert.Equal(t, string(PaymentMethodCOD), event.PaymentMethod)
		assert.Equal(t, "Cash on Delivery", event.PaymentMethodLabel)
	case <-time.After(2 * time.Second):
		t.Fatal("expected order created event")
	}
}

func TestUpdateOrderStatusForwardAndHistory(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 5, 2)

	order, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID,
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateOrderStatus(order.ID, 1, &UpdateStatusRequest{
		Status:  OrderStatusConfirmed,
		Comment: "payment verified",
	})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusConfirmed, updated.Status)

	var history []OrderStatusHistory
	require.NoError(t, db.Where("order_id = ?", order.ID).Order("id").Find(&history).Error)
	require.Len(t, history, 2)
	assert.Equal(t, OrderStatusConfirmed, history[1].Status)
	assert.Equal(t, "payment verified", history[1].Comment)
}

func TestUpdateOrderStatusRejectsSkips(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 5, 2)

	order, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID,
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(order.ID, 1, &UpdateStatusRequest{Status: OrderStatusCompleted})
	require.Error(t, err)
	_, ok := apperror.IsValidation(err)
	assert.True(t, ok)

	var current Order
	require.NoError(t, db.First(&current, order.ID).Error)
	assert.Equal(t, OrderStatusPending, current.Status)
}

func TestCancelOrderRestoresStock(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 5, 2)

	order, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID,
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	var prod product.Product
	require.NoError(t, db.First(&prod, fx.product.ID).Error)
	require.Equal(t, 3, prod.StockQuantity)

	cancelled, err := svc.CancelOrder(fx.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, cancelled.Status)

	require.NoError(t, db.First(&prod, fx.product.ID).Error)
	assert.Equal(t, 5, prod.StockQuantity)
}

func TestCancelWithStaleStatusDoesNotRestockTwice(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 5, 2)

	order, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID,
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	// Two requests read the order as pending; the first cancellation wins
	var stale Order
	require.NoError(t, db.Preload("Items").First(&stale, order.ID).Error)

	_, err = svc.CancelOrder(fx.user.ID, order.ID)
	require.NoError(t, err)

	err = svc.applyStatusChange(&stale, OrderStatusCancelled, "cancelled by admin", 99)
	require.Error(t, err)
	_, ok := apperror.IsValidation(err)
	assert.True(t, ok)

	var prod product.Product
	require.NoError(t, db.First(&prod, fx.product.ID).Error)
	assert.Equal(t, 5, prod.StockQuantity)

	var history int64
	require.NoError(t, db.Model(&OrderStatusHistory{}).
		Where("order_id = ? AND status = ?", order.ID, OrderStatusCancelled).
		Count(&history).Error)
	assert.Equal(t, int64(1), history)
}

func TestCompleteWithStaleStatusLosesToCancel(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 5, 2)

	order, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID,
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(order.ID, 1, &UpdateStatusRequest{Status: OrderStatusConfirmed})
	require.NoError(t, err)
	_, err = svc.UpdateOrderStatus(order.ID, 1, &UpdateStatusRequest{Status: OrderStatusShipping})
	require.NoError(t, err)

	var stale Order
	require.NoError(t, db.Preload("Items").First(&stale, order.ID).Error)

	_, err = svc.CancelOrder(fx.user.ID, order.ID)
	require.NoError(t, err)

	// A completion carrying the pre-cancel snapshot must not resurrect the order
	err = svc.applyStatusChange(&stale, OrderStatusCompleted, "", 1)
	require.Error(t, err)

	var current Order
	require.NoError(t, db.First(&current, order.ID).Error)
	assert.Equal(t, OrderStatusCancelled, current.Status)
}

func TestCancelOrderRejectsTerminal(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 5, 2)

	order, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID,
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	_, err = svc.CancelOrder(fx.user.ID, order.ID)
	require.NoError(t, err)

	_, err = svc.CancelOrder(fx.user.ID, order.ID)
	require.Error(t, err)
	_, ok := apperror.IsValidation(err)
	assert.True(t, ok)
}

func TestGetOrderOwnership(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	fx := seedCheckout(t, db, 5, 2)

	order, err := svc.CreateOrder(fx.user.ID, &CreateOrderRequest{
		AddressID:     fx.address.ID,
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	_, err = svc.GetOrder(order.ID, fx.user.ID+100, false)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))

	got, err := svc.GetOrder(order.ID, fx.user.ID+100, true)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)

	byNumber, err := svc.GetOrderByNumber(order.OrderNumber, fx.user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, order.ID, byNumber.ID)
}
