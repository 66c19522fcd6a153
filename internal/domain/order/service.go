// internal/domain/order/service.go
package order

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/domain/cart"
	"github.com/your-org/flowershop-backend/internal/domain/product"
	"github.com/your-org/flowershop-backend/internal/domain/user"
	"github.com/your-org/flowershop-backend/internal/pkg/apperror"
	"github.com/your-org/flowershop-backend/internal/pkg/email"
	"github.com/your-org/flowershop-backend/internal/pkg/events"
	"gorm.io/gorm"
)

// Service handles order business logic
type Service struct {
	db           *gorm.DB
	config       *config.Config
	cartService  *cart.Service
	emailService *email.EmailService
	bus          *events.Bus
	logger       *logrus.Logger
}

// NewService creates a new order service. The event bus and email service
// are optional; when nil the corresponding notifications are skipped.
func NewService(db *gorm.DB, cfg *config.Config, cartService *cart.Service, emailService *email.EmailService, bus *events.Bus, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		db:           db,
		config:       cfg,
		cartService:  cartService,
		emailService: emailService,
		bus:          bus,
		logger:       logger,
	}
}

// CreateOrderRequest represents order creation data
type CreateOrderRequest struct {
	AddressID     uint   `json:"address_id" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required"`
	FullName      string `json:"full_name"`
	Phone         string `json:"phone"`
	Notes         string `json:"notes"`
}

// OrderListRequest represents order list query parameters
type OrderListRequest struct {
	Page      int         `form:"page,default=1"`
	Limit     int         `form:"limit,default=20"`
	Status    OrderStatus `form:"status"`
	UserID    uint        `form:"user_id"`
	SortBy    string      `form:"sort_by,default=created_at"`
	SortOrder string      `form:"sort_order,default=desc"`
}

// UpdateStatusRequest represents an order status change
type UpdateStatusRequest struct {
	Status  OrderStatus `json:"status" binding:"required"`
	Comment string      `json:"comment"`
}

// OrderListResponse represents order list response with pagination
type OrderListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// CreateOrder converts the user's cart into an order. Stock is decremented
// conditionally so two concurrent checkouts cannot oversell; any shortfall
// aborts the whole transaction and the cart is left untouched.
func (s *Service) CreateOrder(userID uint, req *CreateOrderRequest) (*Order, error) {
	method, ok := ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return nil, apperror.NewFieldValidation("payment_method", "unsupported payment method")
	}

	cartItems, err := s.cartService.GetUserCartItems(userID)
	if err != nil {
		return nil, err
	}
	if len(cartItems) == 0 {
		return nil, apperror.NewValidation("cart is empty")
	}

	var buyer user.User
	if err := s.db.Where("id = ? AND is_active = ?", userID, true).First(&buyer).Error; err != nil {
		return nil, apperror.NewNotFound("user")
	}

	var address user.Address
	result := s.db.Where("id = ? AND user_id = ?", req.AddressID, userID).First(&address)
	if result.Error != nil {
		return nil, apperror.NewFieldValidation("address_id", "address not found")
	}

	fullName := req.FullName
	if fullName == "" {
		fullName = address.FullName
	}
	phone := req.Phone
	if phone == "" {
		phone = address.Phone
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var orderItems []OrderItem
	var subtotal int64

	for _, item := range cartItems {
		var prod product.Product
		if err := tx.Where("id = ? AND is_active = ?", item.ProductID, true).First(&prod).Error; err != nil {
			// Products removed since the cart was built are skipped
			continue
		}

		res := tx.Model(&product.Product{}).
			Where("id = ? AND stock_quantity >= ?", prod.ID, item.Quantity).
			Update("stock_quantity", gorm.Expr("stock_quantity - ?", item.Quantity))
		if res.Error != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to reserve stock: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			tx.Rollback()
			return nil, apperror.NewFieldValidation("quantity",
				fmt.Sprintf("insufficient stock for %s: only %d available", prod.Name, prod.StockQuantity))
		}

		lineTotal := item.Price * int64(item.Quantity)
		orderItems = append(orderItems, OrderItem{
			ProductID:   prod.ID,
			ProductName: prod.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.Price,
			LineTotal:   lineTotal,
		})
		subtotal += lineTotal
	}

	if len(orderItems) == 0 {
		tx.Rollback()
		return nil, apperror.NewValidation("cart is empty")
	}

	order := Order{
		OrderNumber:      generateOrderNumber(),
		UserID:           userID,
		Status:           OrderStatusPending,
		PaymentMethod:    method,
		Subtotal:         subtotal,
		TotalAmount:      subtotal,
		ShippingFullName: fullName,
		ShippingPhone:    phone,
		ShippingAddress:  address.FormattedText(),
		Notes:            req.Notes,
		Items:            orderItems,
	}

	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	payment := Payment{
		OrderID: order.ID,
		Method:  method,
		Status:  PaymentStatusPending,
		Amount:  order.TotalAmount,
	}
	if err := tx.Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	history := OrderStatusHistory{
		OrderID:   order.ID,
		Status:    OrderStatusPending,
		Comment:   "order placed",
		CreatedBy: userID,
	}
	if err := tx.Create(&history).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to record status history: %w", err)
	}

	// The cart is consumed in the same transaction as the stock reservation
	if err := tx.Where("user_id = ?", userID).Delete(&cart.CartItem{}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	order.Payment = &payment

	if s.bus != nil {
		s.bus.Publish(events.OrderCreated{
			OrderID:            order.ID,
			OrderNumber:        order.OrderNumber,
			TotalAmount:        order.TotalAmount,
			CustomerName:       fullName,
			PaymentMethod:      string(method),
			PaymentMethodLabel: method.DisplayName(),
			CreatedAt:          order.CreatedAt,
		})
	}

	return &order, nil
}

// GetOrders retrieves orders with pagination and filtering (admin)
func (s *Service) GetOrders(req *OrderListRequest) (*OrderListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	query := s.db.Model(&Order{})

	if req.Status != "" {
		if !IsValidStatus(req.Status) {
			return nil, apperror.NewFieldValidation("status", "invalid order status")
		}
		query = query.Where("status = ?", req.Status)
	}
	if req.UserID > 0 {
		query = query.Where("user_id = ?", req.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []Order
	offset := (req.Page - 1) * req.Limit
	err := query.
		Preload("Items").
		Preload("Payment").
		Order(buildOrderClause(req.SortBy, req.SortOrder)).
		Offset(offset).
		Limit(req.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))

	return &OrderListResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}

// GetUserOrders retrieves orders for a specific user
func (s *Service) GetUserOrders(userID uint, req *OrderListRequest) (*OrderListResponse, error) {
	req.UserID = userID
	return s.GetOrders(req)
}

// GetOrder retrieves a single order. Non-admin callers can only see their own.
func (s *Service) GetOrder(orderID uint, userID uint, isAdmin bool) (*Order, error) {
	query := s.db.Preload("Items").Preload("Payment").Preload("StatusHistory")
	if !isAdmin {
		query = query.Where("user_id = ?", userID)
	}

	var order Order
	if err := query.First(&order, orderID).Error; err != nil {
		return nil, apperror.NewNotFound("order")
	}

	return &order, nil
}

// GetOrderByNumber retrieves an order by its public order number
func (s *Service) GetOrderByNumber(orderNumber string, userID uint, isAdmin bool) (*Order, error) {
	query := s.db.Preload("Items").Preload("Payment").Preload("StatusHistory").
		Where("order_number = ?", orderNumber)
	if !isAdmin {
		query = query.Where("user_id = ?", userID)
	}

	var order Order
	if err := query.First(&order).Error; err != nil {
		return nil, apperror.NewNotFound("order")
	}

	return &order, nil
}

// UpdateOrderStatus moves an order through its lifecycle. Cancelling a
// not-yet-completed order restores the reserved stock in the same
// transaction as the status change.
func (s *Service) UpdateOrderStatus(orderID uint, actorID uint, req *UpdateStatusRequest) (*Order, error) {
	if !IsValidStatus(req.Status) {
		return nil, apperror.NewFieldValidation("status", "invalid order status")
	}

	var order Order
	if err := s.db.Preload("Items").First(&order, orderID).Error; err != nil {
		return nil, apperror.NewNotFound("order")
	}

	if !CanTransition(order.Status, req.Status) {
		return nil, apperror.NewValidation(
			fmt.Sprintf("cannot change order status from %s to %s", order.Status, req.Status))
	}

	if err := s.applyStatusChange(&order, req.Status, req.Comment, actorID); err != nil {
		return nil, err
	}

	order.Status = req.Status

	if req.Status == OrderStatusConfirmed {
		go s.sendConfirmationEmail(&order)
	}

	return &order, nil
}

// applyStatusChange commits a transition in one transaction. The status
// write is conditional on the status the caller read, so of two racing
// requests exactly one wins; the loser aborts without touching stock.
func (s *Service) applyStatusChange(order *Order, status OrderStatus, comment string, actorID uint) error {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	res := tx.Model(&Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Update("status", status)
	if res.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return apperror.NewValidation(
			fmt.Sprintf("order is no longer %s, please retry", order.Status))
	}

	if status == OrderStatusCancelled {
		if err := s.restoreStock(tx, order.Items); err != nil {
			tx.Rollback()
			return err
		}
	}

	history := OrderStatusHistory{
		OrderID:   order.ID,
		Status:    status,
		Comment:   comment,
		CreatedBy: actorID,
	}
	if err := tx.Create(&history).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record status history: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CancelOrder cancels a customer's own order if it is still cancellable
func (s *Service) CancelOrder(userID uint, orderID uint) (*Order, error) {
	var order Order
	if err := s.db.Where("user_id = ?", userID).First(&order, orderID).Error; err != nil {
		return nil, apperror.NewNotFound("order")
	}

	if !order.CanBeCancelled() {
		return nil, apperror.NewValidation(
			fmt.Sprintf("order in status %s cannot be cancelled", order.Status))
	}

	return s.UpdateOrderStatus(orderID, userID, &UpdateStatusRequest{
		Status:  OrderStatusCancelled,
		Comment: "cancelled by customer",
	})
}

// restoreStock returns reserved quantities to inventory
func (s *Service) restoreStock(tx *gorm.DB, items []OrderItem) error {
	for _, item := range items {
		err := tx.Model(&product.Product{}).
			Where("id = ?", item.ProductID).
			Update("stock_quantity", gorm.Expr("stock_quantity + ?", item.Quantity)).Error
		if err != nil {
			return fmt.Errorf("failed to restore stock: %w", err)
		}
	}
	return nil
}

// sendConfirmationEmail delivers the order confirmation. Failures are
// logged and never surfaced to the caller.
func (s *Service) sendConfirmationEmail(order *Order) {
	if s.emailService == nil {
		return
	}

	var buyer user.User
	if err := s.db.First(&buyer, order.UserID).Error; err != nil {
		s.logger.WithError(err).WithField("order_number", order.OrderNumber).
			Warn("Failed to load customer for confirmation email")
		return
	}

	items := make([]email.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, email.OrderItem{
			Name:     item.ProductName,
			Quantity: item.Quantity,
			Price:    item.UnitPrice,
			Total:    item.LineTotal,
		})
	}

	data := email.OrderConfirmationData{
		EmailTemplateData: email.EmailTemplateData{
			UserName:  buyer.GetFullName(),
			UserEmail: buyer.Email,
		},
		OrderNumber:     order.OrderNumber,
		OrderDate:       order.CreatedAt.Format("January 2, 2006"),
		OrderTotal:      order.TotalAmount,
		PaymentMethod:   order.PaymentMethod.DisplayName(),
		ShippingAddress: order.ShippingAddress,
		Items:           items,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.emailService.SendOrderConfirmationEmail(ctx, data); err != nil {
		s.logger.WithError(err).WithField("order_number", order.OrderNumber).
			Warn("Failed to send order confirmation email")
		return
	}

	s.logger.WithField("order_number", order.OrderNumber).Info("Order confirmation email sent")
}

const orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateOrderNumber returns an 8-character random order reference
func generateOrderNumber() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to time
		return fmt.Sprintf("%08X", time.Now().UnixNano()&0xFFFFFFFF)
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return string(buf)
}

// buildOrderClause builds a safe ORDER BY clause
func buildOrderClause(sortBy, sortOrder string) string {
	validSortFields := map[string]bool{
		"created_at":   true,
		"updated_at":   true,
		"total_amount": true,
		"status":       true,
	}
	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}
	return fmt.Sprintf("%s %s", sortBy, sortOrder)
}
