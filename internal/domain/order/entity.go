// internal/domain/order/entity.go
package order

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipping  OrderStatus = "shipping"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus represents payment status
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod represents how an order is paid
type PaymentMethod string

const (
	PaymentMethodCOD          PaymentMethod = "cod"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// ParsePaymentMethod parses a payment method string case-insensitively.
// An unrecognized value returns ok=false.
func ParsePaymentMethod(value string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "cod", "cashondelivery", "cash_on_delivery":
		return PaymentMethodCOD, true
	case "bank_transfer", "banktransfer", "qr", "bank_transfer_qr":
		return PaymentMethodBankTransfer, true
	default:
		return "", false
	}
}

// DisplayName returns the customer-facing label for a payment method
func (m PaymentMethod) DisplayName() string {
	switch m {
	case PaymentMethodCOD:
		return "Cash on Delivery"
	case PaymentMethodBankTransfer:
		return "Bank Transfer (QR)"
	default:
		return string(m)
	}
}

// Order represents the order entity
type Order struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	OrderNumber   string        `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	UserID        uint          `gorm:"not null;index" json:"user_id"`
	Status        OrderStatus   `gorm:"not null;default:'pending'" json:"status"`
	PaymentMethod PaymentMethod `gorm:"not null;size:50" json:"payment_method"`

	Subtotal    int64 `gorm:"not null" json:"subtotal"`
	TotalAmount int64 `gorm:"not null" json:"total_amount"`

	// Shipping snapshot captured at checkout
	ShippingFullName string `gorm:"size:100;not null" json:"shipping_full_name"`
	ShippingPhone    string `gorm:"size:20;not null" json:"shipping_phone"`
	ShippingAddress  string `gorm:"size:500;not null" json:"shipping_address"`

	Notes string `gorm:"type:text" json:"notes"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	Payment       *Payment             `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"payment,omitempty"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// OrderItem represents a purchased line snapshotted at checkout
type OrderItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OrderID     uint      `gorm:"not null;index" json:"order_id"`
	ProductID   uint      `gorm:"not null;index" json:"product_id"`
	ProductName string    `gorm:"not null;size:255" json:"product_name"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	UnitPrice   int64     `gorm:"not null" json:"unit_price"`
	LineTotal   int64     `gorm:"not null" json:"line_total"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Payment represents the payment record attached 1:1 to an order
type Payment struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	OrderID       uint          `gorm:"not null;uniqueIndex" json:"order_id"`
	Method        PaymentMethod `gorm:"not null;size:50" json:"method"`
	Status        PaymentStatus `gorm:"not null;default:'pending'" json:"status"`
	Amount        int64         `gorm:"not null" json:"amount"`
	TransactionID string        `gorm:"size:500" json:"transaction_id"`
	PaidAt        *time.Time    `json:"paid_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// OrderStatusHistory tracks order status changes
type OrderStatusHistory struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	OrderID   uint        `gorm:"not null;index" json:"order_id"`
	Status    OrderStatus `gorm:"not null" json:"status"`
	Comment   string      `gorm:"type:text" json:"comment"`
	CreatedBy uint        `gorm:"index" json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
}

// TableName overrides
func (Order) TableName() string              { return "orders" }
func (OrderItem) TableName() string          { return "order_items" }
func (Payment) TableName() string            { return "payments" }
func (OrderStatusHistory) TableName() string { return "order_status_history" }

// validTransitions is the full order lifecycle. Completed and Cancelled
// are terminal.
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:  {OrderStatusCompleted, OrderStatusCancelled},
}

// IsValidStatus reports whether the value is a known order status
func IsValidStatus(status OrderStatus) bool {
	switch status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipping,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from one status to another
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanBeCancelled checks if the order can still be cancelled
func (o *Order) CanBeCancelled() bool {
	return CanTransition(o.Status, OrderStatusCancelled)
}
