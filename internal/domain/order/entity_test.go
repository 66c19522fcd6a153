// internal/domain/order/entity_test.go
package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionForwardPath(t *testing.T) {
	assert.True(t, CanTransition(OrderStatusPending, OrderStatusConfirmed))
	assert.True(t, CanTransition(OrderStatusConfirmed, OrderStatusShipping))
	assert.True(t, CanTransition(OrderStatusShipping, OrderStatusCompleted))
}

func TestCanTransitionRejectsSkips(t *testing.T) {
	assert.False(t, CanTransition(OrderStatusPending, OrderStatusShipping))
	assert.False(t, CanTransition(OrderStatusPending, OrderStatusCompleted))
	assert.False(t, CanTransition(OrderStatusConfirmed, OrderStatusCompleted))
	assert.False(t, CanTransition(OrderStatusConfirmed, OrderStatusPending))
}

func TestTerminalStatesAdmitNoTransitions(t *testing.T) {
	for _, from := range []OrderStatus{OrderStatusCompleted, OrderStatusCancelled} {
		for _, to := range []OrderStatus{
			OrderStatusPending, OrderStatusConfirmed, OrderStatusShipping,
			OrderStatusCompleted, OrderStatusCancelled,
		} {
			assert.False(t, CanTransition(from, to), "%s -> %s should be rejected", from, to)
		}
		assert.True(t, from.IsTerminal())
	}
}

func TestCancellableFromAnyNonTerminalState(t *testing.T) {
	for _, from := range []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusShipping} {
		order := Order{Status: from}
		assert.True(t, order.CanBeCancelled(), "order in %s should be cancellable", from)
	}

	completed := Order{Status: OrderStatusCompleted}
	assert.False(t, completed.CanBeCancelled())
}

func TestIsValidStatus(t *testing.T) {
	assert.True(t, IsValidStatus(OrderStatusShipping))
	assert.False(t, IsValidStatus(OrderStatus("delivered")))
	assert.False(t, IsValidStatus(OrderStatus("")))
}

func TestParsePaymentMethod(t *testing.T) {
	tests := []struct {
		input    string
		expected PaymentMethod
		ok       bool
	}{
		{"cod", PaymentMethodCOD, true},
		{"COD", PaymentMethodCOD, true},
		{"cash_on_delivery", PaymentMethodCOD, true},
		{"bank_transfer", PaymentMethodBankTransfer, true},
		{"  QR  ", PaymentMethodBankTransfer, true},
		{"crypto", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		method, ok := ParsePaymentMethod(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		assert.Equal(t, tt.expected, method, "input %q", tt.input)
	}
}

func TestPaymentMethodDisplayName(t *testing.T) {
	assert.Equal(t, "Cash on Delivery", PaymentMethodCOD.DisplayName())
	assert.Equal(t, "Bank Transfer (QR)", PaymentMethodBankTransfer.DisplayName())
}
