package apperror

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorFields(t *testing.T) {
	err := NewFieldValidation("quantity", "insufficient stock: only 3 available")
	err.AddField("quantity", "must be positive").AddField("product_id", "required")

	assert.Equal(t, "validation failed", err.Error())
	assert.Len(t, err.Fields["quantity"], 2)
	assert.Equal(t, []string{"required"}, err.Fields["product_id"])
}

func TestErrorClassification(t *testing.T) {
	ve, ok := IsValidation(fmt.Errorf("checkout failed: %w", NewValidation("cart is empty")))
	assert.True(t, ok)
	assert.Equal(t, "cart is empty", ve.Message)

	assert.True(t, IsNotFound(fmt.Errorf("load: %w", NewNotFound("order"))))
	assert.True(t, IsUnauthorized(NewUnauthorized("invalid credentials")))
	assert.True(t, IsForbidden(NewForbidden("admin access required")))

	assert.False(t, IsNotFound(NewValidation("nope")))
	_, ok = IsValidation(NewNotFound("product"))
	assert.False(t, ok)
}

func TestNotFoundMessage(t *testing.T) {
	assert.EqualError(t, NewNotFound("product"), "product not found")
}
