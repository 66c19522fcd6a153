// internal/interfaces/http/handlers/user_address.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/flowershop-backend/internal/domain/user"
	"github.com/your-org/flowershop-backend/internal/interfaces/http/middleware"
)

// UserAddressHandler handles address book endpoints
type UserAddressHandler struct {
	addressService *user.AddressService
}

// NewUserAddressHandler creates a new address handler
func NewUserAddressHandler(addressService *user.AddressService) *UserAddressHandler {
	return &UserAddressHandler{
		addressService: addressService,
	}
}

// GetAddresses handles GET /addresses
func (h *UserAddressHandler) GetAddresses(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	addresses, err := h.addressService.GetUserAddresses(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "addresses retrieved successfully",
		"data":    addresses,
	})
}

// GetAddress handles GET /addresses/:id
func (h *UserAddressHandler) GetAddress(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	addressID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	address, err := h.addressService.GetAddress(userID, addressID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "address retrieved successfully",
		"data":    address,
	})
}

// CreateAddress handles POST /addresses
func (h *UserAddressHandler) CreateAddress(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	var req user.CreateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	address, err := h.addressService.CreateAddress(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "address created successfully",
		"data":    address,
	})
}

// UpdateAddress handles PUT /addresses/:id
func (h *UserAddressHandler) UpdateAddress(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	addressID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req user.UpdateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	address, err := h.addressService.UpdateAddress(userID, addressID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "address updated successfully",
		"data":    address,
	})
}

// DeleteAddress handles DELETE /addresses/:id
func (h *UserAddressHandler) DeleteAddress(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	addressID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	if err := h.addressService.DeleteAddress(userID, addressID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "address deleted successfully",
	})
}

// parseIDParam parses a numeric path parameter; on failure it writes the
// error response and returns a non-nil error.
func parseIDParam(c *gin.Context, name string) (uint, error) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid " + name + " parameter"})
		return 0, err
	}
	return uint(value), nil
}
