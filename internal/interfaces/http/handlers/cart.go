// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/domain/cart"
	"github.com/your-org/flowershop-backend/internal/interfaces/http/middleware"
)

// CartHandler handles cart endpoints. Both authenticated users and
// anonymous visitors carry a cart; visitors are keyed by a session cookie.
type CartHandler struct {
	cartService *cart.Service
	config      *config.Config
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService *cart.Service, cfg *config.Config) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		config:      cfg,
	}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	userID, sessionID := h.cartIdentity(c)

	cartResponse, err := h.cartService.GetCart(userID, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "cart retrieved successfully",
		"data":    cartResponse,
	})
}

// AddToCart handles POST /cart/items
func (h *CartHandler) AddToCart(c *gin.Context) {
	userID, sessionID := h.cartIdentity(c)

	var req cart.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	cartResponse, err := h.cartService.AddToCart(userID, sessionID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "item added to cart successfully",
		"data":    cartResponse,
	})
}

// UpdateCartItem handles PUT /cart/items/:id where :id is the product ID
func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	userID, sessionID := h.cartIdentity(c)

	productID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req cart.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	cartResponse, err := h.cartService.UpdateCartItem(userID, sessionID, productID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "cart item updated successfully",
		"data":    cartResponse,
	})
}

// RemoveFromCart handles DELETE /cart/items/:id
func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	userID, sessionID := h.cartIdentity(c)

	productID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	cartResponse, err := h.cartService.RemoveFromCart(userID, sessionID, productID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "item removed from cart successfully",
		"data":    cartResponse,
	})
}

// ClearCart handles DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	userID, sessionID := h.cartIdentity(c)

	if err := h.cartService.ClearCart(userID, sessionID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "cart cleared successfully",
	})
}

// MergeCart handles POST /cart/merge - folds the visitor's session cart
// into the authenticated user's cart. Login and register do this
// implicitly; this endpoint covers clients that authenticate out of band.
func (h *CartHandler) MergeCart(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	sessionID, err := c.Cookie("session_id")
	if err == nil && sessionID != "" {
		if err := h.cartService.MergeGuestCartToUser(userID, sessionID); err != nil {
			respondError(c, err)
			return
		}
	}

	cartResponse, err := h.cartService.GetCart(&userID, "")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "cart merged successfully",
		"data":    cartResponse,
	})
}

// cartIdentity resolves who owns the cart for this request. Authenticated
// users are preferred; anonymous visitors get a session cookie.
func (h *CartHandler) cartIdentity(c *gin.Context) (*uint, string) {
	if id, ok := middleware.GetUserIDFromContext(c); ok {
		return &id, ""
	}
	return nil, h.getOrCreateSessionID(c)
}

// getOrCreateSessionID gets session ID from cookie or creates a new one
func (h *CartHandler) getOrCreateSessionID(c *gin.Context) string {
	sessionID, err := c.Cookie("session_id")
	if err != nil || sessionID == "" {
		sessionID = uuid.New().String()
		c.SetCookie("session_id", sessionID, 86400, "/", "", false, true)
	}
	return sessionID
}
