// internal/interfaces/http/handlers/auth.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/domain/cart"
	"github.com/your-org/flowershop-backend/internal/domain/user"
	"github.com/your-org/flowershop-backend/internal/interfaces/http/middleware"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	userService *user.Service
	cartService *cart.Service
	config      *config.Config
	logger      *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(userService *user.Service, cartService *cart.Service, cfg *config.Config, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		cartService: cartService,
		config:      cfg,
		logger:      logger,
	}
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var req user.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	response, err := h.userService.Register(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.mergeGuestCart(c, response.User.ID)

	c.JSON(http.StatusCreated, gin.H{
		"message": "user registered successfully",
		"data":    response,
	})
}

// Login handles user login. An anonymous session cart is merged into the
// user's cart on success.
func (h *AuthHandler) Login(c *gin.Context) {
	var req user.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	response, err := h.userService.Login(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.mergeGuestCart(c, response.User.ID)

	c.JSON(http.StatusOK, gin.H{
		"message": "login successful",
		"data":    response,
	})
}

// RefreshToken handles token refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	response, err := h.userService.RefreshToken(req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "token refreshed successfully",
		"data":    response,
	})
}

// Logout handles user logout. Tokens are stateless; the client discards them.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "logged out successfully",
	})
}

// ChangePassword handles password change for authenticated users
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	var req user.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.userService.ChangePassword(userID, &req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "password changed successfully",
	})
}

// mergeGuestCart folds the session cart into the user cart if a session
// cookie is present. Failures are logged, never surfaced.
func (h *AuthHandler) mergeGuestCart(c *gin.Context, userID uint) {
	sessionID, err := c.Cookie("session_id")
	if err != nil || sessionID == "" {
		return
	}

	if err := h.cartService.MergeGuestCartToUser(userID, sessionID); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).
			Warn("Failed to merge guest cart")
	}
}
