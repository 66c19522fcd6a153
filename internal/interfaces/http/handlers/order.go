// internal/interfaces/http/handlers/order.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/flowershop-backend/internal/domain/order"
	"github.com/your-org/flowershop-backend/internal/interfaces/http/middleware"
)

// OrderHandler handles order endpoints
type OrderHandler struct {
	orderService *order.Service
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService *order.Service) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// CreateOrder handles POST /orders - checkout from the user's cart
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	var req order.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ord, err := h.orderService.CreateOrder(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "order created successfully",
		"data":    ord,
	})
}

// GetOrders handles GET /orders - the caller's own order history
func (h *OrderHandler) GetOrders(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	var req order.OrderListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, err)
		return
	}

	response, err := h.orderService.GetUserOrders(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "orders retrieved successfully",
		"data":    response,
	})
}

// GetOrder handles GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	orderID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	ord, err := h.orderService.GetOrder(orderID, userID, middleware.IsAdminFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "order retrieved successfully",
		"data":    ord,
	})
}

// GetOrderByNumber handles GET /orders/number/:number
func (h *OrderHandler) GetOrderByNumber(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	ord, err := h.orderService.GetOrderByNumber(c.Param("number"), userID, middleware.IsAdminFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "order retrieved successfully",
		"data":    ord,
	})
}

// CancelOrder handles POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	orderID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	ord, err := h.orderService.CancelOrder(userID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "order cancelled successfully",
		"data":    ord,
	})
}

// ListAllOrders handles GET /admin/orders
func (h *OrderHandler) ListAllOrders(c *gin.Context) {
	var req order.OrderListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, err)
		return
	}

	response, err := h.orderService.GetOrders(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "orders retrieved successfully",
		"data":    response,
	})
}

// UpdateOrderStatus handles PUT /admin/orders/status
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	actorID, _ := middleware.GetUserIDFromContext(c)

	var req struct {
		OrderID uint              `json:"order_id" binding:"required"`
		Status  order.OrderStatus `json:"status" binding:"required"`
		Comment string            `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ord, err := h.orderService.UpdateOrderStatus(req.OrderID, actorID, &order.UpdateStatusRequest{
		Status:  req.Status,
		Comment: req.Comment,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "order status updated successfully",
		"data":    ord,
	})
}
