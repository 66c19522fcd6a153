// internal/domain/cart/service.go
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/domain/product"
	"github.com/your-org/flowershop-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

const sessionCartTTL = 24 * time.Hour

// Service handles cart business logic
type Service struct {
	db          *gorm.DB
	redisClient *redis.Client
	config      *config.Config
}

// NewService creates a new cart service
func NewService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *Service {
	return &Service{
		db:          db,
		redisClient: redisClient,
		config:      cfg,
	}
}

// CartItemResponse represents a cart line with product details
type CartItemResponse struct {
	ProductID uint             `json:"product_id"`
	Quantity  int              `json:"quantity"`
	Price     int64            `json:"price"`
	LineTotal int64            `json:"line_total"`
	Product   *product.Product `json:"product,omitempty"`
	AddedAt   time.Time        `json:"added_at"`
}

// CartResponse represents a shopping cart with items and totals
type CartResponse struct {
	SessionID string             `json:"session_id,omitempty"`
	UserID    *uint              `json:"user_id,omitempty"`
	Items     []CartItemResponse `json:"items"`
	Totals    CartTotals         `json:"totals"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// AddToCartRequest represents add to cart request
type AddToCartRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

// UpdateCartItemRequest represents update cart item request
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// GetCart retrieves cart for user or session. With neither identity the
// result is an empty transient cart.
func (s *Service) GetCart(userID *uint, sessionID string) (*CartResponse, error) {
	var cartItems []CartItemResponse
	var createdAt, updatedAt time.Time

	switch {
	case userID != nil:
		dbItems, err := s.getUserCartItems(*userID)
		if err != nil {
			return nil, err
		}

		cartItems = make([]CartItemResponse, len(dbItems))
		for i, item := range dbItems {
			cartItems[i] = CartItemResponse{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
				LineTotal: item.Price * int64(item.Quantity),
				AddedAt:   item.CreatedAt,
			}
		}

		if len(dbItems) > 0 {
			createdAt = dbItems[0].CreatedAt
			updatedAt = dbItems[0].UpdatedAt
		} else {
			createdAt = time.Now().UTC()
			updatedAt = createdAt
		}

	case sessionID != "":
		sessionCart, err := s.getGuestCart(sessionID)
		if err != nil {
			return nil, err
		}

		cartItems = make([]CartItemResponse, len(sessionCart.Items))
		for i, item := range sessionCart.Items {
			cartItems[i] = CartItemResponse{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
				LineTotal: item.Price * int64(item.Quantity),
				AddedAt:   item.AddedAt,
			}
		}

		createdAt = sessionCart.CreatedAt
		updatedAt = sessionCart.UpdatedAt

	default:
		now := time.Now().UTC()
		createdAt, updatedAt = now, now
		cartItems = []CartItemResponse{}
	}

	s.loadProductDetails(cartItems)

	return &CartResponse{
		SessionID: sessionID,
		UserID:    userID,
		Items:     cartItems,
		Totals:    s.calculateTotals(cartItems),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// AddToCart adds an item to the cart. The unit price is snapshotted at
// add time and kept unchanged on later merges and re-adds.
func (s *Service) AddToCart(userID *uint, sessionID string, req *AddToCartRequest) (*CartResponse, error) {
	if userID == nil && sessionID == "" {
		return nil, apperror.NewValidation("cart identity required")
	}

	var prod product.Product
	result := s.db.Where("id = ? AND is_active = ?", req.ProductID, true).First(&prod)
	if result.Error != nil {
		return nil, apperror.NewNotFound("product")
	}

	if !prod.HasStock(req.Quantity) {
		return nil, apperror.NewFieldValidation("quantity",
			fmt.Sprintf("insufficient stock: only %d available", prod.StockQuantity))
	}

	if userID != nil {
		if err := s.addToUserCart(*userID, &prod, req.Quantity); err != nil {
			return nil, err
		}
	} else {
		if err := s.addToGuestCart(sessionID, &prod, req.Quantity); err != nil {
			return nil, err
		}
	}

	return s.GetCart(userID, sessionID)
}

// UpdateCartItem overwrites the quantity of a cart line.
// Quantity zero or below removes the line.
func (s *Service) UpdateCartItem(userID *uint, sessionID string, productID uint, req *UpdateCartItemRequest) (*CartResponse, error) {
	if userID == nil && sessionID == "" {
		return nil, apperror.NewValidation("cart identity required")
	}

	if req.Quantity > 0 {
		var prod product.Product
		result := s.db.Where("id = ?", productID).First(&prod)
		if result.Error != nil {
			return nil, apperror.NewNotFound("product")
		}

		if !prod.HasStock(req.Quantity) {
			return nil, apperror.NewFieldValidation("quantity",
				fmt.Sprintf("insufficient stock: only %d available", prod.StockQuantity))
		}
	}

	if userID != nil {
		if err := s.updateUserCartItem(*userID, productID, req.Quantity); err != nil {
			return nil, err
		}
	} else {
		if err := s.updateGuestCartItem(sessionID, productID, req.Quantity); err != nil {
			return nil, err
		}
	}

	return s.GetCart(userID, sessionID)
}

// RemoveFromCart removes a line from the cart. Removing an absent line is a no-op.
func (s *Service) RemoveFromCart(userID *uint, sessionID string, productID uint) (*CartResponse, error) {
	return s.UpdateCartItem(userID, sessionID, productID, &UpdateCartItemRequest{Quantity: 0})
}

// ClearCart removes all lines from the cart
func (s *Service) ClearCart(userID *uint, sessionID string) error {
	if userID != nil {
		return s.db.Where("user_id = ?", *userID).Delete(&CartItem{}).Error
	}
	if sessionID == "" {
		return nil
	}
	ctx := context.Background()
	return s.redisClient.Del(ctx, s.cartKey(sessionID)).Err()
}

// MergeGuestCartToUser merges the anonymous session cart into the user cart
// at login. Quantities of shared products are summed; the user cart's price
// snapshot wins. The session cart is deleted afterwards.
func (s *Service) MergeGuestCartToUser(userID uint, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	guestCart, err := s.getGuestCart(sessionID)
	if err != nil || len(guestCart.Items) == 0 {
		return nil
	}

	if err := s.mergeItems(userID, guestCart.Items); err != nil {
		return err
	}

	return s.ClearCart(nil, sessionID)
}

func (s *Service) mergeItems(userID uint, items []SessionCartItem) error {
	for _, guestItem := range items {
		var existingItem CartItem
		result := s.db.Where("user_id = ? AND product_id = ?", userID, guestItem.ProductID).First(&existingItem)

		if result.Error == gorm.ErrRecordNotFound {
			newItem := CartItem{
				UserID:    &userID,
				ProductID: guestItem.ProductID,
				Quantity:  guestItem.Quantity,
				Price:     guestItem.Price,
			}
			if err := s.db.Create(&newItem).Error; err != nil {
				return fmt.Errorf("failed to merge cart item: %w", err)
			}
		} else {
			existingItem.Quantity += guestItem.Quantity
			if err := s.db.Save(&existingItem).Error; err != nil {
				return fmt.Errorf("failed to merge cart item: %w", err)
			}
		}
	}

	return nil
}

// GetUserCartItems returns the raw cart rows for checkout
func (s *Service) GetUserCartItems(userID uint) ([]CartItem, error) {
	return s.getUserCartItems(userID)
}

// Private helper methods

func (s *Service) getUserCartItems(userID uint) ([]CartItem, error) {
	var items []CartItem
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve user cart: %w", err)
	}
	return items, nil
}

func (s *Service) addToUserCart(userID uint, prod *product.Product, quantity int) error {
	var existingItem CartItem
	result := s.db.Where("user_id = ? AND product_id = ?", userID, prod.ID).First(&existingItem)

	if result.Error == gorm.ErrRecordNotFound {
		newItem := CartItem{
			UserID:    &userID,
			ProductID: prod.ID,
			Quantity:  quantity,
			Price:     prod.Price,
		}
		return s.db.Create(&newItem).Error
	}

	newQuantity := existingItem.Quantity + quantity
	if !prod.HasStock(newQuantity) {
		return apperror.NewFieldValidation("quantity",
			fmt.Sprintf("insufficient stock: only %d available", prod.StockQuantity))
	}

	existingItem.Quantity = newQuantity
	return s.db.Save(&existingItem).Error
}

func (s *Service) addToGuestCart(sessionID string, prod *product.Product, quantity int) error {
	sessionCart, err := s.getGuestCart(sessionID)
	if err != nil {
		return err
	}

	itemExists := false
	for i := range sessionCart.Items {
		if sessionCart.Items[i].ProductID == prod.ID {
			newQuantity := sessionCart.Items[i].Quantity + quantity
			if !prod.HasStock(newQuantity) {
				return apperror.NewFieldValidation("quantity",
					fmt.Sprintf("insufficient stock: only %d available", prod.StockQuantity))
			}
			sessionCart.Items[i].Quantity = newQuantity
			itemExists = true
			break
		}
	}

	if !itemExists {
		sessionCart.Items = append(sessionCart.Items, SessionCartItem{
			ProductID: prod.ID,
			Quantity:  quantity,
			Price:     prod.Price,
			AddedAt:   time.Now().UTC(),
		})
	}

	sessionCart.UpdatedAt = time.Now().UTC()
	return s.saveGuestCart(sessionID, sessionCart)
}

func (s *Service) updateUserCartItem(userID, productID uint, quantity int) error {
	if quantity <= 0 {
		return s.db.Where("user_id = ? AND product_id = ?", userID, productID).Delete(&CartItem{}).Error
	}
	return s.db.Model(&CartItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("quantity", quantity).Error
}

func (s *Service) updateGuestCartItem(sessionID string, productID uint, quantity int) error {
	sessionCart, err := s.getGuestCart(sessionID)
	if err != nil {
		return err
	}

	changed := false
	for i := range sessionCart.Items {
		if sessionCart.Items[i].ProductID == productID {
			if quantity <= 0 {
				sessionCart.Items = append(sessionCart.Items[:i], sessionCart.Items[i+1:]...)
			} else {
				sessionCart.Items[i].Quantity = quantity
			}
			changed = true
			break
		}
	}

	// Removing an absent line is a no-op.
	if !changed {
		return nil
	}

	sessionCart.UpdatedAt = time.Now().UTC()
	return s.saveGuestCart(sessionID, sessionCart)
}

func (s *Service) getGuestCart(sessionID string) (*SessionCart, error) {
	if sessionID == "" {
		return nil, apperror.NewValidation("session ID required for guest cart")
	}

	ctx := context.Background()

	cartData, err := s.redisClient.Get(ctx, s.cartKey(sessionID)).Result()
	if err == redis.Nil {
		now := time.Now().UTC()
		return &SessionCart{
			SessionID: sessionID,
			Items:     []SessionCartItem{},
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(sessionCartTTL),
		}, nil
	} else if err != nil {
		return nil, err
	}

	var sessionCart SessionCart
	if err := json.Unmarshal([]byte(cartData), &sessionCart); err != nil {
		return nil, err
	}

	return &sessionCart, nil
}

func (s *Service) saveGuestCart(sessionID string, cart *SessionCart) error {
	ctx := context.Background()

	cartData, err := json.Marshal(cart)
	if err != nil {
		return err
	}

	return s.redisClient.Set(ctx, s.cartKey(sessionID), cartData, sessionCartTTL).Err()
}

func (s *Service) cartKey(sessionID string) string {
	return fmt.Sprintf("cart:session:%s", sessionID)
}

func (s *Service) loadProductDetails(cartItems []CartItemResponse) {
	for i := range cartItems {
		var prod product.Product
		err := s.db.Preload("Category").Preload("Images").
			Where("id = ?", cartItems[i].ProductID).First(&prod).Error
		if err != nil {
			continue
		}
		cartItems[i].Product = &prod
	}
}

func (s *Service) calculateTotals(cartItems []CartItemResponse) CartTotals {
	var totals CartTotals

	totals.ItemCount = len(cartItems)

	for _, item := range cartItems {
		totals.TotalQuantity += item.Quantity
		totals.SubTotal += item.Price * int64(item.Quantity)
	}

	return totals
}
