// internal/domain/user/address_service.go
package user

import (
	"fmt"

	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

// AddressService handles address business logic
type AddressService struct {
	db     *gorm.DB
	config *config.Config
}

// NewAddressService creates a new address service
func NewAddressService(db *gorm.DB, cfg *config.Config) *AddressService {
	return &AddressService{
		db:     db,
		config: cfg,
	}
}

// CreateAddressRequest represents address creation data
type CreateAddressRequest struct {
	FullName  string `json:"full_name" binding:"required"`
	Phone     string `json:"phone" binding:"required"`
	City      string `json:"city" binding:"required"`
	District  string `json:"district" binding:"required"`
	Ward      string `json:"ward" binding:"required"`
	Detail    string `json:"detail" binding:"required"`
	IsDefault bool   `json:"is_default"`
}

// UpdateAddressRequest represents address update data
type UpdateAddressRequest struct {
	FullName  *string `json:"full_name"`
	Phone     *string `json:"phone"`
	City      *string `json:"city"`
	District  *string `json:"district"`
	Ward      *string `json:"ward"`
	Detail    *string `json:"detail"`
	IsDefault *bool   `json:"is_default"`
}

// GetUserAddresses retrieves all addresses for a user
func (s *AddressService) GetUserAddresses(userID uint) ([]Address, error) {
	var addresses []Address

	err := s.db.Where("user_id = ?", userID).
		Order("is_default DESC, created_at DESC").
		Find(&addresses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve addresses: %w", err)
	}

	return addresses, nil
}

// GetAddress retrieves a specific address for a user.
// Ownership is enforced in the query itself.
func (s *AddressService) GetAddress(userID, addressID uint) (*Address, error) {
	var address Address
	result := s.db.Where("id = ? AND user_id = ?", addressID, userID).First(&address)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, apperror.NewNotFound("address")
		}
		return nil, fmt.Errorf("failed to retrieve address: %w", result.Error)
	}

	return &address, nil
}

// CreateAddress creates a new address for a user
func (s *AddressService) CreateAddress(userID uint, req *CreateAddressRequest) (*Address, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if req.IsDefault {
		if err := s.unsetDefaultAddresses(tx, userID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	address := Address{
		UserID:    userID,
		FullName:  req.FullName,
		Phone:     req.Phone,
		City:      req.City,
		District:  req.District,
		Ward:      req.Ward,
		Detail:    req.Detail,
		IsDefault: req.IsDefault,
	}

	if err := tx.Create(&address).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create address: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &address, nil
}

// UpdateAddress updates an existing address
func (s *AddressService) UpdateAddress(userID, addressID uint, req *UpdateAddressRequest) (*Address, error) {
	address, err := s.GetAddress(userID, addressID)
	if err != nil {
		return nil, err
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if req.IsDefault != nil && *req.IsDefault {
		if err := s.unsetDefaultAddresses(tx, userID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	updates := make(map[string]interface{})

	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.City != nil {
		updates["city"] = *req.City
	}
	if req.District != nil {
		updates["district"] = *req.District
	}
	if req.Ward != nil {
		updates["ward"] = *req.Ward
	}
	if req.Detail != nil {
		updates["detail"] = *req.Detail
	}
	if req.IsDefault != nil {
		updates["is_default"] = *req.IsDefault
	}

	if err := tx.Model(address).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update address: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetAddress(userID, addressID)
}

// DeleteAddress deletes an address
func (s *AddressService) DeleteAddress(userID, addressID uint) error {
	result := s.db.Where("id = ? AND user_id = ?", addressID, userID).Delete(&Address{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete address: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return apperror.NewNotFound("address")
	}

	return nil
}

// GetDefaultAddress gets the default address for a user
func (s *AddressService) GetDefaultAddress(userID uint) (*Address, error) {
	var address Address
	result := s.db.Where("user_id = ? AND is_default = ?", userID, true).First(&address)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, apperror.NewNotFound("default address")
		}
		return nil, fmt.Errorf("failed to retrieve default address: %w", result.Error)
	}

	return &address, nil
}

// unsetDefaultAddresses removes the default flag from a user's addresses
func (s *AddressService) unsetDefaultAddresses(tx *gorm.DB, userID uint) error {
	return tx.Model(&Address{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}
