// internal/domain/product/category_service.go
package product

import (
	"fmt"
	"strings"
	"time"

	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

// CategoryService handles category business logic
type CategoryService struct {
	db     *gorm.DB
	config *config.Config
}

// NewCategoryService creates a new category service
func NewCategoryService(db *gorm.DB, cfg *config.Config) *CategoryService {
	return &CategoryService{
		db:     db,
		config: cfg,
	}
}

// CategoryCreateRequest represents category creation data
type CategoryCreateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Image       string `json:"image"`
	SortOrder   int    `json:"sort_order"`
	IsActive    bool   `json:"is_active"`
}

// CategoryUpdateRequest represents category update data
type CategoryUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
	SortOrder   *int    `json:"sort_order"`
	IsActive    *bool   `json:"is_active"`
}

// CategoryWithProductCount represents category with product count
type CategoryWithProductCount struct {
	Category
	ProductCount int64 `json:"product_count"`
}

// GetCategories retrieves all categories with optional filtering
func (s *CategoryService) GetCategories(includeInactive bool) ([]Category, error) {
	var categories []Category

	query := s.db.Model(&Category{}).Order("sort_order ASC, name ASC")

	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}

	if err := query.Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve categories: %w", err)
	}

	return categories, nil
}

// GetCategoriesWithProductCount retrieves categories with product counts
func (s *CategoryService) GetCategoriesWithProductCount(includeInactive bool) ([]CategoryWithProductCount, error) {
	categories, err := s.GetCategories(includeInactive)
	if err != nil {
		return nil, err
	}

	result := make([]CategoryWithProductCount, 0, len(categories))

	for _, cat := range categories {
		var productCount int64

		countQuery := s.db.Model(&Product{}).Where("category_id = ?", cat.ID)
		if !includeInactive {
			countQuery = countQuery.Where("is_active = ?", true)
		}
		countQuery.Count(&productCount)

		result = append(result, CategoryWithProductCount{
			Category:     cat,
			ProductCount: productCount,
		})
	}

	return result, nil
}

// GetCategory retrieves a single category by ID
func (s *CategoryService) GetCategory(id uint) (*Category, error) {
	var category Category
	result := s.db.Where("id = ?", id).First(&category)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, apperror.NewNotFound("category")
		}
		return nil, fmt.Errorf("failed to retrieve category: %w", result.Error)
	}

	return &category, nil
}

// GetCategoryBySlug retrieves a single active category by slug
func (s *CategoryService) GetCategoryBySlug(slug string) (*Category, error) {
	var category Category
	result := s.db.Where("slug = ? AND is_active = ?", slug, true).First(&category)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, apperror.NewNotFound("category")
		}
		return nil, fmt.Errorf("failed to retrieve category: %w", result.Error)
	}

	return &category, nil
}

// CreateCategory creates a new category
func (s *CategoryService) CreateCategory(req *CategoryCreateRequest) (*Category, error) {
	slug := s.generateSlug(req.Name)

	var existing Category
	if result := s.db.Where("slug = ?", slug).First(&existing); result.Error == nil {
		return nil, apperror.NewFieldValidation("name", "category with similar name already exists")
	}

	category := Category{
		Name:        req.Name,
		Slug:        slug,
		Description: req.Description,
		Image:       req.Image,
		SortOrder:   req.SortOrder,
		IsActive:    req.IsActive,
	}

	if err := s.db.Create(&category).Error; err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	return &category, nil
}

// UpdateCategory updates an existing category
func (s *CategoryService) UpdateCategory(id uint, req *CategoryUpdateRequest) (*Category, error) {
	var category Category
	result := s.db.Where("id = ?", id).First(&category)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, apperror.NewNotFound("category")
		}
		return nil, fmt.Errorf("failed to find category: %w", result.Error)
	}

	updates := make(map[string]interface{})

	if req.Name != nil {
		updates["name"] = *req.Name
		updates["slug"] = s.generateSlug(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Image != nil {
		updates["image"] = *req.Image
	}
	if req.SortOrder != nil {
		updates["sort_order"] = *req.SortOrder
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if err := s.db.Model(&category).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update category: %w", err)
	}

	return &category, nil
}

// DeleteCategory soft deletes a category with no products
func (s *CategoryService) DeleteCategory(id uint) error {
	var productCount int64
	s.db.Model(&Product{}).Where("category_id = ?", id).Count(&productCount)
	if productCount > 0 {
		return apperror.NewValidation("cannot delete category with existing products")
	}

	result := s.db.Where("id = ?", id).Delete(&Category{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete category: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.NewNotFound("category")
	}
	return nil
}

// generateSlug generates a URL-friendly slug from name
func (s *CategoryService) generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	return slug + "-" + fmt.Sprintf("%d", time.Now().Unix())
}
