// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/flowershop-backend/internal/domain/cart"
	"github.com/your-org/flowershop-backend/internal/domain/order"
	"github.com/your-org/flowershop-backend/internal/domain/product"
	"github.com/your-org/flowershop-backend/internal/domain/user"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, logger *logrus.Logger) *Migration {
	if logger == nil {
		logger = logrus.New()
	}
	return &Migration{
		db:     db,
		logger: logger,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.logger.Info("Running database auto-migrations")

	// Dependency order matters: referenced tables first
	models := []interface{}{
		&user.User{},
		&user.Address{},

		&product.Category{},
		&product.Product{},
		&product.ProductImage{},

		&cart.CartItem{},

		&order.Order{},
		&order.OrderItem{},
		&order.Payment{},
		&order.OrderStatusHistory{},
	}

	for _, model := range models {
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.logger.Info("Database auto-migrations completed")
	return nil
}

// CreateIndexes creates additional indexes for common query paths
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_users_email_active ON users(email, is_active)",

		"CREATE INDEX IF NOT EXISTS idx_products_category_active ON products(category_id, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_featured ON products(is_featured, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_price ON products(price)",
		"CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at DESC)",

		"CREATE INDEX IF NOT EXISTS idx_categories_sort_order ON categories(sort_order)",

		"CREATE INDEX IF NOT EXISTS idx_cart_items_user_product ON cart_items(user_id, product_id)",

		"CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)",

		"CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id)",

		"CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)",
		"CREATE INDEX IF NOT EXISTS idx_payments_method_status ON payments(method, status)",

		"CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at DESC)",

		"CREATE INDEX IF NOT EXISTS idx_addresses_user_default ON addresses(user_id, is_default)",
	}

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			m.logger.WithError(err).Warn("Failed to create index")
		}
	}

	return nil
}

// SeedInitialData inserts initial data into the database
func (m *Migration) SeedInitialData() error {
	m.logger.Info("Seeding initial data")

	if err := m.seedCategories(); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}
	if err := m.seedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	if err := m.seedSampleProducts(); err != nil {
		return fmt.Errorf("failed to seed sample products: %w", err)
	}

	return nil
}

func (m *Migration) seedCategories() error {
	categories := []product.Category{
		{
			Name:        "Bouquets",
			Slug:        "bouquets",
			Description: "Hand-tied bouquets for every occasion",
			SortOrder:   1,
			IsActive:    true,
		},
		{
			Name:        "Roses",
			Slug:        "roses",
			Description: "Fresh roses by the stem and in arrangements",
			SortOrder:   2,
			IsActive:    true,
		},
		{
			Name:        "Orchids",
			Slug:        "orchids",
			Description: "Potted orchids and orchid arrangements",
			SortOrder:   3,
			IsActive:    true,
		},
		{
			Name:        "Wedding Flowers",
			Slug:        "wedding-flowers",
			Description: "Bridal bouquets and ceremony arrangements",
			SortOrder:   4,
			IsActive:    true,
		},
		{
			Name:        "Sympathy",
			Slug:        "sympathy",
			Description: "Wreaths and condolence arrangements",
			SortOrder:   5,
			IsActive:    true,
		},
	}

	for _, category := range categories {
		var existing product.Category
		result := m.db.Where("slug = ?", category.Slug).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&category).Error; err != nil {
				return err
			}
			m.logger.WithField("category", category.Name).Info("Created category")
		}
	}

	return nil
}

func (m *Migration) seedAdminUser() error {
	var existing user.User
	result := m.db.Where("email = ?", "admin@flowershop.local").First(&existing)
	if result.Error == nil {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("admin123456"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	adminUser := user.User{
		Email:     "admin@flowershop.local",
		Password:  string(hashedPassword),
		FirstName: "Shop",
		LastName:  "Admin",
		IsActive:  true,
		IsAdmin:   true,
	}

	if err := m.db.Create(&adminUser).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	m.logger.WithField("email", adminUser.Email).Info("Created admin user")
	return nil
}

func (m *Migration) seedSampleProducts() error {
	var productCount int64
	m.db.Model(&product.Product{}).Count(&productCount)
	if productCount > 0 {
		return nil
	}

	var bouquets, roses product.Category
	if err := m.db.Where("slug = ?", "bouquets").First(&bouquets).Error; err != nil {
		return nil
	}
	if err := m.db.Where("slug = ?", "roses").First(&roses).Error; err != nil {
		return nil
	}

	sampleProducts := []product.Product{
		{
			SKU:           "BQ-MIXED-01",
			Name:          "Spring Mixed Bouquet",
			Slug:          "spring-mixed-bouquet",
			Description:   "A seasonal mix of tulips, daisies and greenery, hand-tied with ribbon.",
			Price:         350000,
			CategoryID:    bouquets.ID,
			StockQuantity: 20,
			IsActive:      true,
			IsFeatured:    true,
		},
		{
			SKU:           "RS-RED-12",
			Name:          "Dozen Red Roses",
			Slug:          "dozen-red-roses",
			Description:   "Twelve long-stem red roses wrapped in kraft paper.",
			Price:         450000,
			CategoryID:    roses.ID,
			StockQuantity: 30,
			IsActive:      true,
			IsFeatured:    true,
		},
		{
			SKU:           "BQ-SUN-01",
			Name:          "Sunflower Bundle",
			Slug:          "sunflower-bundle",
			Description:   "Five bright sunflowers with eucalyptus filler.",
			Price:         250000,
			CategoryID:    bouquets.ID,
			StockQuantity: 15,
			IsActive:      true,
		},
	}

	for _, prod := range sampleProducts {
		if err := m.db.Create(&prod).Error; err != nil {
			m.logger.WithError(err).WithField("sku", prod.SKU).Warn("Failed to create sample product")
		}
	}

	return nil
}

// DropAllTables drops all tables (use with extreme caution)
func (m *Migration) DropAllTables() error {
	m.logger.Warn("Dropping all database tables")

	// Reverse dependency order
	tables := []string{
		"order_status_history",
		"payments",
		"order_items",
		"orders",
		"cart_items",
		"product_images",
		"products",
		"categories",
		"addresses",
		"users",
	}

	for _, table := range tables {
		if err := m.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Error; err != nil {
			m.logger.WithError(err).WithField("table", table).Warn("Failed to drop table")
		}
	}

	return nil
}
