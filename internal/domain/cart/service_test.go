// internal/domain/cart/service_test.go
package cart

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/domain/product"
	"github.com/your-org/flowershop-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&product.Category{},
		&product.Product{},
		&product.ProductImage{},
		&CartItem{},
	))

	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	return NewService(db, nil, &config.Config{})
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, price int64, stock int) product.Product {
	t.Helper()

	category := product.Category{Name: "Bouquets " + sku, Slug: "bouquets-" + sku, IsActive: true}
	require.NoError(t, db.Create(&category).Error)

	prod := product.Product{
		SKU:           sku,
		Name:          "Bouquet " + sku,
		Slug:          "bouquet-" + sku,
		Price:         price,
		CategoryID:    category.ID,
		StockQuantity: stock,
		IsActive:      true,
	}
	require.NoError(t, db.Create(&prod).Error)
	return prod
}

func TestAddToCartMergesQuantities(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	prod := seedProduct(t, db, "ROSE-01", 100000, 10)
	userID := uint(1)

	_, err := svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: prod.ID, Quantity: 1})
	require.NoError(t, err)

	resp, err := svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: prod.ID, Quantity: 3})
	require.NoError(t, err)

	require.Len(t, resp.Items, 1)
	assert.Equal(t, 4, resp.Items[0].Quantity)
	assert.Equal(t, int64(100000), resp.Items[0].Price)
	assert.Equal(t, int64(400000), resp.Items[0].LineTotal)
	assert.Equal(t, int64(400000), resp.Totals.SubTotal)
	assert.Equal(t, 1, resp.Totals.ItemCount)
	assert.Equal(t, 4, resp.Totals.TotalQuantity)
}

func TestAddToCartKeepsPriceSnapshot(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	prod := seedProduct(t, db, "ROSE-01", 100000, 10)
	userID := uint(1)

	_, err := svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: prod.ID, Quantity: 1})
	require.NoError(t, err)

	// Price changes after the line was added; the snapshot must not move
	require.NoError(t, db.Model(&product.Product{}).Where("id = ?", prod.ID).
		Update("price", 150000).Error)

	resp, err := svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: prod.ID, Quantity: 1})
	require.NoError(t, err)

	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(100000), resp.Items[0].Price)
	assert.Equal(t, int64(200000), resp.Items[0].LineTotal)
}

func TestAddToCartRejectsInsufficientStock(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	prod := seedProduct(t, db, "ROSE-01", 100000, 3)
	userID := uint(1)

	_, err := svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: prod.ID, Quantity: 4})
	require.Error(t, err)
	verr, ok := apperror.IsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "quantity")

	// Cumulative line quantity is checked too
	_, err = svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: prod.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: prod.ID, Quantity: 2})
	require.Error(t, err)
	_, ok = apperror.IsValidation(err)
	assert.True(t, ok)
}

func TestAddToCartUnknownProduct(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	userID := uint(1)

	_, err := svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: 999, Quantity: 1})
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestAddToCartRequiresIdentity(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.AddToCart(nil, "", &AddToCartRequest{ProductID: 1, Quantity: 1})
	require.Error(t, err)
	verr, ok := apperror.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "cart identity required", verr.Message)
}

func TestUpdateCartItemToZeroRemovesLine(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	prod := seedProduct(t, db, "ROSE-01", 100000, 10)
	userID := uint(1)

	_, err := svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: prod.ID, Quantity: 2})
	require.NoError(t, err)

	resp, err := svc.UpdateCartItem(&userID, "", prod.ID, &UpdateCartItemRequest{Quantity: 0})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)

	// Removing the already-removed line is a no-op
	resp, err = svc.RemoveFromCart(&userID, "", prod.ID)
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}

func TestUpdateCartItemOverwritesQuantity(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	prod := seedProduct(t, db, "ROSE-01", 100000, 10)
	userID := uint(1)

	_, err := svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: prod.ID, Quantity: 2})
	require.NoError(t, err)

	resp, err := svc.UpdateCartItem(&userID, "", prod.ID, &UpdateCartItemRequest{Quantity: 5})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 5, resp.Items[0].Quantity)

	_, err = svc.UpdateCartItem(&userID, "", prod.ID, &UpdateCartItemRequest{Quantity: 11})
	require.Error(t, err)
	_, ok := apperror.IsValidation(err)
	assert.True(t, ok)
}

func TestClearCartRemovesAllLines(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	first := seedProduct(t, db, "ROSE-01", 100000, 10)
	second := seedProduct(t, db, "LILY-01", 50000, 10)
	userID := uint(1)

	_, err := svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: first.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: second.ID, Quantity: 2})
	require.NoError(t, err)

	require.NoError(t, svc.ClearCart(&userID, ""))

	resp, err := svc.GetCart(&userID, "")
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	assert.Zero(t, resp.Totals.SubTotal)
}

func TestGetCartWithoutIdentityIsEmpty(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	resp, err := svc.GetCart(nil, "")
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	assert.Zero(t, resp.Totals.TotalQuantity)
}

func TestCartsAreIsolatedPerUser(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	prod := seedProduct(t, db, "ROSE-01", 100000, 10)
	alice := uint(1)
	bob := uint(2)

	_, err := svc.AddToCart(&alice, "", &AddToCartRequest{ProductID: prod.ID, Quantity: 2})
	require.NoError(t, err)

	resp, err := svc.GetCart(&bob, "")
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}

func TestMergeItemsSumsQuantitiesAndKeepsUserPrice(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	rose := seedProduct(t, db, "ROSE-01", 100000, 10)
	lily := seedProduct(t, db, "LILY-01", 80000, 10)
	userID := uint(1)

	_, err := svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: rose.ID, Quantity: 2})
	require.NoError(t, err)

	// Session cart holds the shared product at a newer price and one new line
	require.NoError(t, svc.mergeItems(userID, []SessionCartItem{
		{ProductID: rose.ID, Quantity: 3, Price: 150000},
		{ProductID: lily.ID, Quantity: 1, Price: 80000},
	}))

	resp, err := svc.GetCart(&userID, "")
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)

	byProduct := map[uint]CartItemResponse{}
	for _, item := range resp.Items {
		byProduct[item.ProductID] = item
	}

	assert.Equal(t, 5, byProduct[rose.ID].Quantity)
	assert.Equal(t, int64(100000), byProduct[rose.ID].Price)
	assert.Equal(t, 1, byProduct[lily.ID].Quantity)
	assert.Equal(t, int64(80000), byProduct[lily.ID].Price)
}

func TestMergeGuestCartWithoutSessionIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	prod := seedProduct(t, db, "ROSE-01", 100000, 10)
	userID := uint(1)

	_, err := svc.AddToCart(&userID, "", &AddToCartRequest{ProductID: prod.ID, Quantity: 2})
	require.NoError(t, err)

	require.NoError(t, svc.MergeGuestCartToUser(userID, ""))

	resp, err := svc.GetCart(&userID, "")
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.Items[0].Quantity)
}

func TestMergeItemsEmptySourceIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	userID := uint(1)

	require.NoError(t, svc.mergeItems(userID, nil))

	resp, err := svc.GetCart(&userID, "")
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}
