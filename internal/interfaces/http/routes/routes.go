// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/domain/cart"
	"github.com/your-org/flowershop-backend/internal/domain/order"
	"github.com/your-org/flowershop-backend/internal/domain/payment"
	"github.com/your-org/flowershop-backend/internal/domain/product"
	"github.com/your-org/flowershop-backend/internal/domain/user"
	"github.com/your-org/flowershop-backend/internal/interfaces/http/handlers"
	"github.com/your-org/flowershop-backend/internal/interfaces/http/middleware"
	"github.com/your-org/flowershop-backend/internal/pkg/email"
	"github.com/your-org/flowershop-backend/internal/pkg/events"
	"github.com/your-org/flowershop-backend/internal/pkg/pdf"
	"gorm.io/gorm"
)

// SetupRoutes wires all API endpoints under the given router group
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config, bus *events.Bus, logger *logrus.Logger) {
	// Domain services
	userService := user.NewService(db, cfg)
	addressService := user.NewAddressService(db, cfg)
	productService := product.NewService(db, cfg)
	categoryService := product.NewCategoryService(db, cfg)
	cartService := cart.NewService(db, redisClient, cfg)
	emailService := email.NewEmailService(cfg)
	orderService := order.NewService(db, cfg, cartService, emailService, bus, logger)
	paymentService := payment.NewService(db, cfg, orderService, logger)
	pdfService := pdf.NewService(cfg)

	// Bank-transfer orders get their QR pre-generated off the order event
	bus.Subscribe(paymentService.HandleOrderCreated)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, cartService, cfg, logger)
	profileHandler := handlers.NewUserProfileHandler(userService)
	addressHandler := handlers.NewUserAddressHandler(addressService)
	productHandler := handlers.NewProductHandler(productService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)
	cartHandler := handlers.NewCartHandler(cartService, cfg)
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	invoiceHandler := handlers.NewInvoiceHandler(orderService, pdfService)

	// Authentication
	auth := rg.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)

		protected := auth.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			protected.POST("/logout", authHandler.Logout)
			protected.PUT("/password", authHandler.ChangePassword)
			protected.GET("/profile", profileHandler.GetProfile)
			protected.PUT("/profile", profileHandler.UpdateProfile)
		}
	}

	// Address book
	addresses := rg.Group("/addresses")
	addresses.Use(middleware.AuthMiddleware(cfg))
	{
		addresses.GET("", addressHandler.GetAddresses)
		addresses.POST("", addressHandler.CreateAddress)
		addresses.GET("/:id", addressHandler.GetAddress)
		addresses.PUT("/:id", addressHandler.UpdateAddress)
		addresses.DELETE("/:id", addressHandler.DeleteAddress)
	}

	// Catalog (public)
	products := rg.Group("/products")
	{
		products.GET("", productHandler.GetProducts)
		products.GET("/:id", productHandler.GetProduct)
		products.GET("/slug/:slug", productHandler.GetProductBySlug)
	}

	categories := rg.Group("/categories")
	{
		categories.GET("", categoryHandler.GetCategories)
		categories.GET("/:id", categoryHandler.GetCategory)
		categories.GET("/slug/:slug", categoryHandler.GetCategoryBySlug)
	}

	// Cart works for both guests and authenticated users
	cartRoutes := rg.Group("/cart")
	cartRoutes.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		cartRoutes.GET("", cartHandler.GetCart)
		cartRoutes.POST("/items", cartHandler.AddToCart)
		cartRoutes.PUT("/items/:id", cartHandler.UpdateCartItem)
		cartRoutes.DELETE("/items/:id", cartHandler.RemoveFromCart)
		cartRoutes.DELETE("", cartHandler.ClearCart)
		cartRoutes.POST("/merge", cartHandler.MergeCart)
	}

	// Orders require authentication
	orders := rg.Group("/orders")
	orders.Use(middleware.AuthMiddleware(cfg))
	{
		orders.POST("", orderHandler.CreateOrder)
		orders.GET("", orderHandler.GetOrders)
		orders.GET("/:id", orderHandler.GetOrder)
		orders.GET("/number/:number", orderHandler.GetOrderByNumber)
		orders.POST("/:id/cancel", orderHandler.CancelOrder)
		orders.GET("/:id/invoice", invoiceHandler.DownloadInvoice)
		orders.GET("/:id/payment/qr", paymentHandler.GetPaymentQR)
	}

	// Gateway callback (unauthenticated)
	rg.POST("/webhooks/payment", paymentHandler.HandleWebhook)

	// Admin
	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg))
	admin.Use(middleware.AdminMiddleware())
	{
		adminProducts := admin.Group("/products")
		{
			adminProducts.GET("", productHandler.ListAllProducts)
			adminProducts.POST("", productHandler.CreateProduct)
			adminProducts.PUT("/:id", productHandler.UpdateProduct)
			adminProducts.DELETE("/:id", productHandler.DeleteProduct)
		}

		adminCategories := admin.Group("/categories")
		{
			adminCategories.POST("", categoryHandler.CreateCategory)
			adminCategories.PUT("/:id", categoryHandler.UpdateCategory)
			adminCategories.DELETE("/:id", categoryHandler.DeleteCategory)
		}

		adminOrders := admin.Group("/orders")
		{
			adminOrders.GET("", orderHandler.ListAllOrders)
			adminOrders.PUT("/status", orderHandler.UpdateOrderStatus)
			adminOrders.PUT("/:id/payment", paymentHandler.MarkPaymentPaid)
		}
	}
}
