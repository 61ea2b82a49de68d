package handler

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/coffeeshop/internal/middleware"
)

type Handlers struct {
	Auth         *AuthHandler
	Product      *ProductHandler
	Cart         *CartHandler
	Order        *OrderHandler
	Profile      *ProfileHandler
	Notification *NotificationHandler
	Health       *HealthHandler
}

type RouterConfig struct {
	JWTSecret string
	Logger    *slog.Logger
	// Redis backs the rate limiter; nil disables limiting.
	Redis        *redis.Client
	CartLimit    int
	GeneralLimit int
}

func NewRouter(h Handlers, cfg RouterConfig) *gin.Engine {
	RegisterValidators()
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(cfg.Logger))

	if h.Health != nil {
		router.GET("/healthz", h.Health.Healthz)
		router.GET("/readyz", h.Health.Readyz)
	}

	auth := middleware.AuthMiddleware(cfg.JWTSecret)
	general := middleware.RateLimit(cfg.Redis, "general", cfg.GeneralLimit, time.Minute)
	cartLimit := middleware.RateLimit(cfg.Redis, "cart", cfg.CartLimit, time.Minute)

	cart := router.Group("/cart", auth)
	{
		cart.GET("", h.Cart.GetCart)
		cart.GET("/count", h.Cart.Count)
		cart.POST("/add", cartLimit, h.Cart.AddItem)
		cart.POST("/update", cartLimit, h.Cart.UpdateItem)
		cart.POST("/remove", cartLimit, h.Cart.RemoveItem)
	}
	router.POST("/checkout", auth, general, h.Order.Checkout)

	api := router.Group("/api", general)
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)

		products := api.Group("/products")
		products.GET("", h.Product.List)
		products.GET("/:id", h.Product.GetByID)
		api.GET("/categories", h.Product.ListCategories)

		admin := api.Group("", auth, middleware.AdminOnly())
		admin.POST("/products", h.Product.Create)
		admin.PUT("/products/:id", h.Product.Update)
		admin.DELETE("/products/:id", h.Product.Delete)
		admin.POST("/categories", h.Product.CreateCategory)

		user := api.Group("", auth)
		user.GET("/orders", h.Order.ListOrders)
		user.GET("/orders/:id", h.Order.GetOrder)
		user.GET("/orders/:id/status", h.Order.Status)
		user.GET("/profile", h.Profile.Get)
		user.GET("/addresses", h.Profile.ListAddresses)
		user.POST("/addresses", h.Profile.AddAddress)
		user.GET("/notifications", h.Notification.List)
		user.POST("/notifications/read-all", h.Notification.MarkAllRead)
		user.POST("/notifications/:id/read", h.Notification.MarkRead)

		staff := user.Group("/orders/:id", middleware.StaffOnly())
		staff.POST("/transition", h.Order.Transition)
		staff.POST("/mark-paid", h.Order.MarkPaid)
		staff.POST("/mark-ready", h.Order.MarkReady)
		staff.POST("/start-shipping", h.Order.StartShipping)
		staff.POST("/mark-transit", h.Order.MarkInTransit)
	}

	return router
}
