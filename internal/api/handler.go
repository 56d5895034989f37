package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/service"
	"marketplace/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OrderService is the order surface the handlers call
type OrderService interface {
	CreateOrder(ctx context.Context, p models.Principal, req *service.CreateOrderRequest, idempotencyKey string) (*models.Order, bool, error)
	GetOrder(ctx context.Context, p models.Principal, orderID int64) (*models.Order, error)
	ListOrders(ctx context.Context, p models.Principal) ([]models.Order, error)
	CancelOrder(ctx context.Context, p models.Principal, orderID int64) error
	AdminUpdateOrder(ctx context.Context, p models.Principal, orderID int64, upd *service.AdminOrderUpdate) (*models.Order, error)
	AdminUpdateItemQuantity(ctx context.Context, p models.Principal, itemID int64, quantity int) (*models.Order, error)
	AdminDeleteItem(ctx context.Context, p models.Principal, itemID int64) (*models.Order, error)
}

type CartService interface {
	GetCart(ctx context.Context, p models.Principal) (*models.Cart, error)
	AddItem(ctx context.Context, p models.Principal, productID int64, quantity int) (*models.CartItem, bool, error)
	UpdateItem(ctx context.Context, p models.Principal, itemID int64, quantity int) (*models.CartItem, error)
	RemoveItem(ctx context.Context, p models.Principal, itemID int64) error
}

type FulfillmentService interface {
	PatchItemStatus(ctx context.Context, p models.Principal, itemID int64, status models.ItemStatus) (*models.OrderItem, error)
	ListItems(ctx context.Context, p models.Principal) ([]models.OrderItem, error)
	Dashboard(ctx context.Context, p models.Principal) (*models.VendorDashboard, error)
}

type AddressService interface {
	List(ctx context.Context, p models.Principal) ([]models.Address, error)
	Create(ctx context.Context, p models.Principal, req *service.AddressRequest) (*models.Address, error)
	Remove(ctx context.Context, p models.Principal, addressID int64) error
}

type PaymentService interface {
	GetPayment(ctx context.Context, p models.Principal, orderID int64) (*models.Payment, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the handler dependencies
type Services struct {
	Orders      OrderService
	Carts       CartService
	Fulfillment FulfillmentService
	Addresses   AddressService
	Payments    PaymentService
}

// Handler contains HTTP handlers
type Handler struct {
	orders      OrderService
	carts       CartService
	fulfillment FulfillmentService
	addresses   AddressService
	payments    PaymentService
	readiness   map[string]Pinger
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler. readiness names the dependencies
// that must answer a ping before the service reports ready.
func NewHandler(svc Services, readiness map[string]Pinger) *Handler {
	return &Handler{
		orders:      svc.Orders,
		carts:       svc.Carts,
		fulfillment: svc.Fulfillment,
		addresses:   svc.Addresses,
		payments:    svc.Payments,
		readiness:   readiness,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", principalMiddleware())
	{
		customer := v1.Group("/customer")
		customer.GET("/cart", h.getCart)
		customer.POST("/cart", h.addCartItem)
		customer.PATCH("/cart/:id", h.updateCartItem)
		customer.DELETE("/cart/:id", h.removeCartItem)

		customer.GET("/orders", h.listOrders)
		customer.POST("/orders", h.createOrder)
		customer.GET("/orders/:id", h.getOrder)
		customer.DELETE("/orders/:id", h.cancelOrder)
		customer.GET("/orders/:id/payment", h.getPayment)

		customer.GET("/addresses", h.listAddresses)
		customer.POST("/addresses", h.createAddress)
		customer.DELETE("/addresses/:id", h.removeAddress)

		vendor := v1.Group("/vendor")
		vendor.GET("/orders", h.listVendorItems)
		vendor.PATCH("/orders/:id", h.patchItemStatus)
		vendor.GET("/dashboard", h.vendorDashboard)

		admin := v1.Group("/admin")
		admin.PATCH("/orders/:id", h.adminUpdateOrder)
		admin.PATCH("/order-items/:id", h.adminUpdateItem)
		admin.DELETE("/order-items/:id", h.adminDeleteItem)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// pathID parses the :id path parameter, writing a 400 when it is not a positive integer
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

// bindJSON decodes the body, writing a 400 on malformed input
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
