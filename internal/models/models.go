package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is the identity anchor for carts, orders and addresses
type Customer struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Vendor owns products and fulfils the order items placed against them
type Vendor struct {
	ID        int64     `db:"id" json:"id"`
	ShopName  string    `db:"shop_name" json:"shop_name"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Product is the catalog view the order core consumes: identity, live price and stock
type Product struct {
	ID        int64           `db:"id" json:"id"`
	VendorID  int64           `db:"vendor_id" json:"vendor_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Stock     int             `db:"stock" json:"stock"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Address is a customer's delivery address
type Address struct {
	ID         int64     `db:"id" json:"id"`
	CustomerID int64     `db:"customer_id" json:"customer_id"`
	Line       string    `db:"line" json:"line"`
	City       string    `db:"city" json:"city"`
	State      string    `db:"state" json:"state"`
	Pincode    string    `db:"pincode" json:"pincode"`
	IsDefault  bool      `db:"is_default" json:"is_default"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Cart is the single staging cart of a customer
type Cart struct {
	ID         int64      `db:"id" json:"id"`
	CustomerID int64      `db:"customer_id" json:"customer_id"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	Items      []CartItem `db:"-" json:"items"`
	// TotalPrice is computed from live product prices on every read
	TotalPrice decimal.Decimal `db:"-" json:"total_price"`
}

// CartItem is one (cart, product) line. ProductName and UnitPrice are joined from the catalog.
type CartItem struct {
	ID          int64           `db:"id" json:"id"`
	CartID      int64           `db:"cart_id" json:"cart_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	Quantity    int             `db:"quantity" json:"quantity"`
	ProductName string          `db:"product_name" json:"product_name"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// Subtotal is the live line price
func (ci CartItem) Subtotal() decimal.Decimal {
	return ci.UnitPrice.Mul(decimal.NewFromInt(int64(ci.Quantity)))
}

// Order is the order header. TotalAmount is kept equal to the sum of its item subtotals.
type Order struct {
	ID          int64           `db:"id" json:"id"`
	CustomerID  int64           `db:"customer_id" json:"customer_id"`
	AddressID   *int64          `db:"address_id" json:"address_id"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status      OrderStatus     `db:"status" json:"status"`
	IsActive    bool            `db:"is_active" json:"is_active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	Items       []OrderItem     `db:"-" json:"items"`
}

// OrderItem is a line item. Price is the snapshot taken when the order was created.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	VendorID    int64           `db:"vendor_id" json:"vendor_id"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Status      ItemStatus      `db:"status" json:"status"`
	ProductName string          `db:"product_name" json:"product_name"`
	// ProductVendorID is the current owner of the product, used for vendor authorization
	ProductVendorID int64     `db:"product_vendor_id" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Subtotal is the snapshot line price
func (oi OrderItem) Subtotal() decimal.Decimal {
	return oi.Price.Mul(decimal.NewFromInt(int64(oi.Quantity)))
}

// Payment is the one-per-order payment record
type Payment struct {
	ID         int64         `db:"id" json:"id"`
	OrderID    int64         `db:"order_id" json:"order_id"`
	PaymentRef string        `db:"payment_ref" json:"payment_id"`
	Method     PaymentMethod `db:"method" json:"method"`
	Status     PaymentStatus `db:"status" json:"status"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

// VendorStats backs the vendor dashboard
type VendorStats struct {
	TotalProducts   int `db:"total_products" json:"total_products"`
	TotalOrders     int `db:"total_orders" json:"total_orders"`
	PendingOrders   int `db:"pending_orders" json:"pending_orders"`
	CompletedOrders int `db:"completed_orders" json:"completed_orders"`
}

// VendorItemFilter selects which of a vendor's order items a listing returns
type VendorItemFilter string

const (
	VendorItemsAll       VendorItemFilter = "all"
	VendorItemsPending   VendorItemFilter = "pending"
	VendorItemsCompleted VendorItemFilter = "completed"
)

// MaxItemQuantity bounds the quantity of one cart line or order item,
// keeping line totals inside the NUMERIC(10,2) money columns.
const MaxItemQuantity = 10000

// DashboardListSize caps each item list on the vendor dashboard
const DashboardListSize = 5

// VendorDashboard is the vendor dashboard: counters plus the newest items
// overall, still in progress and delivered.
type VendorDashboard struct {
	Stats           VendorStats `json:"stats"`
	RecentOrders    []OrderItem `json:"recent_orders"`
	PendingOrders   []OrderItem `json:"pending_orders"`
	CompletedOrders []OrderItem `json:"completed_orders"`
}

// OrderStatus is the administratively set order-level status
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Payment statuses
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment methods
type PaymentMethod string

const (
	PaymentMethodUPI     PaymentMethod = "upi"
	PaymentMethodCard    PaymentMethod = "card"
	PaymentMethodCash    PaymentMethod = "cash"
	PaymentMethodBanking PaymentMethod = "banking"
)

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
