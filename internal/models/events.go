package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced          = "ORDER_PLACED"
	EventTypeOrderCancelled       = "ORDER_CANCELLED"
	EventTypeOrderStatusChanged   = "ORDER_STATUS_CHANGED"
	EventTypeItemStatusChanged    = "ORDER_ITEM_STATUS_CHANGED"
	EventTypeOrderTotalReconciled = "ORDER_TOTAL_RECONCILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published after an order and its items are committed
type OrderPlacedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	CustomerID  int64           `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Source      string          `json:"source"`
	Items       []OrderItemData `json:"items"`
}

// OrderCancelledEvent published when the customer cancels an order
type OrderCancelledEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	CustomerID int64  `json:"customer_id"`
	Reason     string `json:"reason"`
}

// OrderStatusChangedEvent published when an admin changes the order-level status
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   int64       `json:"order_id"`
	OldStatus OrderStatus `json:"old_status"`
	NewStatus OrderStatus `json:"new_status"`
}

// ItemStatusChangedEvent published when a vendor moves an item along fulfillment
type ItemStatusChangedEvent struct {
	BaseEvent
	OrderID     int64      `json:"order_id"`
	OrderItemID int64      `json:"order_item_id"`
	VendorID    int64      `json:"vendor_id"`
	OldStatus   ItemStatus `json:"old_status"`
	NewStatus   ItemStatus `json:"new_status"`
}

// OrderTotalReconciledEvent published when privileged item maintenance changes a total
type OrderTotalReconciledEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	VendorID  int64           `json:"vendor_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}
