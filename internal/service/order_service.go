package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/apperr"
	"marketplace/internal/models"
	"marketplace/internal/redisclient"
	"marketplace/internal/store"
	"marketplace/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Order sources recorded on ORDER_PLACED
const (
	SourceItems = "items"
	SourceCart  = "cart"
)

// OrderService handles order business logic
type OrderService struct {
	repo           store.Repository
	inventory      *InventoryClient
	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service. idempotency may be nil, in
// which case Idempotency-Key headers are ignored.
func NewOrderService(
	repo store.Repository,
	inventory *InventoryClient,
	idempotency IdempotencyStore,
	idempotencyTTL time.Duration,
	eventPublisher EventPublisher,
) *OrderService {
	return &OrderService{
		repo:           repo,
		inventory:      inventory,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest creates an order from Items, or from the cart when Items is empty
type CreateOrderRequest struct {
	AddressID int64              `json:"address_id"`
	Items     []OrderItemRequest `json:"items"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CreateOrder runs the order creation orchestrator. The bool is true when
// the order was returned from an earlier request with the same idempotency key.
func (s *OrderService) CreateOrder(ctx context.Context, p models.Principal, req *CreateOrderRequest, idempotencyKey string) (order *models.Order, replayed bool, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer func() { util.EndSpan(span, err) }()

	if err := requireCustomer(p); err != nil {
		return nil, false, err
	}

	if idempotencyKey == "" || s.idempotency == nil {
		order, err = s.createOrder(ctx, p, req)
		return order, false, err
	}

	state, existingID, err := s.idempotency.ClaimIdempotencyKey(ctx, p.CustomerID, idempotencyKey, s.idempotencyTTL)
	if err != nil {
		s.logger.Warn("Idempotency claim failed, continuing without it",
			zap.String("idempotency_key", idempotencyKey),
			zap.Error(err))
		order, err = s.createOrder(ctx, p, req)
		return order, false, err
	}

	switch state {
	case redisclient.InFlight:
		return nil, false, apperr.Conflictf("a request with this Idempotency-Key is still in progress")
	case redisclient.Completed:
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", idempotencyKey),
			zap.Int64("order_id", existingID))
		util.IdempotentReplaysTotal.Inc()
		order, err = s.GetOrder(ctx, p, existingID)
		return order, true, err
	}

	order, err = s.createOrder(ctx, p, req)
	if err != nil {
		if rerr := s.idempotency.ReleaseIdempotencyKey(ctx, p.CustomerID, idempotencyKey); rerr != nil {
			s.logger.Error("Failed to release idempotency key", zap.Error(rerr))
		}
		return nil, false, err
	}
	if cerr := s.idempotency.CompleteIdempotencyKey(ctx, p.CustomerID, idempotencyKey, order.ID, s.idempotencyTTL); cerr != nil {
		s.logger.Error("Failed to complete idempotency key",
			zap.Int64("order_id", order.ID),
			zap.Error(cerr))
	}
	return order, false, nil
}

func (s *OrderService) createOrder(ctx context.Context, p models.Principal, req *CreateOrderRequest) (*models.Order, error) {
	start := time.Now()
	defer func() {
		util.OrderCreateLatency.Observe(time.Since(start).Seconds())
	}()

	address, err := s.resolveAddress(ctx, p.CustomerID, req.AddressID)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_address").Inc()
		return nil, err
	}

	var (
		order  *models.Order
		source string
	)
	if len(req.Items) > 0 {
		source = SourceItems
		order, err = s.createFromItems(ctx, p.CustomerID, address.ID, req.Items)
	} else {
		source = SourceCart
		order, err = s.createFromCart(ctx, p.CustomerID, address.ID)
	}
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.WithLabelValues(source).Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", order.CustomerID),
		zap.String("source", source),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)))

	event := &models.OrderPlacedEvent{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount,
		Source:      source,
		Items:       make([]models.OrderItemData, 0, len(order.Items)),
	}
	for _, it := range order.Items {
		event.Items = append(event.Items, models.OrderItemData{
			ProductID: it.ProductID,
			VendorID:  it.VendorID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	logPublishError(s.logger, models.EventTypeOrderPlaced, order.ID,
		s.eventPublisher.PublishOrderPlaced(ctx, event))

	return order, nil
}

func (s *OrderService) resolveAddress(ctx context.Context, customerID, addressID int64) (*models.Address, error) {
	if addressID <= 0 {
		return nil, apperr.InvalidInput("address_id", "address_id is required")
	}
	address, err := s.repo.GetAddress(ctx, addressID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.InvalidInput("address_id", "invalid address_id")
	}
	if err != nil {
		return nil, err
	}
	if address.CustomerID != customerID {
		return nil, apperr.InvalidInput("address_id", "invalid address_id")
	}
	return address, nil
}

// createFromItems validates every line before opening the transaction, then
// re-validates on locked rows inside it.
func (s *OrderService) createFromItems(ctx context.Context, customerID, addressID int64, items []OrderItemRequest) (*models.Order, error) {
	lines, err := mergeLines(items)
	if err != nil {
		return nil, err
	}

	if _, err := s.inventory.Validate(ctx, s.repo, lines); err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.repo.InTx(ctx, func(q store.Queries) error {
		products, err := s.inventory.Reserve(ctx, q, lines)
		if err != nil {
			return err
		}
		order, err = insertOrder(ctx, q, customerID, addressID, lines, products)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// createFromCart converts the locked cart into an order and empties it in
// the same transaction. Stock is checked and consumed as for explicit items.
func (s *OrderService) createFromCart(ctx context.Context, customerID, addressID int64) (*models.Order, error) {
	var order *models.Order
	err := s.repo.InTx(ctx, func(q store.Queries) error {
		cart, err := q.LockCart(ctx, customerID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.InvalidInput("items", "cart is empty. provide items to order or add items to cart")
		}
		if err != nil {
			return err
		}

		cartItems, err := q.ListCartItems(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(cartItems) == 0 {
			return apperr.InvalidInput("items", "cart is empty. provide items to order or add items to cart")
		}

		lines := make([]orderLine, len(cartItems))
		for i, ci := range cartItems {
			lines[i] = orderLine{ProductID: ci.ProductID, Quantity: ci.Quantity}
		}

		products, err := s.inventory.Reserve(ctx, q, lines)
		if err != nil {
			return err
		}

		order, err = insertOrder(ctx, q, customerID, addressID, lines, products)
		if err != nil {
			return err
		}

		if _, err := q.ClearCart(ctx, cart.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// insertOrder creates the order shell with a zero total, inserts one PLACED
// item per line at the current product price and reconciles the total.
func insertOrder(ctx context.Context, q store.Queries, customerID, addressID int64, lines []orderLine, products map[int64]models.Product) (*models.Order, error) {
	shell := &models.Order{
		CustomerID:  customerID,
		AddressID:   &addressID,
		TotalAmount: decimal.Zero,
		Status:      models.OrderStatusPending,
		IsActive:    true,
	}
	if err := q.CreateOrder(ctx, shell); err != nil {
		return nil, err
	}

	order, err := mutateOrderItems(ctx, q, shell.ID, "create", func(order *models.Order) error {
		for _, line := range lines {
			product := products[line.ProductID]
			item := &models.OrderItem{
				OrderID:   order.ID,
				ProductID: product.ID,
				VendorID:  product.VendorID,
				Quantity:  line.Quantity,
				Price:     product.Price,
				Status:    models.ItemStatusPlaced,
			}
			if err := q.InsertOrderItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := loadItems(ctx, q, order); err != nil {
		return nil, err
	}
	return order, nil
}

func failureReason(err error) string {
	if kind := apperr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "internal"
}

// GetOrder returns an order with its items. Customers only see their own
// orders; admins see all.
func (s *OrderService) GetOrder(ctx context.Context, p models.Principal, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	if !p.IsAdmin() {
		if err := requireCustomer(p); err != nil {
			return nil, err
		}
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && order.CustomerID != p.CustomerID {
		return nil, apperr.NotFoundf("order %d not found", orderID)
	}

	if err := loadItems(ctx, s.repo, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns the customer's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, p models.Principal) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	if err := requireCustomer(p); err != nil {
		return nil, err
	}
	return s.repo.ListOrdersByCustomer(ctx, p.CustomerID)
}

// CancelOrder cancels the whole order when every item is still PLACED.
// Stock is not returned to the catalog.
func (s *OrderService) CancelOrder(ctx context.Context, p models.Principal, orderID int64) (err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer func() { util.EndSpan(span, err) }()

	if err := requireCustomer(p); err != nil {
		return err
	}

	err = s.repo.InTx(ctx, func(q store.Queries) error {
		_, err := mutateOrderItems(ctx, q, orderID, "cancel", func(order *models.Order) error {
			if order.CustomerID != p.CustomerID {
				return apperr.NotFoundf("order %d not found", orderID)
			}

			items, err := q.ListOrderItems(ctx, orderID)
			if err != nil {
				return err
			}
			for _, it := range items {
				if it.Status != models.ItemStatusPlaced {
					return apperr.Conflictf("only placed orders can be cancelled")
				}
			}

			for _, it := range items {
				if err := q.UpdateOrderItemStatus(ctx, it.ID, models.ItemStatusCancelled); err != nil {
					return err
				}
			}

			order.Status = models.OrderStatusCancelled
			return q.UpdateOrder(ctx, order)
		})
		return err
	})
	if err != nil {
		return err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled", zap.Int64("order_id", orderID))

	logPublishError(s.logger, models.EventTypeOrderCancelled, orderID,
		s.eventPublisher.PublishOrderCancelled(ctx, &models.OrderCancelledEvent{
			OrderID:    orderID,
			CustomerID: p.CustomerID,
			Reason:     "customer_cancelled",
		}))
	return nil
}

// AdminOrderUpdate is a partial update of the order header
type AdminOrderUpdate struct {
	Status    *models.OrderStatus `json:"status"`
	AddressID *int64              `json:"address_id"`
	IsActive  *bool               `json:"is_active"`
}

// AdminUpdateOrder applies a privileged partial update. Order status is set
// independently of item fulfillment states.
func (s *OrderService) AdminUpdateOrder(ctx context.Context, p models.Principal, orderID int64, upd *AdminOrderUpdate) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AdminUpdateOrder")
	defer func() { util.EndSpan(span, err) }()

	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, apperr.InvalidInput("status", "%q is not a valid order status", *upd.Status)
	}

	var oldStatus models.OrderStatus
	err = s.repo.InTx(ctx, func(q store.Queries) error {
		var err error
		order, err = q.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		oldStatus = order.Status

		if upd.Status != nil {
			order.Status = *upd.Status
		}
		if upd.AddressID != nil {
			addr, err := q.GetAddress(ctx, *upd.AddressID)
			if errors.Is(err, apperr.ErrNotFound) || (err == nil && addr.CustomerID != order.CustomerID) {
				return apperr.InvalidInput("address_id", "invalid address_id")
			}
			if err != nil {
				return err
			}
			order.AddressID = &addr.ID
		}
		if upd.IsActive != nil {
			order.IsActive = *upd.IsActive
		}

		if err := q.UpdateOrder(ctx, order); err != nil {
			return err
		}
		return loadItems(ctx, q, order)
	})
	if err != nil {
		return nil, err
	}

	if order.Status != oldStatus {
		s.logger.Info("Order status changed",
			zap.Int64("order_id", orderID),
			zap.String("from", string(oldStatus)),
			zap.String("to", string(order.Status)))
		logPublishError(s.logger, models.EventTypeOrderStatusChanged, orderID,
			s.eventPublisher.PublishOrderStatusChanged(ctx, &models.OrderStatusChangedEvent{
				OrderID:   orderID,
				OldStatus: oldStatus,
				NewStatus: order.Status,
			}))
	}
	return order, nil
}

// AdminUpdateItemQuantity changes the quantity of an order item and returns
// the reconciled order. The price snapshot is kept.
func (s *OrderService) AdminUpdateItemQuantity(ctx context.Context, p models.Principal, itemID int64, quantity int) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AdminUpdateItemQuantity")
	defer span.End()

	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if err := checkQuantity(quantity); err != nil {
		return nil, err
	}

	return s.adminMutateItem(ctx, itemID, "item_update", func(q store.Queries) error {
		return q.UpdateOrderItemQuantity(ctx, itemID, quantity)
	})
}

// AdminDeleteItem removes an order item and returns the reconciled order
func (s *OrderService) AdminDeleteItem(ctx context.Context, p models.Principal, itemID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AdminDeleteItem")
	defer span.End()

	if err := requireAdmin(p); err != nil {
		return nil, err
	}

	return s.adminMutateItem(ctx, itemID, "item_delete", func(q store.Queries) error {
		return q.DeleteOrderItem(ctx, itemID)
	})
}

func (s *OrderService) adminMutateItem(ctx context.Context, itemID int64, trigger string, mutate func(q store.Queries) error) (*models.Order, error) {
	var order *models.Order
	err := s.repo.InTx(ctx, func(q store.Queries) error {
		item, err := q.GetOrderItem(ctx, itemID)
		if err != nil {
			return err
		}

		order, err = mutateOrderItems(ctx, q, item.OrderID, trigger, func(*models.Order) error {
			return mutate(q)
		})
		if err != nil {
			return err
		}
		return loadItems(ctx, q, order)
	})
	if err != nil {
		return nil, fmt.Errorf("%s item %d: %w", trigger, itemID, err)
	}

	logPublishError(s.logger, models.EventTypeOrderTotalReconciled, order.ID,
		s.eventPublisher.PublishOrderTotalReconciled(ctx, &models.OrderTotalReconciledEvent{
			OrderID:     order.ID,
			TotalAmount: order.TotalAmount,
		}))
	return order, nil
}
