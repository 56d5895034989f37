package store

import (
	"context"
	"fmt"

	"marketplace/internal/apperr"
	"marketplace/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, customer_id, address_id, total_amount, status, is_active, created_at, updated_at`

const orderItemSelect = `
	SELECT oi.id, oi.order_id, oi.product_id, COALESCE(oi.vendor_id, 0) AS vendor_id,
	       oi.quantity, oi.price, oi.status, oi.created_at, oi.updated_at,
	       p.name AS product_name, p.vendor_id AS product_vendor_id
	FROM order_items oi
	JOIN products p ON p.id = oi.product_id`

// CreateOrder inserts the order shell
func (q *queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (customer_id, address_id, total_amount, status, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, q.ext, order, query,
		order.CustomerID, order.AddressID, order.TotalAmount, order.Status, order.IsActive)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order header by ID
func (q *queries) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return q.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

// LockOrder retrieves the order header and locks its row for the transaction
func (q *queries) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return q.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
}

func (q *queries) getOrder(ctx context.Context, query string, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.ext, &order, query, id)
	if isNoRows(err) {
		return nil, apperr.NotFoundf("order %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &order, nil
}

// ListOrdersByCustomer returns the customer's orders, newest first, with items loaded
func (q *queries) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := sqlx.SelectContext(ctx, q.ext, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id DESC",
		customerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}

	var items []models.OrderItem
	err = sqlx.SelectContext(ctx, q.ext, &items,
		orderItemSelect+" WHERE oi.order_id = ANY($1) ORDER BY oi.id", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	byOrder := make(map[int64][]models.OrderItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []models.OrderItem{}
		}
	}
	return orders, nil
}

// UpdateOrder persists the administratively editable header fields.
// total_amount is written only by ReconcileOrderTotal.
func (q *queries) UpdateOrder(ctx context.Context, order *models.Order) error {
	err := sqlx.GetContext(ctx, q.ext, &order.UpdatedAt, `
		UPDATE orders SET status = $2, address_id = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		order.ID, order.Status, order.AddressID, order.IsActive)
	if isNoRows(err) {
		return apperr.NotFoundf("order %d not found", order.ID)
	}
	if err != nil {
		return fmt.Errorf("update order %d: %w", order.ID, err)
	}
	return nil
}

// ReconcileOrderTotal recomputes total_amount from the current items and
// writes it with a direct column update.
func (q *queries) ReconcileOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := sqlx.GetContext(ctx, q.ext, &total, `
		UPDATE orders
		SET total_amount = COALESCE(
		        (SELECT SUM(price * quantity) FROM order_items WHERE order_id = $1), 0),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING total_amount`, orderID)
	if isNoRows(err) {
		return decimal.Zero, apperr.NotFoundf("order %d not found", orderID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("reconcile total for order %d: %w", orderID, err)
	}
	return total, nil
}

// InsertOrderItem inserts one line item with its price snapshot
func (q *queries) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, vendor_id, quantity, price, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, q.ext, item, query,
		item.OrderID, item.ProductID, item.VendorID, item.Quantity, item.Price, item.Status)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

// GetOrderItem retrieves an item with its product's current owner
func (q *queries) GetOrderItem(ctx context.Context, id int64) (*models.OrderItem, error) {
	var item models.OrderItem
	err := sqlx.GetContext(ctx, q.ext, &item, orderItemSelect+" WHERE oi.id = $1", id)
	if isNoRows(err) {
		return nil, apperr.NotFoundf("order item %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order item %d: %w", id, err)
	}
	return &item, nil
}

// ListOrderItems retrieves all items for an order
func (q *queries) ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := sqlx.SelectContext(ctx, q.ext, &items,
		orderItemSelect+" WHERE oi.order_id = $1 ORDER BY oi.id", orderID)
	if err != nil {
		return nil, fmt.Errorf("list items for order %d: %w", orderID, err)
	}
	return items, nil
}

// ListOrderItemsByVendor retrieves the items a vendor has to fulfil, newest first
func (q *queries) ListOrderItemsByVendor(ctx context.Context, vendorID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := sqlx.SelectContext(ctx, q.ext, &items,
		orderItemSelect+" WHERE p.vendor_id = $1 ORDER BY oi.id DESC", vendorID)
	if err != nil {
		return nil, fmt.Errorf("list items for vendor %d: %w", vendorID, err)
	}
	return items, nil
}

var vendorItemFilters = map[models.VendorItemFilter]string{
	models.VendorItemsAll:       "",
	models.VendorItemsPending:   " AND oi.status NOT IN ('DELIVERED', 'CANCELLED')",
	models.VendorItemsCompleted: " AND oi.status = 'DELIVERED'",
}

// ListRecentVendorItems retrieves at most limit of the vendor's items
// matching filter, newest first
func (q *queries) ListRecentVendorItems(ctx context.Context, vendorID int64, filter models.VendorItemFilter, limit int) ([]models.OrderItem, error) {
	clause, ok := vendorItemFilters[filter]
	if !ok {
		return nil, fmt.Errorf("unknown vendor item filter %q", filter)
	}

	items := []models.OrderItem{}
	err := sqlx.SelectContext(ctx, q.ext, &items,
		orderItemSelect+" WHERE p.vendor_id = $1"+clause+" ORDER BY oi.id DESC LIMIT $2", vendorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s items for vendor %d: %w", filter, vendorID, err)
	}
	return items, nil
}

// UpdateOrderItemStatus sets the fulfillment label of one item
func (q *queries) UpdateOrderItemStatus(ctx context.Context, itemID int64, status models.ItemStatus) error {
	return q.execOne(ctx, itemID,
		"UPDATE order_items SET status = $2, updated_at = NOW() WHERE id = $1", itemID, status)
}

// UpdateOrderItemQuantity changes the quantity of one item; the price snapshot is untouched
func (q *queries) UpdateOrderItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	return q.execOne(ctx, itemID,
		"UPDATE order_items SET quantity = $2, updated_at = NOW() WHERE id = $1", itemID, quantity)
}

// DeleteOrderItem removes one item
func (q *queries) DeleteOrderItem(ctx context.Context, itemID int64) error {
	return q.execOne(ctx, itemID, "DELETE FROM order_items WHERE id = $1", itemID)
}

func (q *queries) execOne(ctx context.Context, itemID int64, query string, args ...any) error {
	res, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write order item %d: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFoundf("order item %d not found", itemID)
	}
	return nil
}

// VendorItemStats aggregates the vendor dashboard counters
func (q *queries) VendorItemStats(ctx context.Context, vendorID int64) (*models.VendorStats, error) {
	var stats models.VendorStats
	err := sqlx.GetContext(ctx, q.ext, &stats, `
		SELECT
			(SELECT COUNT(*) FROM products WHERE vendor_id = $1) AS total_products,
			COUNT(oi.id) AS total_orders,
			COUNT(oi.id) FILTER (WHERE oi.status NOT IN ('DELIVERED', 'CANCELLED')) AS pending_orders,
			COUNT(oi.id) FILTER (WHERE oi.status = 'DELIVERED') AS completed_orders
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE p.vendor_id = $1`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("vendor stats %d: %w", vendorID, err)
	}
	return &stats, nil
}
