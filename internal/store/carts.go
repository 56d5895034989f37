package store

import (
	"context"
	"fmt"

	"marketplace/internal/apperr"
	"marketplace/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetOrCreateCart returns the customer's cart, creating it on first access.
// The no-op DO UPDATE makes RETURNING yield the existing row on conflict.
func (q *queries) GetOrCreateCart(ctx context.Context, customerID int64) (*models.Cart, error) {
	var cart models.Cart
	err := sqlx.GetContext(ctx, q.ext, &cart, `
		INSERT INTO carts (customer_id) VALUES ($1)
		ON CONFLICT (customer_id) DO UPDATE SET customer_id = EXCLUDED.customer_id
		RETURNING id, customer_id, created_at, updated_at`, customerID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart for customer %d: %w", customerID, err)
	}
	return &cart, nil
}

// LockCart locks the customer's cart row for the rest of the transaction
func (q *queries) LockCart(ctx context.Context, customerID int64) (*models.Cart, error) {
	var cart models.Cart
	err := sqlx.GetContext(ctx, q.ext, &cart, `
		SELECT id, customer_id, created_at, updated_at
		FROM carts WHERE customer_id = $1 FOR UPDATE`, customerID)
	if isNoRows(err) {
		return nil, apperr.NotFoundf("cart not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	return &cart, nil
}

// ListCartItems returns the cart lines joined with the live catalog price
func (q *queries) ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	items := []models.CartItem{}
	err := sqlx.SelectContext(ctx, q.ext, &items, `
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity,
		       p.name AS product_name, p.price AS unit_price
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	return items, nil
}

type upsertedCartItem struct {
	models.CartItem
	Inserted bool `db:"inserted"`
}

// AddCartItem inserts the (cart, product) line or adds quantity to the
// existing one in a single statement. The bool reports whether a row was
// created. A sum above models.MaxItemQuantity leaves the line unchanged and
// returns an invalid-input error.
func (q *queries) AddCartItem(ctx context.Context, cartID, productID int64, quantity int) (*models.CartItem, bool, error) {
	var row upsertedCartItem
	err := sqlx.GetContext(ctx, q.ext, &row, `
		WITH upserted AS (
			INSERT INTO cart_items (cart_id, product_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (cart_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
			WHERE cart_items.quantity + EXCLUDED.quantity <= $4
			RETURNING id, cart_id, product_id, quantity, (xmax = 0) AS inserted
		)
		SELECT u.id, u.cart_id, u.product_id, u.quantity, u.inserted,
		       p.name AS product_name, p.price AS unit_price
		FROM upserted u
		JOIN products p ON p.id = u.product_id`,
		cartID, productID, quantity, models.MaxItemQuantity)
	if isNoRows(err) {
		return nil, false, apperr.InvalidInput("quantity",
			"cart quantity of product %d must be at most %d", productID, models.MaxItemQuantity)
	}
	if err != nil {
		return nil, false, fmt.Errorf("add cart item: %w", err)
	}
	return &row.CartItem, row.Inserted, nil
}

// UpdateCartItemQuantity sets the quantity of a line that must belong to cartID
func (q *queries) UpdateCartItemQuantity(ctx context.Context, cartID, itemID int64, quantity int) (*models.CartItem, error) {
	var item models.CartItem
	err := sqlx.GetContext(ctx, q.ext, &item, `
		WITH updated AS (
			UPDATE cart_items SET quantity = $3, updated_at = NOW()
			WHERE id = $1 AND cart_id = $2
			RETURNING id, cart_id, product_id, quantity
		)
		SELECT u.id, u.cart_id, u.product_id, u.quantity,
		       p.name AS product_name, p.price AS unit_price
		FROM updated u
		JOIN products p ON p.id = u.product_id`,
		itemID, cartID, quantity)
	if isNoRows(err) {
		return nil, apperr.NotFoundf("cart item %d not found", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("update cart item %d: %w", itemID, err)
	}
	return &item, nil
}

// DeleteCartItem removes a line from cartID. Deleting a missing line is not an error.
func (q *queries) DeleteCartItem(ctx context.Context, cartID, itemID int64) error {
	_, err := q.ext.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	if err != nil {
		return fmt.Errorf("delete cart item %d: %w", itemID, err)
	}
	return nil
}

// ClearCart removes every line of the cart; the cart row itself stays
func (q *queries) ClearCart(ctx context.Context, cartID int64) (int64, error) {
	res, err := q.ext.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	if err != nil {
		return 0, fmt.Errorf("clear cart %d: %w", cartID, err)
	}
	return res.RowsAffected()
}
