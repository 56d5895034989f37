package store

import (
	"context"
	"fmt"

	"marketplace/internal/apperr"
	"marketplace/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const productColumns = `id, vendor_id, name, price, stock, is_active, created_at, updated_at`

// GetProduct retrieves a product by ID
func (q *queries) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.ext, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if isNoRows(err) {
		return nil, apperr.NotFoundf("product with id %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs. Missing ids are simply absent.
func (q *queries) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	var products []models.Product
	err := sqlx.SelectContext(ctx, q.ext, &products,
		"SELECT "+productColumns+" FROM products WHERE id = ANY($1) ORDER BY id", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	return products, nil
}

// LockProducts locks the product rows FOR UPDATE in ascending id order so
// concurrent orders touching overlapping products cannot deadlock.
func (q *queries) LockProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	var products []models.Product
	err := sqlx.SelectContext(ctx, q.ext, &products,
		"SELECT "+productColumns+" FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	return products, nil
}

// DecrementStock removes quantity from stock only when enough is left.
// It reports false, without error, when the guard rejects the update.
func (q *queries) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	res, err := q.ext.ExecContext(ctx,
		`UPDATE products SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1`,
		quantity, productID)
	if err != nil {
		return false, fmt.Errorf("decrement stock for product %d: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
