package store

import (
	"context"
	"fmt"

	"marketplace/internal/apperr"
	"marketplace/internal/models"

	"github.com/jmoiron/sqlx"
)

const addressColumns = `id, customer_id, line, city, state, pincode, is_default, created_at, updated_at`

func (q *queries) GetAddress(ctx context.Context, id int64) (*models.Address, error) {
	var addr models.Address
	err := sqlx.GetContext(ctx, q.ext, &addr,
		"SELECT "+addressColumns+" FROM addresses WHERE id = $1", id)
	if isNoRows(err) {
		return nil, apperr.NotFoundf("address %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get address %d: %w", id, err)
	}
	return &addr, nil
}

func (q *queries) ListDefaultAddresses(ctx context.Context, customerID int64) ([]models.Address, error) {
	addrs := []models.Address{}
	err := sqlx.SelectContext(ctx, q.ext, &addrs,
		"SELECT "+addressColumns+" FROM addresses WHERE customer_id = $1 AND is_default ORDER BY id",
		customerID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return addrs, nil
}

func (q *queries) CreateAddress(ctx context.Context, addr *models.Address) error {
	err := sqlx.GetContext(ctx, q.ext, addr, `
		INSERT INTO addresses (customer_id, line, city, state, pincode, is_default)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		addr.CustomerID, addr.Line, addr.City, addr.State, addr.Pincode, addr.IsDefault)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}

// UnsetDefaultAddress hides an address from the customer's list without
// deleting it, so orders that reference it keep their address.
func (q *queries) UnsetDefaultAddress(ctx context.Context, customerID, id int64) error {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE addresses SET is_default = FALSE, updated_at = NOW() WHERE id = $1 AND customer_id = $2",
		id, customerID)
	if err != nil {
		return fmt.Errorf("unset default address %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFoundf("address %d not found", id)
	}
	return nil
}
