package store

import (
	"context"
	"fmt"

	"marketplace/internal/apperr"
	"marketplace/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreatePayment creates the payment record for an order. It reports false
// when the order already has one.
func (q *queries) CreatePayment(ctx context.Context, payment *models.Payment) (bool, error) {
	query := `
		INSERT INTO payments (order_id, payment_ref, method, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, q.ext, payment, query,
		payment.OrderID, payment.PaymentRef, payment.Method, payment.Status)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	return true, nil
}

// GetPaymentByOrderID retrieves payment for an order
func (q *queries) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, q.ext, &payment, `
		SELECT id, order_id, payment_ref, method, status, created_at, updated_at
		FROM payments WHERE order_id = $1`, orderID)
	if isNoRows(err) {
		return nil, apperr.NotFoundf("payment not found for order %d", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment for order %d: %w", orderID, err)
	}
	return &payment, nil
}

// TransitionPayment moves the order's payment from one status to another
// and reports whether a row was in the expected status.
func (q *queries) TransitionPayment(ctx context.Context, orderID int64, from, to models.PaymentStatus) (bool, error) {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE payments SET status = $3, updated_at = NOW() WHERE order_id = $1 AND status = $2",
		orderID, from, to)
	if err != nil {
		return false, fmt.Errorf("update payment for order %d: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsEventProcessed checks if an event has been processed
func (q *queries) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.ext, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (q *queries) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := q.ext.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
