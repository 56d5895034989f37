package service

import (
	"context"
	"fmt"

	"marketplace/internal/models"
	"marketplace/internal/store"
	"marketplace/internal/util"
)

// mutateOrderItems is the only path through which order items change.
// It locks the order row, runs mutate, then recomputes total_amount from the
// resulting items, all on q. A reconciliation failure is returned so the
// surrounding transaction rolls the mutation back.
func mutateOrderItems(ctx context.Context, q store.Queries, orderID int64, trigger string, mutate func(order *models.Order) error) (*models.Order, error) {
	order, err := q.LockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := mutate(order); err != nil {
		return nil, err
	}

	total, err := q.ReconcileOrderTotal(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("reconcile order %d: %w", orderID, err)
	}
	order.TotalAmount = total

	util.ReconciliationsTotal.WithLabelValues(trigger).Inc()
	return order, nil
}

// loadItems attaches the current items to order
func loadItems(ctx context.Context, q store.Queries, order *models.Order) error {
	items, err := q.ListOrderItems(ctx, order.ID)
	if err != nil {
		return err
	}
	order.Items = items
	return nil
}
