package service

import (
	"context"
	"strings"
	"testing"

	"marketplace/internal/apperr"
	"marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placedEvent(orderID int64, eventID string) *models.OrderPlacedEvent {
	return &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{EventID: eventID, EventType: models.EventTypeOrderPlaced},
		OrderID:   orderID,
	}
}

func TestHandleOrderPlaced_OpensOnePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placeOrder(t, f, 7)

	require.NoError(t, f.payments.HandleOrderPlaced(ctx, placedEvent(order.ID, "evt-1")))
	require.NoError(t, f.payments.HandleOrderPlaced(ctx, placedEvent(order.ID, "evt-1")))
	require.NoError(t, f.payments.HandleOrderPlaced(ctx, placedEvent(order.ID, "evt-2")))

	payment, err := f.payments.GetPayment(ctx, customer(7), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, models.PaymentMethodUPI, payment.Method)
	assert.True(t, strings.HasPrefix(payment.PaymentRef, "PAY-"))

	processed, err := f.repo.IsEventProcessed(ctx, "evt-2")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestHandleOrderCancelled_FailsPendingPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placeOrder(t, f, 7)
	require.NoError(t, f.payments.HandleOrderPlaced(ctx, placedEvent(order.ID, "evt-1")))

	err := f.payments.HandleOrderCancelled(ctx, &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-3", EventType: models.EventTypeOrderCancelled},
		OrderID:   order.ID,
	})
	require.NoError(t, err)

	payment, err := f.payments.GetPayment(ctx, customer(7), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
}

func TestGetPayment_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placeOrder(t, f, 7)

	_, err := f.payments.GetPayment(ctx, customer(7), order.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, f.payments.HandleOrderPlaced(ctx, placedEvent(order.ID, "evt-1")))
	_, err = f.payments.GetPayment(ctx, customer(8), order.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
