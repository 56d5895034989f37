package service

import (
	"context"
	"time"

	"marketplace/internal/apperr"
	"marketplace/internal/models"
	"marketplace/internal/redisclient"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// EventPublisher is the outbound event surface of the order core.
// *broker.EventPublisher implements it.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishItemStatusChanged(ctx context.Context, event *models.ItemStatusChangedEvent) error
	PublishOrderTotalReconciled(ctx context.Context, event *models.OrderTotalReconciledEvent) error
}

// IdempotencyStore maps Idempotency-Key values to created orders.
// *redisclient.Client implements it.
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, customerID int64, key string, ttl time.Duration) (redisclient.ClaimState, int64, error)
	CompleteIdempotencyKey(ctx context.Context, customerID int64, key string, orderID int64, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, customerID int64, key string) error
}

// FulfillmentPolicy holds the optional hardening of vendor item transitions
type FulfillmentPolicy struct {
	// StrictOrder rejects moves that go back along the fulfillment path
	StrictOrder bool
	// VendorCancel allows vendors to set CANCELLED on their items
	VendorCancel bool
}

// DefaultFulfillmentPolicy accepts any allowed label, vendor cancellation included
var DefaultFulfillmentPolicy = FulfillmentPolicy{VendorCancel: true}

func requireCustomer(p models.Principal) error {
	if !p.IsCustomer() {
		return apperr.Forbiddenf("customer access required")
	}
	return nil
}

func requireVendor(p models.Principal) error {
	if !p.IsVendor() {
		return apperr.Forbiddenf("vendor access required")
	}
	return nil
}

func requireAdmin(p models.Principal) error {
	if !p.IsAdmin() {
		return apperr.Forbiddenf("admin access required")
	}
	return nil
}

// logPublishError records an event that could not be published. Events are
// emitted after commit, so a broker failure never undoes the write.
func logPublishError(logger *zap.Logger, eventType string, orderID int64, err error) {
	if err == nil {
		return
	}
	util.EventPublishFailuresTotal.WithLabelValues(eventType).Inc()
	logger.Error("Failed to publish event",
		zap.String("type", eventType),
		zap.Int64("order_id", orderID),
		zap.Error(err))
}
